package hxreload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const listPage = `<html><body>
<div id="count">10 items</div>
<ul class="list"><li>1</li></ul>
<div id="target"></div>
<a id="loadmore" class="click-to-load" data-source="/p2 .list" data-target="#target">Load more</a>
</body></html>`

func newListServer() *FragmentServer {
	return NewFragmentServer(map[string]string{
		"/": listPage,
		"/p2": `<div id="count" hx-swap-oob="true">20 items</div>
<ul class="list"><li>2</li></ul>
<a id="loadmore" class="click-to-load" data-source="/p3 .list" data-target="#target">Load more</a>`,
		"/p3": `<ul class="list"><li>3</li></ul>`,
	})
}

func newTestPage(t *testing.T, srv *FragmentServer, markup string) (*Reloader, *Page) {
	t.Helper()
	p, err := ParsePage(srv.PageURL("/"), markup)
	if err != nil {
		t.Fatal(err)
	}
	r := New()
	if _, err := r.Init(context.Background(), p); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r, p
}

func TestLoadMoreContinuesThenExhausts(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	r, p := newTestPage(t, srv, listPage)
	ctx := context.Background()

	trigger, err := p.Node("#loadmore")
	if err != nil {
		t.Fatal(err)
	}

	out, err := r.LoadMore(ctx, p, trigger)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if !out.Continued || out.Exhausted || !out.Applied() {
		t.Errorf("outcome = %+v", out)
	}
	if out.Inserted != 2 {
		t.Errorf("inserted = %d, want list plus oob counter", out.Inserted)
	}
	if src, _, _ := p.Attr("#loadmore", "data-source"); src != "/p3 .list" {
		t.Errorf("data-source = %q, want /p3 .list", src)
	}
	if n, _ := p.Count("#loadmore"); n != 1 {
		t.Errorf("triggers = %d, want 1", n)
	}
	if n, _ := p.Count(".list"); n != 2 {
		t.Errorf("lists = %d, want 2", n)
	}
	if html, _ := p.OuterHTML("#count"); !strings.Contains(html, "20 items") {
		t.Errorf("oob counter = %s", html)
	}
	// New content sits before the target, in order.
	if html, _ := p.OuterHTML("body"); !strings.Contains(strings.Join(strings.Fields(html), ""),
		`<ulclass="list"><li>1</li></ul><ulclass="list"><li>2</li></ul><divid="target"></div>`) {
		t.Errorf("unexpected body: %s", html)
	}

	out, err = r.LoadMore(ctx, p, trigger)
	if err != nil {
		t.Fatalf("LoadMore: %v", err)
	}
	if !out.Exhausted || out.Continued {
		t.Errorf("outcome = %+v", out)
	}
	if n, _ := p.Count("#loadmore"); n != 0 {
		t.Error("trigger should be removed on the last page")
	}
	if n := p.Bound(trigger, "click"); n != 0 {
		t.Errorf("removed trigger keeps %d handlers", n)
	}
	if n, _ := p.Count(".list li"); n != 3 {
		t.Errorf("items = %d, want 3", n)
	}
}

func TestLoadMoreDetachedTrigger(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	r, p := newTestPage(t, srv, listPage)
	ctx := context.Background()
	trigger, _ := p.Node("#loadmore")

	for i := 0; i < 2; i++ {
		if _, err := r.LoadMore(ctx, p, trigger); err != nil {
			t.Fatalf("LoadMore %d: %v", i, err)
		}
	}
	out, err := r.LoadMore(ctx, p, trigger)
	if !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("error = %v, want ErrTargetNotFound", err)
	}
	if out.Applied() {
		t.Errorf("outcome = %+v", out)
	}
	if n, _ := p.Count(".list li"); n != 3 {
		t.Errorf("items = %d, want 3", n)
	}
	if n := srv.Hits("/p3"); n != 1 {
		t.Errorf("/p3 fetched %d times, want 1", n)
	}
}

func TestLoadMoreOverlappingLastPage(t *testing.T) {
	srv := NewFragmentServer(nil)
	defer srv.Close()
	srv.Handle("/last", FragmentRoute{Body: `<ul class="list"><li>2</li></ul>`, Delay: 100 * time.Millisecond})

	p, _ := ParsePage(srv.PageURL("/"), `<body>
<ul class="list"><li>1</li></ul>
<div id="target"></div>
<a id="loadmore" class="click-to-load" data-source="/last .list" data-target="#target">Load more</a>
</body>`)
	r := New(WithSequencePolicy(LastResponseWins))
	trigger, _ := p.Node("#loadmore")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := r.LoadMore(context.Background(), p, trigger)
			errs <- err
		}()
	}
	var notFound int
	for i := 0; i < 2; i++ {
		err := <-errs
		switch {
		case err == nil:
		case errors.Is(err, ErrTargetNotFound):
			notFound++
		default:
			t.Errorf("LoadMore: %v", err)
		}
	}
	if notFound != 1 {
		t.Errorf("%d loads rejected, want 1", notFound)
	}
	if n, _ := p.Count(".list li"); n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
}

func TestLoadMoreByClick(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	r, p := newTestPage(t, srv, listPage)

	// A second Init must not bind the trigger twice.
	if _, err := r.Init(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	res, err := TestClick(context.Background(), p, "#loadmore")
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if res.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", res.Dispatched)
	}
	if srv.Hits("/p2") != 1 {
		t.Errorf("/p2 hits = %d, want 1", srv.Hits("/p2"))
	}
	if !res.HTMLContainsAll("<li>2</li>", `data-source="/p3 .list"`) {
		t.Errorf("page = %s", res.HTML)
	}

	req := srv.Requests()[0]
	if req.Header.Get("HX-Trigger") != "loadmore" || req.Header.Get("HX-Target") != "target" {
		t.Errorf("headers = %v", req.Header)
	}
}

func TestLoadMoreStripsNestedSentinel(t *testing.T) {
	srv := NewFragmentServer(map[string]string{
		"/p2": `<div class="list"><p>2</p><a id="more" class="click-to-load" data-source="/p3 .list" data-target="#end"></a></div>`,
	})
	defer srv.Close()
	r, p := newTestPage(t, srv, `<body><div id="end"></div><a id="more" class="click-to-load" data-source="/p2 .list" data-target="#end"></a></body>`)

	trigger, _ := p.Node("#more")
	out, err := r.LoadMore(context.Background(), p, trigger)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Continued {
		t.Errorf("outcome = %+v", out)
	}
	if n, _ := p.Count("#more"); n != 1 {
		t.Errorf("elements with trigger id = %d, want 1", n)
	}
	if n, _ := p.Count("p"); n != 1 {
		t.Error("page content missing")
	}
}

func TestLoadMoreWithoutID(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	markup := `<body><div id="target"></div><a class="click-to-load" data-source="/p2 .list" data-target="#target"></a></body>`
	r, p := newTestPage(t, srv, markup)

	trigger, _ := p.Node(".click-to-load")
	out, err := r.LoadMore(context.Background(), p, trigger)
	if err == nil && !out.Exhausted {
		t.Errorf("outcome = %+v", out)
	}
	if n, _ := p.Count(".click-to-load"); n != 0 {
		t.Error("trigger without id can never continue and should be removed")
	}
}

func TestLoadMoreFailureLeavesPage(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	srv.Handle("/p2", FragmentRoute{Status: http.StatusInternalServerError, Body: "boom"})
	r, p := newTestPage(t, srv, listPage)
	before, _ := p.HTML()

	trigger, _ := p.Node("#loadmore")
	out, err := r.LoadMore(context.Background(), p, trigger)
	if !IsDegraded(err) {
		t.Fatalf("error = %v, want degraded", err)
	}
	if out.Applied() {
		t.Errorf("outcome = %+v", out)
	}
	if after, _ := p.HTML(); after != before {
		t.Error("page changed on failure")
	}

	// The user can simply try again.
	srv.Handle("/p2", FragmentRoute{Body: `<ul class="list"><li>2</li></ul>`})
	if _, err := r.LoadMore(context.Background(), p, trigger); err != nil {
		t.Errorf("retry: %v", err)
	}
}

func TestLoadMoreRequiresSource(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	r, p := newTestPage(t, srv, `<body><a id="x" class="click-to-load"></a></body>`)
	n, _ := p.Node("#x")
	if _, err := r.LoadMore(context.Background(), p, n); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

const blockPage = `<body>
<div id="block" class="block expanded" data-reload-from="/block"><span>v1</span></div>
<button id="tg" class="toggle-button" data-toggle="#block">toggle</button>
</body>`

func TestReloadFromCarriesState(t *testing.T) {
	srv := NewFragmentServer(map[string]string{
		// The server ignores the carried state on purpose.
		"/block": `<div id="block" class="block" data-reload-from="/block"><span>v2</span></div>`,
	})
	defer srv.Close()
	r, p := newTestPage(t, srv, blockPage)

	out, err := r.ReloadFrom(context.Background(), p, "#block")
	if err != nil {
		t.Fatalf("ReloadFrom: %v", err)
	}
	if out.State == nil || !out.State.Toggled {
		t.Errorf("state = %+v", out.State)
	}
	if html, _ := p.OuterHTML("#block"); !strings.Contains(html, "v2") {
		t.Errorf("block = %s", html)
	}
	if on, _ := p.HasClass("#block", "expanded"); !on {
		t.Error("expanded marker lost across reload")
	}
	if q := srv.Requests()[0].URL.Query(); q.Get("expanded") != "1" {
		t.Errorf("query = %v, want expanded=1", q)
	}

	// The new block is rehydrated and reloads on the reload event.
	n, _ := p.Node("#block")
	if p.Bound(n, "reload") != 1 {
		t.Error("reloaded block not rehydrated")
	}
	if _, err := p.Dispatch(context.Background(), n, "reload"); err != nil {
		t.Fatal(err)
	}
	if srv.Hits("/block") != 2 {
		t.Errorf("/block hits = %d, want 2", srv.Hits("/block"))
	}
}

func TestToggleThenReload(t *testing.T) {
	srv := NewFragmentServer(map[string]string{
		"/block": `<div id="block" class="block expanded" data-reload-from="/block"><span>v2</span></div>`,
	})
	defer srv.Close()
	r, p := newTestPage(t, srv, blockPage)
	ctx := context.Background()

	if _, err := p.Click(ctx, "#tg"); err != nil {
		t.Fatal(err)
	}
	if on, _ := p.HasClass("#block", "expanded"); on {
		t.Fatal("toggle should collapse the block")
	}
	if on, _ := p.HasClass("#tg", "active"); on {
		t.Error("button should not be active when collapsed")
	}

	// The server renders the block expanded, the client state wins.
	if _, err := r.ReloadFrom(ctx, p, "#block"); err != nil {
		t.Fatal(err)
	}
	if on, _ := p.HasClass("#block", "expanded"); on {
		t.Error("collapsed state lost across reload")
	}
	if q := srv.Requests()[0].URL.Query(); q.Has("expanded") {
		t.Errorf("collapsed state should not be sent, query = %v", q)
	}

	btn, _ := p.Node("#tg")
	out, err := r.Toggle(ctx, p, btn)
	if err != nil || !out.Toggled || !out.State.Toggled {
		t.Errorf("toggle = %+v, %v", out, err)
	}
	if on, _ := p.HasClass("#tg", "active"); !on {
		t.Error("button should be active when expanded")
	}
}

func TestToggleDataAttribute(t *testing.T) {
	srv := NewFragmentServer(nil)
	defer srv.Close()
	r, p := newTestPage(t, srv, `<body>
<button id="tg" class="toggle-button" data-toggle="#panel">Details</button>
<div id="panel" data-expanded="true"></div>
</body>`)
	ctx := context.Background()
	btn, _ := p.Node("#tg")

	for i, want := range []bool{false, true, false} {
		out, err := r.Toggle(ctx, p, btn)
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if out.State.Toggled != want {
			t.Errorf("toggle %d: State.Toggled = %v, want %v", i, out.State.Toggled, want)
		}
		st, _ := CaptureState(p, "#panel", DefaultCarry)
		if st.Toggled != want {
			t.Errorf("toggle %d: captured %v, want %v", i, st.Toggled, want)
		}
		if v, _, _ := p.Attr("#panel", "data-expanded"); v != fmt.Sprint(want) {
			t.Errorf("toggle %d: data-expanded = %q", i, v)
		}
	}
}

func TestReloadFromSignedState(t *testing.T) {
	srv := NewFragmentServer(map[string]string{
		"/block": `<div id="block" data-reload-from="/block"></div>`,
	})
	defer srv.Close()

	enc, err := NewEncoder([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := ParsePage(srv.PageURL("/"), blockPage)
	r := New(WithStateEncoder(enc))

	if _, err := r.ReloadFrom(context.Background(), p, "#block"); err != nil {
		t.Fatal(err)
	}
	states, err := DecodeState(srv.Requests()[0], enc)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if len(states) != 1 || states[0].Selector != "#block" || !states[0].Toggled {
		t.Errorf("states = %+v", states)
	}
}

func TestReloadFromEncryptedState(t *testing.T) {
	srv := NewFragmentServer(map[string]string{
		"/block": `<div id="block" data-reload-from="/block"></div>`,
	})
	defer srv.Close()

	enc, err := NewEncoder([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	p, _ := ParsePage(srv.PageURL("/"), blockPage)
	r := New(WithStateEncoder(enc), WithEncryptedState())

	if _, err := r.ReloadFrom(context.Background(), p, "#block"); err != nil {
		t.Fatal(err)
	}
	req := srv.Requests()[0]
	if token := req.URL.Query().Get(StateParam); strings.Contains(token, ".") {
		t.Errorf("token %q looks signed, want encrypted", token)
	}
	states, err := DecodeState(req, enc)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if len(states) != 1 || states[0].Selector != "#block" || !states[0].Toggled {
		t.Errorf("states = %+v", states)
	}
}

func TestReloadFromErrors(t *testing.T) {
	srv := NewFragmentServer(nil)
	defer srv.Close()
	r, p := newTestPage(t, srv, `<body><div id="plain"></div></body>`)
	ctx := context.Background()

	if _, err := r.ReloadFrom(ctx, p, "#missing"); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("missing: %v", err)
	}
	if _, err := r.ReloadFrom(ctx, p, "#plain"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("no source: %v", err)
	}
}

func TestSequenceLastRequestWins(t *testing.T) {
	for _, tt := range []struct {
		policy SequencePolicy
		want   string
		stale  bool
	}{
		{LastRequestWins, "fast", true},
		{LastResponseWins, "slow", false},
	} {
		t.Run(tt.policy.String(), func(t *testing.T) {
			srv := NewFragmentServer(map[string]string{"/fast": `<p>fast</p>`})
			defer srv.Close()
			srv.Handle("/slow", FragmentRoute{Body: `<p>slow</p>`, Delay: 200 * time.Millisecond})

			p, _ := ParsePage(srv.PageURL("/"), `<body><div id="box"></div></body>`)
			r := New(WithSequencePolicy(tt.policy))
			ctx := context.Background()

			type result struct {
				out Outcome
				err error
			}
			done := make(chan result, 1)
			go func() {
				out, err := r.Load(ctx, p, Request{Target: "#box", Source: "/slow", Swap: SwapInner})
				done <- result{out, err}
			}()
			for deadline := time.Now().Add(2 * time.Second); len(srv.Requests()) == 0; {
				if time.Now().After(deadline) {
					t.Fatal("slow request never arrived")
				}
				time.Sleep(5 * time.Millisecond)
			}

			if _, err := r.Load(ctx, p, Request{Target: "#box", Source: "/fast", Swap: SwapInner}); err != nil {
				t.Fatal(err)
			}
			slow := <-done

			if slow.out.Stale != tt.stale {
				t.Errorf("stale = %v, want %v", slow.out.Stale, tt.stale)
			}
			if tt.stale && !errors.Is(slow.err, ErrStale) {
				t.Errorf("error = %v, want ErrStale", slow.err)
			}
			if html, _ := p.OuterHTML("#box"); !strings.Contains(html, tt.want) {
				t.Errorf("box = %s, want %s", html, tt.want)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	srv := newListServer()
	defer srv.Close()
	r, p := newTestPage(t, srv, `<body><p>stale copy</p></body>`)

	out, err := r.Refresh(context.Background(), p)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if out.Rehydrated == 0 {
		t.Errorf("outcome = %+v", out)
	}
	res, _ := TestSnapshot(p)
	if res.HTMLContains("stale copy") || !res.HTMLContains("10 items") {
		t.Errorf("page = %s", res.HTML)
	}
	trigger, err := p.Node("#loadmore")
	if err != nil {
		t.Fatal(err)
	}
	if p.Bound(trigger, "click") != 1 {
		t.Error("refreshed page not rehydrated")
	}
}

func TestBuiltinsCanBeOverridden(t *testing.T) {
	reg := NewRegistry()
	called := 0
	reg.MustRegister(InitToggleButton, ".my-toggle", InitializerFunc(func(context.Context, *Page, *goquery.Selection) error {
		called++
		return nil
	}))
	r := New(WithRegistry(reg))
	if names := r.Registry().Names(); len(names) != 3 || names[0] != InitToggleButton {
		t.Errorf("names = %v", names)
	}

	p, _ := ParsePage("http://example.com/", `<body><i class="my-toggle"></i><b class="toggle-button" data-toggle="#x"></b></body>`)
	if _, err := r.Init(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if called != 1 {
		t.Errorf("custom toggle ran %d times", called)
	}
}

func TestIDSelector(t *testing.T) {
	if s, err := IDSelector("block-1"); err != nil || s != "#block-1" {
		t.Errorf("IDSelector = %q, %v", s, err)
	}
	for _, bad := range []string{"", "a b", "a.b"} {
		if _, err := IDSelector(bad); !errors.Is(err, ErrInvalidSelector) {
			t.Errorf("IDSelector(%q) error = %v", bad, err)
		}
	}
}
