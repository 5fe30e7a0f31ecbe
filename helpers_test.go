package hxreload

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsFragmentRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"htmx", map[string]string{"HX-Request": "true"}, true},
		{"xhr", map[string]string{"X-Requested-With": "XMLHttpRequest"}, true},
		{"plain", nil, false},
		{"htmx false", map[string]string{"HX-Request": "false"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := IsFragmentRequest(r); got != tt.want {
				t.Errorf("IsFragmentRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("HX-Current-URL", "http://example.com/list")
	r.Header.Set("HX-Trigger", "loadmore")
	r.Header.Set("HX-Target", "target")
	r.Header.Set("X-Request-ID", "abc")

	if CurrentURL(r) != "http://example.com/list" || TriggerID(r) != "loadmore" ||
		TargetID(r) != "target" || RequestID(r) != "abc" {
		t.Errorf("headers not read back: %q %q %q %q", CurrentURL(r), TriggerID(r), TargetID(r), RequestID(r))
	}
}

func TestCarriedState(t *testing.T) {
	tests := []struct {
		query  string
		marker string
		want   bool
	}{
		{"expanded=1", "", true},
		{"expanded=true", "expanded", true},
		{"expanded=0", "", false},
		{"", "", false},
		{"open=1", "open", true},
		{"open=1", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/block?"+tt.query, nil)
		if got := CarriedState(r, tt.marker); got != tt.want {
			t.Errorf("CarriedState(%q, %q) = %v, want %v", tt.query, tt.marker, got, tt.want)
		}
	}
}

func TestDecodeStateAbsent(t *testing.T) {
	enc, _ := NewEncoder([]byte("k"))
	r := httptest.NewRequest(http.MethodGet, "/block", nil)
	states, err := DecodeState(r, enc)
	if err != nil || states != nil {
		t.Errorf("DecodeState = %v, %v", states, err)
	}

	r = httptest.NewRequest(http.MethodGet, "/block?"+StateParam+"=bogus", nil)
	if _, err := DecodeState(r, enc); err == nil {
		t.Error("bogus token should fail")
	}
}

func TestStripCacheBust(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/p?_=123&page=2", nil)
	if got := StripCacheBust(r); got != "page=2" {
		t.Errorf("StripCacheBust = %q", got)
	}
}

func TestRender(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if err := Render(rec, r, Placeholder("target")); err != nil {
		t.Fatal(err)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != `<div id="target"></div>` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestClickToLoadComponent(t *testing.T) {
	var buf bytes.Buffer
	err := ClickToLoad("more", "/items?page=2&x=<y> .item", "#more", "Load <more>").Render(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	want := `<a class="click-to-load" data-source="/items?page=2&amp;x=&lt;y&gt; .item" data-target="#more" id="more">Load &lt;more&gt;</a>`
	if buf.String() != want {
		t.Errorf("got  %s\nwant %s", buf.String(), want)
	}

	// The rendered trigger is picked up by the reloader as is.
	p, err := ParsePage("http://example.com/", "<body>"+buf.String()+"</body>")
	if err != nil {
		t.Fatal(err)
	}
	n, _ := p.Node("#more")
	if c := continuationOf(n); c.Source != "/items?page=2&x=<y> .item" || c.Target != "#more" {
		t.Errorf("continuation = %+v", c)
	}
}

func TestReloadBlockComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := ReloadBlock("b1", "/block", true, Placeholder("inner")).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, s := range []string{`id="b1"`, `class="expanded"`, `data-reload-from="/block"`, `<div id="inner"></div>`} {
		if !strings.Contains(got, s) {
			t.Errorf("missing %s in %s", s, got)
		}
	}

	buf.Reset()
	ReloadBlock("b1", "/block", false, nil).Render(context.Background(), &buf)
	if strings.Contains(buf.String(), "class=") {
		t.Errorf("collapsed block should carry no marker: %s", buf.String())
	}
}

func TestAttrBuilders(t *testing.T) {
	a := ClickToLoadAttrs("", "/p2", "")
	if _, ok := a["id"]; ok {
		t.Error("empty id should be omitted")
	}
	if _, ok := a["data-target"]; ok {
		t.Error("empty target should be omitted")
	}

	if r := ReloadFromAttrs("/b", "none"); r["data-reload-carry"] != "none" {
		t.Errorf("ReloadFromAttrs = %v", r)
	}
	if tg := ToggleAttrs("#b", ""); tg["data-toggle"] != "#b" || tg["class"] != "toggle-button" {
		t.Errorf("ToggleAttrs = %v", tg)
	}
	if tg := ToggleAttrs("#b", "open"); tg["data-toggle-class"] != "open" {
		t.Errorf("ToggleAttrs marker = %v", tg)
	}
	if o := SwapOOBAttrs(""); o[oobAttr] != "true" {
		t.Errorf("SwapOOBAttrs outer = %v", o)
	}
	if o := SwapOOBAttrs(SwapBeforeEnd); o[oobAttr] != "beforeend" {
		t.Errorf("SwapOOBAttrs beforeend = %v", o)
	}
}

func TestFragmentServerRouting(t *testing.T) {
	srv := NewFragmentServer(map[string]string{
		"/p":        "plain",
		"/p?page=2": "second",
	})
	defer srv.Close()

	get := func(path string) string {
		resp, err := http.Get(srv.PageURL(path))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return buf.String()
	}
	if got := get("/p?page=2&_=99"); got != "second" {
		t.Errorf("query route = %q", got)
	}
	if got := get("/p?page=3"); got != "plain" {
		t.Errorf("fallback route = %q", got)
	}
	if srv.Hits("/p") != 1 || srv.Hits("/p?page=2") != 1 {
		t.Errorf("hits = %d, %d", srv.Hits("/p"), srv.Hits("/p?page=2"))
	}
	if q := srv.Requests()[0].URL.Query(); q.Get("_") != "99" {
		t.Errorf("request not recorded: %v", q)
	}
}
