package hxreload

import (
	"context"
	"net/http"
	"testing"
)

func TestPageLinks(t *testing.T) {
	p, _ := ParsePage("http://example.com/docs/", `<body>
<a href="/a">a</a>
<a href="b#frag">b</a>
<a href="b">b again</a>
<a href="#top">anchor</a>
<a href="mailto:x@example.com">mail</a>
<a href="https://other.org/x">other</a>
</body>`)

	all := PageLinks(p, LinksAll)
	want := []string{"http://example.com/a", "http://example.com/docs/b", "https://other.org/x"}
	if len(all) != len(want) {
		t.Fatalf("PageLinks = %v, want %v", all, want)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("link %d = %q, want %q", i, all[i], want[i])
		}
	}

	if ext := PageLinks(p, LinksExternal); len(ext) != 1 || ext[0] != "https://other.org/x" {
		t.Errorf("external = %v", ext)
	}
	if in := PageLinks(p, LinksInternal); len(in) != 2 {
		t.Errorf("internal = %v", in)
	}
}

func TestCheckLinks(t *testing.T) {
	srv := NewFragmentServer(map[string]string{"/ok": "fine"})
	defer srv.Close()
	srv.Handle("/gone", FragmentRoute{Status: http.StatusGone})

	f := NewFetcher(FetcherConfig{})
	base := mustURL(t, srv.PageURL("/"))
	links := []string{srv.PageURL("/ok"), "/gone", "/missing", "http://127.0.0.1:1/unreachable"}

	got, err := f.CheckLinks(context.Background(), base, links, 2)
	if err != nil {
		t.Fatalf("CheckLinks: %v", err)
	}
	if len(got) != len(links) {
		t.Fatalf("statuses = %d", len(got))
	}

	if !got[0].Healthy() || !got[0].Internal || got[0].Status != http.StatusOK {
		t.Errorf("ok = %+v", got[0])
	}
	if got[1].Healthy() || got[1].Status != http.StatusGone {
		t.Errorf("gone = %+v", got[1])
	}
	if got[2].Status != http.StatusNotFound {
		t.Errorf("missing = %+v", got[2])
	}
	if got[3].Err == nil || got[3].Healthy() || got[3].Internal {
		t.Errorf("unreachable = %+v", got[3])
	}
	if srv.Hits("/ok") != 1 {
		t.Errorf("/ok hits = %d", srv.Hits("/ok"))
	}
}

func TestCheckLinksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(FetcherConfig{}).CheckLinks(ctx, nil, []string{"http://127.0.0.1:1/"}, 1)
	if err == nil {
		t.Error("cancelled check should fail")
	}
}
