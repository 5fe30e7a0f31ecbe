package hxreload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// TestResult holds the state of a page after a simulated interaction.
//
// Provides convenience methods for asserting on the resulting HTML and the
// toasts shown on the page.
type TestResult struct {
	HTML       string
	Dispatched int
	Flashes    []Flash
}

// TestClick dispatches a click on the first element matching selector and
// returns the rendered page afterwards. Handler errors are returned along
// with the result, so degraded reloads can still be inspected:
//
//	res, err := hxreload.TestClick(ctx, page, "#more")
//	if !res.HTMLContains("item 11") {
//	    t.Fatal("second page not loaded")
//	}
func TestClick(ctx context.Context, p *Page, selector string) (*TestResult, error) {
	n, derr := p.Click(ctx, selector)
	res, err := TestSnapshot(p)
	if err != nil {
		return nil, err
	}
	res.Dispatched = n
	return res, derr
}

// TestSnapshot renders the page into a TestResult.
func TestSnapshot(p *Page) (*TestResult, error) {
	out, err := p.HTML()
	if err != nil {
		return nil, err
	}
	return &TestResult{HTML: out, Flashes: parseFlashesFromHTML(out)}, nil
}

// HTMLContains checks if the HTML contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// HTMLContainsAny checks if the HTML contains any of the given substrings.
func (r *TestResult) HTMLContainsAny(substrs ...string) bool {
	for _, s := range substrs {
		if strings.Contains(r.HTML, s) {
			return true
		}
	}
	return false
}

// HasFlash checks if a toast with the given level and message is shown.
func (r *TestResult) HasFlash(level, message string) bool {
	for _, f := range r.Flashes {
		if f.Level == level && f.Message == message {
			return true
		}
	}
	return false
}

// HasFlashLevel checks if any toast with the given level is shown.
func (r *TestResult) HasFlashLevel(level string) bool {
	for _, f := range r.Flashes {
		if f.Level == level {
			return true
		}
	}
	return false
}

// parseFlashesFromHTML extracts toasts rendered by RenderFlashesOOB.
func parseFlashesFromHTML(markup string) []Flash {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	var flashes []Flash
	doc.Find(".toast").Each(func(_ int, s *goquery.Selection) {
		f := Flash{}
		for _, c := range strings.Fields(s.AttrOr("class", "")) {
			if lvl, ok := strings.CutPrefix(c, "toast-"); ok {
				f.Level = lvl
			}
		}
		title := s.Find("strong").First()
		f.Title = title.Text()
		title.Remove()
		f.Message = strings.TrimSpace(s.Text())
		flashes = append(flashes, f)
	})
	return flashes
}

// FragmentRoute is a canned response of a FragmentServer.
type FragmentRoute struct {
	Status int
	Body   string
	Delay  time.Duration
}

// FragmentServer is an httptest server answering fragment requests from a
// fixed table. Routes are keyed by path, or by path and query when the
// query matters; the cache-bust parameter is ignored for matching.
//
//	srv := hxreload.NewFragmentServer(map[string]string{
//	    "/":   `<ul class="list"><li>1</li></ul><a id="more" ...>`,
//	    "/p2": `<ul class="list"><li>2</li></ul>`,
//	})
//	defer srv.Close()
type FragmentServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]FragmentRoute
	hits     map[string]int
	requests []*http.Request
}

// NewFragmentServer starts a server answering 200 with the given bodies.
func NewFragmentServer(pages map[string]string) *FragmentServer {
	fs := &FragmentServer{
		routes: make(map[string]FragmentRoute),
		hits:   make(map[string]int),
	}
	for path, body := range pages {
		fs.routes[path] = FragmentRoute{Status: http.StatusOK, Body: body}
	}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	return fs
}

// Handle sets or replaces a route.
func (fs *FragmentServer) Handle(key string, route FragmentRoute) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if route.Status == 0 {
		route.Status = http.StatusOK
	}
	fs.routes[key] = route
}

// Hits returns how many requests a route key answered.
func (fs *FragmentServer) Hits(key string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[key]
}

// Requests returns the requests received so far, in arrival order.
func (fs *FragmentServer) Requests() []*http.Request {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]*http.Request(nil), fs.requests...)
}

// PageURL returns the absolute URL of path on the server.
func (fs *FragmentServer) PageURL(path string) string {
	return fs.URL + path
}

func (fs *FragmentServer) serve(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.requests = append(fs.requests, r.Clone(context.Background()))
	key := r.URL.Path
	if q := StripCacheBust(r); q != "" {
		if _, ok := fs.routes[key+"?"+q]; ok {
			key += "?" + q
		}
	}
	route, ok := fs.routes[key]
	if ok {
		fs.hits[key]++
	}
	fs.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if route.Delay > 0 {
		select {
		case <-time.After(route.Delay):
		case <-r.Context().Done():
			return
		}
	}
	ct := "text/html; charset=utf-8"
	if strings.HasPrefix(strings.TrimSpace(route.Body), "{") || strings.HasPrefix(strings.TrimSpace(route.Body), "[") {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(route.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(route.Body))
	}
}
