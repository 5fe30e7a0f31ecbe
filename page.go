package hxreload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Event is delivered to handlers bound with Page.On.
type Event struct {
	Type string
	Node *html.Node
	Page *Page
}

// Handler reacts to an event on a node.
type Handler func(ctx context.Context, ev Event) error

type binding struct {
	key string
	fn  Handler
}

// Page is a loaded HTML document plus the handlers bound to its nodes.
//
// The document is the only shared mutable resource. All mutations go
// through the page lock; handlers run without it, so a handler may fetch
// and then splice.
type Page struct {
	mu       sync.Mutex
	url      *url.URL
	doc      *goquery.Document
	handlers map[*html.Node]map[string][]binding
	// marks records which initializers already ran on a node.
	marks map[*html.Node]map[string]bool
	gens  map[string]uint64
}

// NewPage parses an HTML document loaded from rawURL.
func NewPage(rawURL string, r io.Reader) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: page url %q: %v", ErrInvalidRequest, rawURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	doc.Url = u
	return &Page{
		url:      u,
		doc:      doc,
		handlers: make(map[*html.Node]map[string][]binding),
		marks:    make(map[*html.Node]map[string]bool),
		gens:     make(map[string]uint64),
	}, nil
}

// ParsePage is NewPage for an in-memory document.
func ParsePage(rawURL, markup string) (*Page, error) {
	return NewPage(rawURL, strings.NewReader(markup))
}

// URL returns a copy of the page URL.
func (p *Page) URL() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := *p.url
	return &u
}

// Path returns the path of the page URL, "/" when empty.
func (p *Page) Path() string {
	u := p.URL()
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// Do runs fn with exclusive access to the document.
func (p *Page) Do(fn func(doc *goquery.Document) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.doc)
}

// HTML renders the whole document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var buf bytes.Buffer
	for _, n := range p.doc.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// OuterHTML renders every element matching selector, concatenated.
func (p *Page) OuterHTML(selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var rerr error
	sel.Each(func(_ int, s *goquery.Selection) {
		if rerr != nil {
			return
		}
		out, err := goquery.OuterHtml(s)
		if err != nil {
			rerr = err
			return
		}
		sb.WriteString(out)
	})
	return sb.String(), rerr
}

// Count returns how many elements match selector.
func (p *Page) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return 0, err
	}
	return sel.Length(), nil
}

// Attr returns an attribute of the first element matching selector.
func (p *Page) Attr(selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return "", false, err
	}
	v, ok := sel.First().Attr(name)
	return v, ok, nil
}

// HasClass reports whether the first element matching selector carries class.
func (p *Page) HasClass(selector, class string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return false, err
	}
	if sel.Length() == 0 {
		return false, fmt.Errorf("%w: %s", ErrTargetNotFound, selector)
	}
	return sel.First().HasClass(class), nil
}

// Node returns the first element matching selector.
func (p *Page) Node(selector string) (*html.Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.find(selector)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, selector)
	}
	return sel.Get(0), nil
}

// find must be called with p.mu held.
func (p *Page) find(selector string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}
	return p.doc.FindMatcher(m), nil
}

// On binds h to event on n under key. Binding the same key twice replaces
// the earlier handler instead of adding a second one.
func (p *Page) On(n *html.Node, event, key string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	events, ok := p.handlers[n]
	if !ok {
		events = make(map[string][]binding)
		p.handlers[n] = events
	}
	for i, b := range events[event] {
		if b.key == key {
			events[event][i].fn = h
			return
		}
	}
	events[event] = append(events[event], binding{key: key, fn: h})
}

// Bound returns how many handlers are bound to event on n.
func (p *Page) Bound(n *html.Node, event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers[n][event])
}

// Dispatch runs the handlers bound to event on n in binding order and
// returns how many ran. Handler errors are joined; one failing handler does
// not stop the rest.
func (p *Page) Dispatch(ctx context.Context, n *html.Node, event string) (int, error) {
	p.mu.Lock()
	bs := append([]binding(nil), p.handlers[n][event]...)
	p.mu.Unlock()

	var errs []error
	for _, b := range bs {
		if err := b.fn(ctx, Event{Type: event, Node: n, Page: p}); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %q: %w", event, b.key, err))
		}
	}
	return len(bs), errors.Join(errs...)
}

// Click dispatches a click on the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) (int, error) {
	n, err := p.Node(selector)
	if err != nil {
		return 0, err
	}
	return p.Dispatch(ctx, n, "click")
}

// forget drops the handlers and rehydration marks of every node in the
// given subtrees. Must be called with p.mu held.
func (p *Page) forget(roots ...*html.Node) {
	if len(p.handlers) == 0 && len(p.marks) == 0 {
		return
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		delete(p.handlers, n)
		delete(p.marks, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
}

// replaceDocument swaps the whole document. Must be called with p.mu held.
func (p *Page) replaceDocument(doc *goquery.Document) {
	doc.Url = p.url
	p.doc = doc
	p.handlers = make(map[*html.Node]map[string][]binding)
	p.marks = make(map[*html.Node]map[string]bool)
}

// claim marks n as initialized by name and reports whether the caller
// should run the initializer. Must be called with p.mu held.
func (p *Page) claim(n *html.Node, name string) bool {
	done, ok := p.marks[n]
	if !ok {
		done = make(map[string]bool)
		p.marks[n] = done
	}
	if done[name] {
		return false
	}
	done[name] = true
	return true
}

// release undoes claim after a failed initializer so a later pass retries.
func (p *Page) release(n *html.Node, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.marks[n], name)
	if len(p.marks[n]) == 0 {
		delete(p.marks, n)
	}
}

// attached reports whether n is still part of the document. Must be called
// with p.mu held.
func (p *Page) attached(n *html.Node) bool {
	return n != nil && p.doc.FindNodes(n).Length() > 0
}

// initialized reports whether name already ran on n.
func (p *Page) initialized(n *html.Node, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marks[n][name]
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}
