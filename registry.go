package hxreload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

type registration struct {
	name     string
	selector string
	matcher  cascadia.Selector
	init     Initializer
}

// Registry is the table of initializers run on newly inserted content.
//
// It plays the subscriber side of a publish step: after a splice announces
// new content, every registered initializer whose selector matches is run
// on it. Initializers are independent of each other; they run in
// registration order only to keep output deterministic.
type Registry struct {
	mu      sync.RWMutex
	entries []*registration
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds an initializer under a unique name for every element
// matching selector. The selector is compiled here, so mistakes surface at
// registration time rather than during a reload.
func (reg *Registry) Register(name, selector string, init Initializer) error {
	if name == "" {
		return fmt.Errorf("%w: empty initializer name", ErrInvalidRequest)
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.names[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateInitializer, name)
	}
	reg.names[name] = struct{}{}
	reg.entries = append(reg.entries, &registration{
		name:     name,
		selector: selector,
		matcher:  m,
		init:     init,
	})
	return nil
}

// MustRegister is Register that panics on error. Intended for composition
// roots where a bad selector is a programming error.
func (reg *Registry) MustRegister(name, selector string, init Initializer) {
	if err := reg.Register(name, selector, init); err != nil {
		panic(err)
	}
}

// Names returns the registered initializer names in registration order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, len(reg.entries))
	for i, e := range reg.entries {
		out[i] = e.name
	}
	return out
}

type pending struct {
	entry *registration
	node  *html.Node
}

// Rehydrate runs every matching initializer on root and its descendants
// and returns how many initializer calls were made. Nodes already
// initialized by a given initializer are skipped, which makes repeated
// calls harmless.
//
// A failing initializer does not stop the others. Its node is unmarked so
// a later pass can retry, and the errors are joined.
func (reg *Registry) Rehydrate(ctx context.Context, p *Page, root *goquery.Selection) (int, error) {
	reg.mu.RLock()
	entries := append([]*registration(nil), reg.entries...)
	reg.mu.RUnlock()

	p.mu.Lock()
	work := p.collect(entries, root)
	p.mu.Unlock()

	var errs []error
	for _, w := range work {
		if err := ctx.Err(); err != nil {
			// Unclaimed work stays unmarked for the next pass.
			p.release(w.node, w.entry.name)
			continue
		}
		el := p.wrap(w.node)
		if err := w.entry.init.Init(ctx, p, el); err != nil {
			p.release(w.node, w.entry.name)
			errs = append(errs, fmt.Errorf("initializer %q: %w", w.entry.name, err))
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return len(work), errors.Join(errs...)
}

// RehydrateAll runs Rehydrate over the whole document.
func (reg *Registry) RehydrateAll(ctx context.Context, p *Page) (int, error) {
	p.mu.Lock()
	root := p.doc.Selection
	p.mu.Unlock()
	return reg.Rehydrate(ctx, p, root)
}

// collect claims every (initializer, node) pair that still needs to run.
// Must be called with the page lock held.
func (p *Page) collect(entries []*registration, root *goquery.Selection) []pending {
	var work []pending
	for _, e := range entries {
		var nodes []*html.Node
		nodes = append(nodes, root.FilterMatcher(e.matcher).Nodes...)
		nodes = append(nodes, root.FindMatcher(e.matcher).Nodes...)
		for _, n := range nodes {
			if p.claim(n, e.name) {
				work = append(work, pending{entry: e, node: n})
			}
		}
	}
	return work
}

// wrap returns a one-element selection for n.
func (p *Page) wrap(n *html.Node) *goquery.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.FindNodes(n)
}
