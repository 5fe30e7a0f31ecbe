package hxreload

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Initializer is implemented by consumers that attach behavior to freshly
// inserted content: toggle buttons, tooltips, pagination triggers, widgets.
//
// Init receives a selection holding exactly one matching element. It runs
// without the page lock, so it may call Page.On, fetch, or read the page.
//
// Example:
//
//	func (t *Tooltip) Init(ctx context.Context, p *hxreload.Page, el *goquery.Selection) error {
//	    p.On(el.Get(0), "mouseenter", "tooltip", t.show)
//	    return nil
//	}
//
// The Registry guarantees Init runs at most once per node, so an
// implementation does not need to guard against double binding itself.
type Initializer interface {
	Init(ctx context.Context, p *Page, el *goquery.Selection) error
}

// InitializerFunc adapts a function to the Initializer interface.
type InitializerFunc func(ctx context.Context, p *Page, el *goquery.Selection) error

// Init calls f.
func (f InitializerFunc) Init(ctx context.Context, p *Page, el *goquery.Selection) error {
	return f(ctx, p, el)
}
