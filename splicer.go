package hxreload

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// oobAttr marks fragment elements that are swapped out-of-band, into the
// element with the same id, instead of into the request target.
const oobAttr = "hx-swap-oob"

// Splice places content relative to the first element matching target and
// returns the inserted elements as a selection of the page document.
// Sibling structure around the target is preserved. Handlers bound to
// nodes removed by the swap are forgotten.
func Splice(p *Page, target string, content *goquery.Selection, mode SwapMode) (*goquery.Selection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inserted, err := p.splice(target, content.Nodes, mode)
	if err != nil {
		return nil, err
	}
	return p.selection(inserted), nil
}

// SpliceOOB applies every out-of-band element of the fragment document and
// returns how many were applied. Applied elements are detached from doc.
func SpliceOOB(p *Page, doc *goquery.Document) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inserted, err := p.spliceOOB(doc)
	return len(inserted), err
}

// splice must be called with p.mu held.
func (p *Page) splice(target string, nodes []*html.Node, mode SwapMode) ([]*html.Node, error) {
	if mode == "" {
		mode = SwapOuter
	}
	if mode == SwapNone {
		return nil, nil
	}
	sel, err := p.find(target)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, target)
	}
	return p.spliceInto(sel.First(), nodes, mode)
}

// spliceInto must be called with p.mu held.
func (p *Page) spliceInto(t *goquery.Selection, nodes []*html.Node, mode SwapMode) ([]*html.Node, error) {
	inserted := elements(nodes)
	// goquery reverses the slice in place for some insertions.
	nodes = append([]*html.Node(nil), nodes...)
	switch mode {
	case SwapOuter:
		p.forget(t.Nodes...)
		t.ReplaceWithNodes(nodes...)
	case SwapInner:
		removed := t.Contents()
		p.forget(removed.Nodes...)
		removed.Remove()
		t.AppendNodes(nodes...)
	case SwapBeforeBegin:
		t.BeforeNodes(nodes...)
	case SwapAfterBegin:
		t.PrependNodes(nodes...)
	case SwapBeforeEnd:
		t.AppendNodes(nodes...)
	case SwapAfterEnd:
		t.AfterNodes(nodes...)
	case SwapDelete:
		p.forget(t.Nodes...)
		t.Remove()
		return nil, nil
	case SwapNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown swap mode %q", ErrInvalidRequest, mode)
	}
	return inserted, nil
}

// spliceOOB must be called with p.mu held. Elements whose id is not on the
// page are skipped and reported as ErrTargetNotFound after the others are
// applied.
func (p *Page) spliceOOB(doc *goquery.Document) ([]*html.Node, error) {
	var inserted []*html.Node
	var oobs []*html.Node
	var missing []error
	doc.Find("[" + oobAttr + "]").Each(func(_ int, s *goquery.Selection) {
		oobs = append(oobs, s.Get(0))
	})
	for _, n := range oobs {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		val := attr(n, oobAttr)
		removeAttr(n, oobAttr)

		mode := SwapOuter
		if val != "true" && val != "" {
			m, err := ParseSwapMode(val)
			if err != nil {
				return inserted, err
			}
			mode = m
		}

		id := attr(n, "id")
		t := p.byID(id)
		if t == nil {
			missing = append(missing, fmt.Errorf("%w: out-of-band #%s", ErrTargetNotFound, id))
			continue
		}

		payload := []*html.Node{n}
		if mode != SwapOuter {
			payload = children(n)
		}
		got, err := p.spliceInto(p.doc.FindNodes(t), payload, mode)
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, got...)
	}
	return inserted, errors.Join(missing...)
}

// byID must be called with p.mu held.
func (p *Page) byID(id string) *html.Node {
	if id == "" {
		return nil
	}
	var found *html.Node
	p.doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s.Get(0)
			return false
		}
		return true
	})
	return found
}

// selection wraps nodes of the page document. Must be called with p.mu held.
func (p *Page) selection(nodes []*html.Node) *goquery.Selection {
	return p.doc.FindNodes(nodes...)
}

// detach removes nodes from whatever tree they belong to.
func detach(nodes []*html.Node) {
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	detach(out)
	return out
}

func elements(nodes []*html.Node) []*html.Node {
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out
}
