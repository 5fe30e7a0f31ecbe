package hxreload

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Continuation is the next-page pointer carried by a click-to-load sentinel.
// It mirrors the data-source and data-target attributes of the trigger.
type Continuation struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// IsZero returns true if the continuation is empty/unset.
func (c Continuation) IsZero() bool {
	return c.Source == ""
}

// continuationOf reads the continuation of a trigger node.
func continuationOf(n *html.Node) Continuation {
	return Continuation{
		Source: attr(n, "data-source"),
		Target: attr(n, "data-target"),
	}
}

// findSentinel looks for an element with the trigger's id anywhere in the
// fetched document. A trigger without an id has no sentinel.
func findSentinel(doc *goquery.Document, id string) (Continuation, bool) {
	if id == "" {
		return Continuation{}, false
	}
	var found *html.Node
	doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s.Get(0)
			return false
		}
		return true
	})
	if found == nil {
		return Continuation{}, false
	}
	return continuationOf(found), true
}

// stripSentinels removes copies of the sentinel from content that is about
// to be inserted, so the page never holds two elements with the same id.
// Returns the remaining top-level nodes.
func stripSentinels(content *goquery.Selection, id string) []*html.Node {
	var nodes []*html.Node
	content.Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if id != "" && n.Type == html.ElementNode && attr(n, "id") == id {
			return
		}
		if id != "" {
			s.Find("[id]").Each(func(_ int, inner *goquery.Selection) {
				if v, _ := inner.Attr("id"); v == id {
					inner.Remove()
				}
			})
		}
		nodes = append(nodes, n)
	})
	return nodes
}
