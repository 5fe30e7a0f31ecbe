package hxreload

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// LinkScope selects which links of a page are checked.
type LinkScope string

const (
	LinksExternal LinkScope = "external"
	LinksInternal LinkScope = "internal"
	LinksAll      LinkScope = "all"
)

// LinkStatus is the result of checking one link.
type LinkStatus struct {
	URL      string
	Internal bool
	Status   int
	Err      error
}

// Healthy reports whether the link answered with a 2xx status.
func (s LinkStatus) Healthy() bool {
	return s.Err == nil && s.Status >= 200 && s.Status < 300
}

// PageLinks returns the absolute http(s) links of the page in document
// order, without duplicates, filtered by scope. Links on the page's host
// are internal.
func PageLinks(p *Page, scope LinkScope) []string {
	base := p.URL()
	var out []string
	seen := make(map[string]bool)
	_ = p.Do(func(doc *goquery.Document) error {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href := strings.TrimSpace(s.AttrOr("href", ""))
			ref, err := url.Parse(href)
			if err != nil || href == "" || strings.HasPrefix(href, "#") {
				return
			}
			abs := base.ResolveReference(ref)
			if abs.Scheme != "http" && abs.Scheme != "https" {
				return
			}
			abs.Fragment = ""
			internal := abs.Host == base.Host
			switch scope {
			case LinksExternal:
				if internal {
					return
				}
			case LinksInternal:
				if !internal {
					return
				}
			}
			u := abs.String()
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		})
		return nil
	})
	return out
}

// CheckLinks issues a HEAD request for every link, at most limit at a time,
// and returns one status per link in input order. A failing link never
// aborts the others; only context cancellation does.
func (f *Fetcher) CheckLinks(ctx context.Context, base *url.URL, links []string, limit int) ([]LinkStatus, error) {
	if limit <= 0 {
		limit = 4
	}
	out := make([]LinkStatus, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, link := range links {
		g.Go(func() error {
			st := LinkStatus{URL: link}
			if base != nil {
				if u, err := url.Parse(link); err == nil {
					st.Internal = base.ResolveReference(u).Host == base.Host
				}
			}
			frag, err := f.Fetch(gctx, base, Request{Source: link, Method: MethodHead, Swap: SwapNone})
			var se *StatusError
			switch {
			case err == nil:
				st.Status = frag.StatusCode
			case errors.As(err, &se):
				st.Status = se.Code
			case isContextDone(err) && ctx.Err() != nil:
				return err
			default:
				st.Err = err
			}
			out[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
