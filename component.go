package hxreload

import (
	"context"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"
)

// ClickToLoad returns the markup of a click-to-load trigger. Render it at
// the end of a paginated list; when the list has more pages, render it
// again with the same id in the response for the next page.
//
//	@hxreload.ClickToLoad("more", "/items?page=2 .item", "#more", "Load more")
func ClickToLoad(id, source, target, label string) templ.Component {
	return Element("a", ClickToLoadAttrs(id, source, target), Text(label))
}

// ReloadBlock wraps body in an element that reloads itself from source.
// expanded renders the carried marker, so a server that honours
// CarriedState produces the same block the client had.
func ReloadBlock(id, source string, expanded bool, body templ.Component) templ.Component {
	attrs := ReloadFromAttrs(source, "")
	attrs["id"] = id
	if expanded {
		attrs["class"] = DefaultCarry
	}
	return Element("div", attrs, body)
}

// Placeholder renders an empty element with the given id for content that
// arrives later, through a reload or an out-of-band swap.
func Placeholder(id string) templ.Component {
	return Element("div", templ.Attributes{"id": id}, nil)
}

// Element writes a tag with attributes in sorted order, so output is
// stable across renders. body may be nil.
func Element(tag string, attrs templ.Attributes, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<"+tag+renderAttrs(attrs)+">"); err != nil {
			return err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

// Text renders s escaped.
func Text(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, html.EscapeString(s))
		return err
	})
}

func renderAttrs(attrs templ.Attributes) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case bool:
			if v {
				sb.WriteString(" " + html.EscapeString(k))
			}
		case string:
			sb.WriteString(" " + html.EscapeString(k) + `="` + html.EscapeString(v) + `"`)
		}
	}
	return sb.String()
}
