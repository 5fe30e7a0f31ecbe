package demo

import (
	"context"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/hxreload"
)

// Ids and selectors shared by the page and its fragments.
const (
	listClass  = "list"
	targetID   = "target"
	triggerID  = "loadmore"
	countID    = "count"
	blockID    = "block"
	columnsID  = "columns"
	wsEndpoint = "/ws"
)

// pageSource is the data-source of the trigger loading page n.
func pageSource(n int) string {
	return "/page/" + strconv.Itoa(n) + " ." + listClass
}

func raw(s string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func listView(items []*Item) templ.Component {
	children := make([]templ.Component, 0, len(items))
	for _, it := range items {
		children = append(children, hxreload.Element("li",
			templ.Attributes{"id": it.ID, "data-tag": string(it.Tag)},
			hxreload.Text(it.Title)))
	}
	return hxreload.Element("ul", templ.Attributes{"class": listClass}, templ.Join(children...))
}

// triggerView is the click-to-load trigger for page next. The same markup
// is the sentinel in a fragment response.
func triggerView(next int) templ.Component {
	return hxreload.ClickToLoad(triggerID, pageSource(next), "#"+targetID, "Load more")
}

func countView(shown, total int, oob bool) templ.Component {
	attrs := templ.Attributes{"id": countID}
	if oob {
		for k, v := range hxreload.SwapOOBAttrs(hxreload.SwapOuter) {
			attrs[k] = v
		}
	}
	return hxreload.Element("span", attrs, hxreload.Text(fmt.Sprintf("%d of %d shown", shown, total)))
}

// pageFragment is the answer to /page/{n}: the list, the sentinel when more
// pages follow, the updated count and a toast, the last two out-of-band.
func pageFragment(items []*Item, n int, more bool, shown, total int) templ.Component {
	parts := []templ.Component{listView(items)}
	if more {
		parts = append(parts, triggerView(n+1))
	}
	parts = append(parts, countView(shown, total, true))
	if !more {
		parts = append(parts, raw(hxreload.RenderFlashesOOB([]hxreload.Flash{
			{Level: hxreload.FlashInfo, Message: "All items loaded"},
		})))
	}
	return templ.Join(parts...)
}

// blockView is the reload-from block. Expanded blocks show the details.
func blockView(expanded bool, now time.Time) templ.Component {
	body := []templ.Component{
		hxreload.Element("button", hxreload.ToggleAttrs("#"+blockID, ""), hxreload.Text("Details")),
		hxreload.Element("p", templ.Attributes{"class": "stamp"}, hxreload.Text("Rendered "+now.Format(time.RFC3339))),
	}
	if expanded {
		body = append(body, hxreload.Element("div", templ.Attributes{"class": "details"}, hxreload.Text("Details are visible")))
	}
	return hxreload.ReloadBlock(blockID, "/block", expanded, templ.Join(body...))
}

// columnsView renders the column chooser of the item table.
func columnsView(columns []string, hidden map[string]bool) templ.Component {
	children := make([]templ.Component, 0, len(columns))
	for _, c := range columns {
		attrs := templ.Attributes{"data-column": c, "class": "column"}
		if hidden[c] {
			attrs["class"] = "column hidden"
		}
		children = append(children, hxreload.Element("li", attrs, hxreload.Text(c)))
	}
	return hxreload.Element("ul", templ.Attributes{"id": columnsID}, templ.Join(children...))
}

func breadcrumbsView(crumbs []string) templ.Component {
	children := make([]templ.Component, 0, len(crumbs))
	for _, c := range crumbs {
		children = append(children, hxreload.Element("a", templ.Attributes{"href": c}, hxreload.Text(c)))
	}
	return hxreload.Element("nav", templ.Attributes{"class": "breadcrumbs"}, templ.Join(children...))
}

// pageView is the full document.
type pageView struct {
	Locale  string
	Schema  string
	Channel string
	Items   []*Item
	More    bool
	Total   int
	Block   templ.Component
}

func (v pageView) Render(ctx context.Context, w io.Writer) error {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html lang="` + html.EscapeString(v.Locale) + `"><head><title>hxreload</title></head>`)
	sb.WriteString(`<body data-websocket-endpoint="` + wsEndpoint + `" data-websocket-schema="` + html.EscapeString(v.Schema) + `"`)
	if v.Channel != "" {
		sb.WriteString(` data-websocket-channel="` + html.EscapeString(v.Channel) + `"`)
	}
	sb.WriteString(`>`)
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	parts := []templ.Component{
		countView(len(v.Items), v.Total, false),
		listView(v.Items),
		hxreload.Placeholder(targetID),
	}
	if v.More {
		parts = append(parts, triggerView(2))
	}
	if v.Block != nil {
		parts = append(parts, v.Block)
	}
	parts = append(parts, hxreload.ToastContainer())
	if err := templ.Join(parts...).Render(ctx, w); err != nil {
		return err
	}
	_, err := io.WriteString(w, `</body></html>`)
	return err
}
