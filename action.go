package hxreload

import (
	"github.com/a-h/templ"
)

// ClickToLoadAttrs builds the attributes of a click-to-load trigger or of
// its sentinel in a paginated response. source is "url selector"; target
// is the selector the next page is inserted before.
//
//	<a { hxreload.ClickToLoadAttrs("more", "/items?page=2 .item", "#more")... }>Load more</a>
//
// A response that renders the same attributes under the same id continues
// the pagination; a response without them ends it.
func ClickToLoadAttrs(id, source, target string) templ.Attributes {
	attrs := templ.Attributes{
		"class":       "click-to-load",
		"data-source": source,
	}
	if id != "" {
		attrs["id"] = id
	}
	if target != "" {
		attrs["data-target"] = target
	}
	return attrs
}

// ReloadFromAttrs marks a block as reloadable from source. carry names the
// marker kept across reloads; empty means "expanded", "none" disables it.
func ReloadFromAttrs(source, carry string) templ.Attributes {
	attrs := templ.Attributes{"data-reload-from": source}
	if carry != "" {
		attrs["data-reload-carry"] = carry
	}
	return attrs
}

// ToggleAttrs builds a toggle button flipping marker on target. An empty
// marker means "expanded".
func ToggleAttrs(target, marker string) templ.Attributes {
	attrs := templ.Attributes{
		"class":       "toggle-button",
		"data-toggle": target,
	}
	if marker != "" {
		attrs["data-toggle-class"] = marker
	}
	return attrs
}

// SwapOOBAttrs marks an element of a fragment response for an out-of-band
// swap into the page element with the same id.
func SwapOOBAttrs(mode SwapMode) templ.Attributes {
	if mode == "" || mode == SwapOuter {
		return templ.Attributes{oobAttr: "true"}
	}
	return templ.Attributes{oobAttr: string(mode)}
}
