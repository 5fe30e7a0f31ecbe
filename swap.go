package hxreload

import "fmt"

// SwapMode defines how fetched content is placed relative to the target.
//
// Each mode corresponds to an HTMX hx-swap value, so the same vocabulary is
// used on both sides of the wire. The default is SwapOuter.
//
// See https://htmx.org/attributes/hx-swap/ for visual examples.
type SwapMode string

const (
	// SwapOuter replaces the entire element including its tag (outerHTML).
	// This is the default swap mode.
	SwapOuter SwapMode = "outerHTML"

	// SwapInner replaces only the element's contents, preserving the outer tag (innerHTML).
	SwapInner SwapMode = "innerHTML"

	// SwapBeforeEnd appends the content to the end of the target's contents.
	SwapBeforeEnd SwapMode = "beforeend"

	// SwapAfterEnd inserts the content after the target element (as next sibling).
	SwapAfterEnd SwapMode = "afterend"

	// SwapBeforeBegin inserts the content before the target element (as previous sibling).
	// Click-to-load uses this to grow a list in front of its placeholder.
	SwapBeforeBegin SwapMode = "beforebegin"

	// SwapAfterBegin prepends the content to the start of the target's contents.
	SwapAfterBegin SwapMode = "afterbegin"

	// SwapDelete removes the target element entirely.
	// Fetched content is ignored.
	SwapDelete SwapMode = "delete"

	// SwapNone performs no swap. Out-of-band swaps are still applied.
	SwapNone SwapMode = "none"
)

// ParseSwapMode converts an hx-swap style value into a SwapMode.
// An empty string yields SwapOuter.
func ParseSwapMode(s string) (SwapMode, error) {
	switch m := SwapMode(s); m {
	case "":
		return SwapOuter, nil
	case SwapOuter, SwapInner, SwapBeforeEnd, SwapAfterEnd,
		SwapBeforeBegin, SwapAfterBegin, SwapDelete, SwapNone:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown swap mode %q", ErrInvalidRequest, s)
}

// removesTarget reports whether the mode detaches the target (or its
// children) from the document.
func (m SwapMode) removesTarget() bool {
	return m == SwapOuter || m == SwapInner || m == SwapDelete
}
