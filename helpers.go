package hxreload

import (
	"net/http"
	"strings"

	"github.com/a-h/templ"
)

// Render writes a templ component to the HTTP response as HTML.
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    hxreload.Render(w, r, listPage(items))
//	}
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsFragmentRequest returns true if the request was sent by a Fetcher or by
// HTMX. Use it to render only the fragment instead of the full layout:
//
//	if hxreload.IsFragmentRequest(r) {
//	    return listItems(page)
//	}
//	return fullPage(page)
func IsFragmentRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true" ||
		r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// CurrentURL returns the URL of the page that issued the request, taken
// from the HX-Current-URL header. Empty for plain browser requests.
func CurrentURL(r *http.Request) string {
	return r.Header.Get("HX-Current-URL")
}

// TriggerID returns the id of the element that triggered the request. For
// click-to-load this is the id the sentinel must carry.
func TriggerID(r *http.Request) string {
	return r.Header.Get("HX-Trigger")
}

// TargetID returns the id of the element the response will be placed
// against, when the target is a plain id selector.
func TargetID(r *http.Request) string {
	return r.Header.Get("HX-Target")
}

// RequestID returns the X-Request-ID sent by the Fetcher.
func RequestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

// CarriedState reports whether the reload carried marker as toggled, so
// the handler can render the block in the same state. Both "1" and "true"
// count.
//
//	if hxreload.CarriedState(r, "expanded") {
//	    block.Expanded = true
//	}
func CarriedState(r *http.Request, marker string) bool {
	if marker == "" {
		marker = DefaultCarry
	}
	switch strings.ToLower(r.URL.Query().Get(marker)) {
	case "1", "true":
		return true
	}
	return false
}

// DecodeState verifies or decrypts the state token of a request. It returns
// (nil, nil) when the request carries none.
func DecodeState(r *http.Request, enc *Encoder) ([]ToggleState, error) {
	token := r.URL.Query().Get(StateParam)
	if token == "" {
		return nil, nil
	}
	return DecodeStateToken(enc, token)
}

// StripCacheBust returns the query of r without the "_" cache-bust
// parameter, for handlers that key caches on the query string.
func StripCacheBust(r *http.Request) string {
	q := r.URL.Query()
	q.Del("_")
	return q.Encode()
}
