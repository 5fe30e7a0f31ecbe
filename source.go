package hxreload

import (
	"fmt"
	"net/http"
	"strings"
)

// Method is the HTTP method a fragment request is issued with.
type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
	MethodHead Method = http.MethodHead
)

// Request describes a single fragment reload. It is created when the user
// interacts with the page and discarded once the response is processed.
type Request struct {
	// Target is the selector of the element the fragment is placed against.
	Target string

	// Source is the absolute or page-relative URL to fetch.
	Source string

	// Select is an optional selector applied to the fetched HTML to extract
	// only the relevant part. Empty means the whole body.
	Select string

	// Method defaults to GET.
	Method Method

	// Query holds extra request parameters. For GET and HEAD they are added
	// to the URL, for POST they form the body.
	Query map[string]string

	// Swap defaults to SwapOuter.
	Swap SwapMode

	// Carry names a binary marker (class) read from the target before the
	// fetch and reapplied after rehydration. Empty disables carrying.
	Carry string

	// TriggerID is the id of the element the user interacted with. It is
	// sent as HX-Trigger.
	TriggerID string
}

// ParseSource splits a source descriptor of the form "url selector" into
// its URL and optional sub-selector:
//
//	ParseSource("/p2 .list")   // "/p2", ".list"
//	ParseSource("/p2")         // "/p2", ""
//	ParseSource("/p2 ul > li") // "/p2", "ul > li"
func ParseSource(s string) (rawURL, selector string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t\n")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

// FormatSource is the inverse of ParseSource.
func FormatSource(rawURL, selector string) string {
	if selector == "" {
		return rawURL
	}
	return rawURL + " " + selector
}

// Validate checks that the request can be issued.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidRequest)
	}
	switch r.method() {
	case MethodGet, MethodPost, MethodHead:
	default:
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, r.Method)
	}
	if _, err := ParseSwapMode(string(r.Swap)); err != nil {
		return err
	}
	if r.Target == "" && r.swap() != SwapNone {
		return fmt.Errorf("%w: empty target", ErrInvalidRequest)
	}
	return nil
}

func (r Request) method() Method {
	if r.Method == "" {
		return MethodGet
	}
	return Method(strings.ToUpper(string(r.Method)))
}

func (r Request) swap() SwapMode {
	if r.Swap == "" {
		return SwapOuter
	}
	return r.Swap
}

// targetID returns the id portion of a plain "#id" target selector, which
// is what HX-Target carries. Complex selectors yield "".
func targetID(selector string) string {
	if !strings.HasPrefix(selector, "#") {
		return ""
	}
	id := selector[1:]
	if strings.ContainsAny(id, " .#[>:+~,") {
		return ""
	}
	return id
}
