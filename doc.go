// Package hxreload implements partial page replace-and-rehydrate on top of
// parsed HTML documents.
//
// A Page is a loaded HTML document plus the event handlers bound to its
// nodes. Interacting with a Page (Click, Dispatch) runs the handlers that
// initializers attached to it, and those handlers drive a single linear
// pipeline:
//
//	interaction -> Fetcher -> Splice -> Registry.Rehydrate -> RestoreState
//
// # Fragment Fetcher
//
// A Request names a target selector and a source descriptor. The source uses
// the familiar "url selector" form, where the optional selector is applied to
// the fetched HTML to extract only the relevant fragment:
//
//	req := hxreload.Request{Target: "#target"}
//	req.Source, req.Select = hxreload.ParseSource("/p2 .list")
//
// Fetches never mutate the page. Failures are returned as typed errors
// (ErrNetwork, *StatusError, ErrMalformedJSON) instead of being swallowed.
//
// # Splicing and pagination
//
// Splice inserts fetched content relative to a target using the same swap
// modes HTMX uses (outerHTML, beforebegin, ...). Click-to-load triggers follow
// the continuation rule: when the fetched document contains an element with
// the trigger's id, the trigger is rebound to that element's data-source and
// data-target; when it does not, the list is exhausted and the trigger is
// removed.
//
// # Rehydration
//
// Initializers are registered explicitly with a Registry, keyed by name and
// selector:
//
//	r := hxreload.New()
//	r.Registry().MustRegister("tooltip", "[data-tooltip]", tooltipInit)
//
// After every splice the Registry walks the inserted subtree and runs each
// matching initializer exactly once per node. The Page remembers which
// initializers ran on each node, so running Rehydrate twice never binds a
// handler twice. The bookkeeping never shows up in the markup.
//
// # State carrying
//
// A binary marker such as "expanded" is captured from the target before a
// reload, sent to the server as a query parameter (and optionally as a signed
// state token), and reapplied client-side once the new content lands.
//
// # Sequencing
//
// Overlapping reloads of the same target are resolved by a SequencePolicy.
// The default, LastRequestWins, discards responses that were superseded by a
// newer request to the same target and reports them with ErrStale.
package hxreload
