package hxreload

// Outcome reports what a reload did to the page.
//
// Every Reloader operation returns an Outcome alongside its error, so the
// "nothing visibly happened" case is an explicit, inspectable branch:
//
//	out, err := r.LoadMore(ctx, page, trigger)
//	switch {
//	case hxreload.IsDegraded(err):
//	    // page untouched; the user may click again
//	case err != nil:
//	    return err
//	case out.Exhausted:
//	    // last page reached, trigger removed
//	}
type Outcome struct {
	// Target is the selector the fragment was placed against.
	Target string

	// URL is the resolved fragment URL; empty when no request was made.
	URL string

	// Status is the HTTP status of the fragment response.
	Status int

	// Inserted counts the elements placed into the page, out-of-band
	// swaps included.
	Inserted int

	// Rehydrated counts initializer calls made on the inserted content.
	Rehydrated int

	// Continued is set when a click-to-load trigger was rebound to the
	// next page.
	Continued bool

	// Exhausted is set when a click-to-load trigger was removed because
	// the response carried no sentinel.
	Exhausted bool

	// Stale is set when the response was discarded because a newer request
	// for the same target had started.
	Stale bool

	// Toggled is set when a toggle button flipped its marker.
	Toggled bool

	// State is the carried state, if any.
	State *ToggleState
}

// Applied reports whether the page was changed.
func (o Outcome) Applied() bool {
	return !o.Stale && (o.Inserted > 0 || o.Continued || o.Exhausted || o.Toggled)
}
