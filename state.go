package hxreload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pthm/hxreload/lib/encoding"
)

// DefaultCarry is the marker carried across reloads when none is named.
const DefaultCarry = "expanded"

// StateParam is the query parameter holding a signed state token.
const StateParam = "_state"

// ToggleState is a binary UI state read from an element before a reload and
// reapplied after it. It lives for exactly one reload cycle.
type ToggleState struct {
	Selector string `msgpack:"s"`
	Marker   string `msgpack:"m"`
	Toggled  bool   `msgpack:"t"`
}

// CaptureState reads marker from the first element matching selector. The
// state is toggled when the element carries the marker as a class or has
// data-<marker>="true". A missing element yields an untoggled state.
func CaptureState(p *Page, selector, marker string) (ToggleState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captureState(selector, marker)
}

// captureState must be called with p.mu held.
func (p *Page) captureState(selector, marker string) (ToggleState, error) {
	st := ToggleState{Selector: selector, Marker: marker}
	sel, err := p.find(selector)
	if err != nil {
		return st, err
	}
	st.Toggled = toggled(sel.First(), marker)
	return st, nil
}

func toggled(s *goquery.Selection, marker string) bool {
	if s.Length() == 0 {
		return false
	}
	if s.HasClass(marker) {
		return true
	}
	v, _ := s.Attr("data-" + marker)
	return v == "true"
}

// setToggled puts marker on or off for every element of s. The class is
// always updated; a data-<marker> attribute is only rewritten where it
// already exists.
func setToggled(s *goquery.Selection, marker string, on bool) {
	if on {
		s.AddClass(marker)
	} else {
		s.RemoveClass(marker)
	}
	s.Each(func(_ int, el *goquery.Selection) {
		if _, ok := el.Attr("data-" + marker); ok {
			el.SetAttr("data-"+marker, fmt.Sprint(on))
		}
	})
}

// Query adds the state to a request query so the server can render the
// same state. Untoggled states add nothing.
func (s ToggleState) Query(q map[string]string) map[string]string {
	if !s.Toggled {
		return q
	}
	if q == nil {
		q = make(map[string]string)
	}
	q[s.Marker] = "1"
	return q
}

// RestoreState reapplies s on the element matching s.Selector: the marker
// class is added when toggled and removed otherwise, and an existing
// data-<marker> attribute is set to match. Server-rendered state
// and client state may disagree, so the client state always wins.
func RestoreState(p *Page, s ToggleState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restoreState(s)
}

// restoreState must be called with p.mu held.
func (p *Page) restoreState(s ToggleState) error {
	sel, err := p.find(s.Selector)
	if err != nil {
		return err
	}
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, s.Selector)
	}
	setToggled(sel.First(), s.Marker, s.Toggled)
	return nil
}

// EncodeState signs the states into a token for the StateParam parameter.
func EncodeState(enc *Encoder, states ...ToggleState) (string, error) {
	token, err := enc.Encode(states, false)
	if err != nil {
		return "", wrapEncodingError(err)
	}
	return token, nil
}

// EncryptState encrypts the states into an opaque token for the
// StateParam parameter.
func EncryptState(enc *Encoder, states ...ToggleState) (string, error) {
	token, err := enc.Encode(states, true)
	if err != nil {
		return "", wrapEncodingError(err)
	}
	return token, nil
}

// DecodeStateToken verifies and decodes a token produced by EncodeState or
// EncryptState. Signed tokens contain a "." separator, encrypted ones never
// do.
func DecodeStateToken(enc *Encoder, token string) ([]ToggleState, error) {
	var states []ToggleState
	encrypted := !strings.Contains(token, ".")
	if err := enc.Decode(token, encrypted, &states); err != nil {
		return nil, wrapEncodingError(err)
	}
	return states, nil
}

// Encoder signs or encrypts carried state. It is an alias for
// encoding.Encoder.
type Encoder = encoding.Encoder

// NewEncoder creates a state encoder with the given key.
func NewEncoder(key []byte) (*Encoder, error) {
	return encoding.NewEncoder(key)
}

// wrapEncodingError maps encoding errors onto hxreload sentinels.
func wrapEncodingError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, encoding.ErrSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, encoding.ErrDecryptFailed):
		return ErrDecryptFailed
	case errors.Is(err, encoding.ErrInvalidFormat):
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return err
}
