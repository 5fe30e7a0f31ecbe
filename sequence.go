package hxreload

import "fmt"

// SequencePolicy decides what happens when several reloads of the same
// target overlap.
type SequencePolicy int

const (
	// LastRequestWins applies a response only if no newer request for the
	// same target was started in the meantime. Superseded responses are
	// dropped with ErrStale.
	LastRequestWins SequencePolicy = iota

	// LastResponseWins applies every response in arrival order, so a slow
	// early request can overwrite newer content.
	LastResponseWins
)

func (s SequencePolicy) String() string {
	switch s {
	case LastRequestWins:
		return "last-request"
	case LastResponseWins:
		return "last-response"
	}
	return fmt.Sprintf("SequencePolicy(%d)", int(s))
}

// ParseSequencePolicy accepts "last-request" and "last-response".
// An empty string yields LastRequestWins.
func ParseSequencePolicy(s string) (SequencePolicy, error) {
	switch s {
	case "", "last-request":
		return LastRequestWins, nil
	case "last-response":
		return LastResponseWins, nil
	}
	return 0, fmt.Errorf("%w: unknown sequence policy %q", ErrInvalidRequest, s)
}

// begin starts a request for target and returns its generation.
func (p *Page) begin(target string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gens[target]++
	return p.gens[target]
}

// current reports whether gen is still the newest request for target.
// Must be called with p.mu held.
func (p *Page) current(target string, gen uint64) bool {
	return p.gens[target] == gen
}
