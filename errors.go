package hxreload

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for reload operations.
var (
	ErrNetwork              = errors.New("hxreload: network failure")
	ErrStatus               = errors.New("hxreload: unexpected status")
	ErrMalformedJSON        = errors.New("hxreload: malformed json")
	ErrTargetNotFound       = errors.New("hxreload: target not found")
	ErrInvalidRequest       = errors.New("hxreload: invalid request")
	ErrInvalidSelector      = errors.New("hxreload: invalid selector")
	ErrDuplicateInitializer = errors.New("hxreload: duplicate initializer")
	ErrStale                = errors.New("hxreload: response superseded by a newer request")
	ErrInvalidFormat        = errors.New("hxreload: invalid state format")
	ErrSignatureInvalid     = errors.New("hxreload: signature verification failed")
	ErrDecryptFailed        = errors.New("hxreload: state decryption failed")
)

// StatusError is returned when a fragment endpoint answers with a non-2xx
// status. It matches ErrStatus with errors.Is.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hxreload: %s returned %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}

// IsNotFound checks if err is a 404 from a fragment endpoint or a missing
// target in the page.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrTargetNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// IsDecryptionError checks if err is a decryption or signature error.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptFailed) || errors.Is(err, ErrSignatureInvalid)
}

// IsDegraded reports whether err belongs to the failure classes that leave
// the page untouched: network failures, non-2xx answers, malformed JSON and
// superseded responses. The user recovers by repeating the interaction.
func IsDegraded(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrStatus) ||
		errors.Is(err, ErrMalformedJSON) ||
		errors.Is(err, ErrStale)
}
