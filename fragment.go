package hxreload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Fragment is the raw answer of a fragment endpoint: a piece of
// server-rendered HTML or a small JSON payload.
type Fragment struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string

	once sync.Once
	doc  *goquery.Document
	err  error
}

// IsJSON reports whether the response declared a JSON content type.
func (f *Fragment) IsJSON() bool {
	ct := f.Header.Get("Content-Type")
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

// Document parses the body as HTML. The result is cached, so every caller
// sees (and mutates) the same tree.
func (f *Fragment) Document() (*goquery.Document, error) {
	f.once.Do(func() {
		f.doc, f.err = goquery.NewDocumentFromReader(bytes.NewReader(f.Body))
	})
	return f.doc, f.err
}

// Select applies a sub-selector to the fetched HTML. An empty selector
// yields the top-level nodes of the body.
func (f *Fragment) Select(selector string) (*goquery.Selection, error) {
	doc, err := f.Document()
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	if selector == "" {
		return doc.Find("body").Contents(), nil
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSelector, selector, err)
	}
	return doc.FindMatcher(m), nil
}

// DecodeJSON unmarshals the body into v.
func (f *Fragment) DecodeJSON(v any) error {
	if err := json.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedJSON, f.URL, err)
	}
	return nil
}
