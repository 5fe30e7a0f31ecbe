package hxreload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Timeout  time.Duration // HTTP timeout. Default: 15s.
	MaxBytes int64         // Max response body size. Default: 5MB.
	// UserAgent sent with requests.
	UserAgent string
	// Language is sent as Accept-Language when set, so fragment endpoints
	// render in the page's locale.
	Language string
	// CacheBust appends a "_" query parameter with the current time to GET
	// requests so intermediaries never answer from cache.
	CacheBust bool
}

func (c *FetcherConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "hxreload/1.0"
	}
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithFetcherLogger sets the logger used for request diagnostics.
func WithFetcherLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// withClock is used by tests to pin the cache-busting value.
func withClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// Fetcher issues fragment requests. It never touches the page.
type Fetcher struct {
	client *http.Client
	config FetcherConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig, opts ...FetcherOption) *Fetcher {
	cfg.defaults()
	f := &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch issues req and returns the fragment. Relative sources are resolved
// against base, which is normally the page URL and is also sent as
// HX-Current-URL.
//
// Non-2xx answers return a *StatusError, transport failures wrap ErrNetwork.
func (f *Fetcher) Fetch(ctx context.Context, base *url.URL, req Request) (*Fragment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	target, err := f.resolve(base, req)
	if err != nil {
		return nil, err
	}

	method := req.method()
	var body io.Reader
	if method == MethodPost {
		body = strings.NewReader(encodeQuery(req.Query).Encode())
	}

	hreq, err := http.NewRequestWithContext(ctx, string(method), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", ErrInvalidRequest, err)
	}

	requestID := uuid.NewString()
	hreq.Header.Set("User-Agent", f.config.UserAgent)
	hreq.Header.Set("HX-Request", "true")
	hreq.Header.Set("X-Requested-With", "XMLHttpRequest")
	hreq.Header.Set("X-Request-ID", requestID)
	if f.config.Language != "" {
		hreq.Header.Set("Accept-Language", f.config.Language)
	}
	if method == MethodPost {
		hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if id := targetID(req.Target); id != "" {
		hreq.Header.Set("HX-Target", id)
	}
	if req.TriggerID != "" {
		hreq.Header.Set("HX-Trigger", req.TriggerID)
	}
	if base != nil {
		hreq.Header.Set("HX-Current-URL", base.String())
	}

	start := f.now()
	resp, err := f.client.Do(hreq)
	if err != nil {
		f.logger.Debug("fragment fetch failed",
			zap.String("request_id", requestID),
			zap.String("url", target.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, f.config.MaxBytes))
		return nil, &StatusError{Code: resp.StatusCode, URL: target.String()}
	}

	var data []byte
	if method != MethodHead {
		data, err = io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
		}
	}

	f.logger.Debug("fragment fetched",
		zap.String("request_id", requestID),
		zap.String("method", string(method)),
		zap.String("url", target.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("took", f.now().Sub(start)))

	return &Fragment{
		URL:        target.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  requestID,
	}, nil
}

// FetchPage loads the full document at rawURL into a new Page.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	frag, err := f.Fetch(ctx, nil, Request{Source: rawURL, Swap: SwapNone})
	if err != nil {
		return nil, err
	}
	return NewPage(rawURL, bytes.NewReader(frag.Body))
}

// FetchJSON fetches rawURL (relative to base) with GET and decodes the JSON
// answer into T. Used for chart data, autocomplete suggestions and similar
// small JSON endpoints.
func FetchJSON[T any](ctx context.Context, f *Fetcher, base *url.URL, rawURL string, query map[string]string) (T, error) {
	var out T
	frag, err := f.Fetch(ctx, base, Request{Source: rawURL, Query: query, Swap: SwapNone})
	if err != nil {
		return out, err
	}
	if err := frag.DecodeJSON(&out); err != nil {
		return out, err
	}
	return out, nil
}

func (f *Fetcher) resolve(base *url.URL, req Request) (*url.URL, error) {
	ref, err := url.Parse(req.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", ErrInvalidRequest, req.Source, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return nil, fmt.Errorf("%w: relative source %q without a page URL", ErrInvalidRequest, req.Source)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRequest, ref.Scheme)
	}

	// Fragments are addressed by path and query only.
	ref.Fragment = ""

	if req.method() == MethodPost {
		return ref, nil
	}
	q := ref.Query()
	for k, v := range req.Query {
		q.Set(k, v)
	}
	if f.config.CacheBust && req.method() == MethodGet {
		q.Set("_", strconv.FormatInt(f.now().UnixMilli(), 10))
	}
	ref.RawQuery = q.Encode()
	return ref, nil
}

func encodeQuery(m map[string]string) url.Values {
	v := make(url.Values, len(m))
	for k, val := range m {
		v.Set(k, val)
	}
	return v
}

// isContextDone distinguishes a cancelled interaction from a real network
// failure so it is not logged as one.
func isContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
