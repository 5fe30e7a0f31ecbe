package hxreload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Names of the built-in initializers.
const (
	InitClickToLoad  = "click-to-load"
	InitReloadFrom   = "reload-from"
	InitToggleButton = "toggle-button"
)

// documentTarget is the sequencing key used for full page refreshes.
const documentTarget = ":document"

// Option configures a Reloader.
type Option func(*Reloader)

// WithFetcher replaces the default Fetcher.
func WithFetcher(f *Fetcher) Option {
	return func(r *Reloader) { r.fetcher = f }
}

// WithRegistry uses reg instead of a fresh Registry. Initializers already
// registered under a built-in name take precedence over the built-in.
func WithRegistry(reg *Registry) Option {
	return func(r *Reloader) { r.registry = reg }
}

// WithSequencePolicy sets how overlapping reloads of one target resolve.
func WithSequencePolicy(p SequencePolicy) Option {
	return func(r *Reloader) { r.policy = p }
}

// WithStateEncoder makes carried state travel as a signed token in the
// StateParam query parameter, next to the plain marker parameter.
func WithStateEncoder(enc *Encoder) Option {
	return func(r *Reloader) { r.encoder = enc }
}

// WithEncryptedState makes the state token opaque: carried state is
// encrypted instead of signed. It has no effect without WithStateEncoder.
func WithEncryptedState() Option {
	return func(r *Reloader) { r.encrypt = true }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reloader) { r.logger = l }
}

// Reloader is the composition root of the replace-and-rehydrate pipeline.
// It owns the Fetcher and the Registry and registers the built-in
// click-to-load, reload-from and toggle-button initializers.
type Reloader struct {
	fetcher  *Fetcher
	registry *Registry
	policy   SequencePolicy
	encoder  *Encoder
	encrypt  bool
	logger   *zap.Logger
}

// New creates a Reloader.
func New(opts ...Option) *Reloader {
	r := &Reloader{
		policy: LastRequestWins,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.fetcher == nil {
		r.fetcher = NewFetcher(FetcherConfig{}, WithFetcherLogger(r.logger))
	}
	if r.registry == nil {
		r.registry = NewRegistry()
	}
	r.registerBuiltins()
	return r
}

// Registry returns the initializer table.
func (r *Reloader) Registry() *Registry {
	return r.registry
}

// Fetcher returns the fragment fetcher.
func (r *Reloader) Fetcher() *Fetcher {
	return r.fetcher
}

func (r *Reloader) registerBuiltins() {
	builtins := []struct {
		name, selector string
		init           InitializerFunc
	}{
		{InitClickToLoad, ".click-to-load", r.initClickToLoad},
		{InitReloadFrom, "[data-reload-from]", r.initReloadFrom},
		{InitToggleButton, ".toggle-button[data-toggle]", r.initToggleButton},
	}
	for _, b := range builtins {
		err := r.registry.Register(b.name, b.selector, b.init)
		if err != nil && !errors.Is(err, ErrDuplicateInitializer) {
			panic(err)
		}
	}
}

func (r *Reloader) initClickToLoad(_ context.Context, p *Page, el *goquery.Selection) error {
	p.On(el.Get(0), "click", InitClickToLoad, func(ctx context.Context, ev Event) error {
		_, err := r.LoadMore(ctx, ev.Page, ev.Node)
		return err
	})
	return nil
}

func (r *Reloader) initReloadFrom(_ context.Context, p *Page, el *goquery.Selection) error {
	if _, ok := el.Attr("id"); !ok {
		return fmt.Errorf("%w: reload-from element needs an id", ErrInvalidRequest)
	}
	p.On(el.Get(0), "reload", InitReloadFrom, func(ctx context.Context, ev Event) error {
		_, err := r.reloadNode(ctx, ev.Page, ev.Node)
		return err
	})
	return nil
}

func (r *Reloader) initToggleButton(_ context.Context, p *Page, el *goquery.Selection) error {
	p.On(el.Get(0), "click", InitToggleButton, func(ctx context.Context, ev Event) error {
		_, err := r.Toggle(ctx, ev.Page, ev.Node)
		return err
	})
	return nil
}

// Init rehydrates the whole document, as on initial page load.
func (r *Reloader) Init(ctx context.Context, p *Page) (int, error) {
	return r.registry.RehydrateAll(ctx, p)
}

// Load runs the full pipeline for req: fetch, splice, rehydrate the
// inserted content and restore carried state.
func (r *Reloader) Load(ctx context.Context, p *Page, req Request) (Outcome, error) {
	return r.run(ctx, p, req, nil)
}

// LoadMore handles a click on a click-to-load trigger. The trigger's
// data-source ("url selector") is fetched and the selected content is
// inserted before data-target. If the response contains an element with
// the trigger's id, the trigger is rebound to that element's data-source
// and data-target; otherwise the trigger is removed. A trigger that is no
// longer on the page yields ErrTargetNotFound.
func (r *Reloader) LoadMore(ctx context.Context, p *Page, trigger *html.Node) (Outcome, error) {
	p.mu.Lock()
	attached := p.attached(trigger)
	cont := continuationOf(trigger)
	id := attr(trigger, "id")
	p.mu.Unlock()

	if !attached {
		return Outcome{}, fmt.Errorf("%w: click-to-load trigger is no longer on the page", ErrTargetNotFound)
	}
	if cont.IsZero() {
		return Outcome{}, fmt.Errorf("%w: click-to-load trigger without data-source", ErrInvalidRequest)
	}
	src, sub := ParseSource(cont.Source)
	req := Request{
		Target:    cont.Target,
		Source:    src,
		Select:    sub,
		Swap:      SwapBeforeBegin,
		TriggerID: id,
	}
	return r.run(ctx, p, req, trigger)
}

// ReloadFrom reloads the element matching selector from its
// data-reload-from source, replacing it (outerHTML unless data-reload-swap
// says otherwise). The marker named by data-reload-carry, "expanded" by
// default, is carried across the reload; "none" disables carrying.
func (r *Reloader) ReloadFrom(ctx context.Context, p *Page, selector string) (Outcome, error) {
	p.mu.Lock()
	sel, err := p.find(selector)
	if err == nil && sel.Length() == 0 {
		err = fmt.Errorf("%w: %s", ErrTargetNotFound, selector)
	}
	var req Request
	if err == nil {
		req, err = reloadRequest(selector, sel.Get(0))
	}
	p.mu.Unlock()
	if err != nil {
		return Outcome{Target: selector}, err
	}
	return r.run(ctx, p, req, nil)
}

func (r *Reloader) reloadNode(ctx context.Context, p *Page, n *html.Node) (Outcome, error) {
	p.mu.Lock()
	id := attr(n, "id")
	p.mu.Unlock()
	if id == "" {
		return Outcome{}, fmt.Errorf("%w: reload-from element needs an id", ErrInvalidRequest)
	}
	return r.ReloadFrom(ctx, p, "#"+id)
}

// reloadRequest must be called with the page lock held.
func reloadRequest(selector string, n *html.Node) (Request, error) {
	source := attr(n, "data-reload-from")
	if source == "" {
		return Request{}, fmt.Errorf("%w: %s has no data-reload-from", ErrInvalidRequest, selector)
	}
	swap, err := ParseSwapMode(attr(n, "data-reload-swap"))
	if err != nil {
		return Request{}, err
	}
	carry := attr(n, "data-reload-carry")
	switch carry {
	case "":
		carry = DefaultCarry
	case "none":
		carry = ""
	}
	src, sub := ParseSource(source)
	return Request{
		Target:    selector,
		Source:    src,
		Select:    sub,
		Swap:      swap,
		Carry:     carry,
		TriggerID: attr(n, "id"),
	}, nil
}

// Toggle handles a click on a toggle button: the marker class (data-toggle-class,
// "expanded" by default) is flipped on every element matching data-toggle and
// "active" is flipped on the button. Targets that carry data-<marker> get the
// attribute flipped too. Nothing is fetched.
func (r *Reloader) Toggle(_ context.Context, p *Page, button *html.Node) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	selector := attr(button, "data-toggle")
	marker := attr(button, "data-toggle-class")
	if marker == "" {
		marker = DefaultCarry
	}
	out := Outcome{Target: selector}
	targets, err := p.find(selector)
	if err != nil {
		return out, err
	}
	if targets.Length() == 0 {
		return out, fmt.Errorf("%w: %s", ErrTargetNotFound, selector)
	}

	on := !toggled(targets.First(), marker)
	setToggled(targets, marker, on)
	btn := p.doc.FindNodes(button)
	if on {
		btn.AddClass("active")
	} else {
		btn.RemoveClass("active")
	}
	out.Toggled = true
	out.State = &ToggleState{Selector: selector, Marker: marker, Toggled: on}
	return out, nil
}

// Refresh reloads the whole page document from the page URL and rehydrates
// it. All handlers bound to the old document are dropped.
func (r *Reloader) Refresh(ctx context.Context, p *Page) (Outcome, error) {
	u := p.URL()
	out := Outcome{Target: documentTarget}
	gen := p.begin(documentTarget)

	frag, err := r.fetcher.Fetch(ctx, u, Request{Source: u.String(), Swap: SwapNone})
	if err != nil {
		return out, r.degrade(documentTarget, err)
	}
	out.URL, out.Status = frag.URL, frag.StatusCode

	doc, err := frag.Document()
	if err != nil {
		return out, fmt.Errorf("parse page: %w", err)
	}

	p.mu.Lock()
	if r.policy == LastRequestWins && !p.current(documentTarget, gen) {
		p.mu.Unlock()
		out.Stale = true
		return out, r.degrade(documentTarget, ErrStale)
	}
	p.replaceDocument(doc)
	out.Inserted = len(elements(p.doc.Find("body").Children().Nodes))
	p.mu.Unlock()

	n, err := r.registry.RehydrateAll(ctx, p)
	out.Rehydrated = n
	if err != nil {
		r.logger.Warn("rehydration failed", zap.String("target", documentTarget), zap.Error(err))
	}
	return out, err
}

// run is the single-pass pipeline. trigger is set for click-to-load.
func (r *Reloader) run(ctx context.Context, p *Page, req Request, trigger *html.Node) (Outcome, error) {
	out := Outcome{Target: req.Target}
	if err := req.Validate(); err != nil {
		return out, err
	}

	var state *ToggleState
	if req.Carry != "" {
		st, err := CaptureState(p, req.Target, req.Carry)
		if err != nil {
			return out, err
		}
		state = &st
		out.State = state
		req.Query = st.Query(cloneQuery(req.Query))
		if r.encoder != nil && st.Toggled {
			encode := EncodeState
			if r.encrypt {
				encode = EncryptState
			}
			token, err := encode(r.encoder, st)
			if err != nil {
				return out, err
			}
			req.Query[StateParam] = token
		}
	}

	gen := p.begin(req.Target)
	frag, err := r.fetcher.Fetch(ctx, p.URL(), req)
	if err != nil {
		return out, r.degrade(req.Target, err)
	}
	out.URL, out.Status = frag.URL, frag.StatusCode

	var doc *goquery.Document
	if req.method() != MethodHead {
		if doc, err = frag.Document(); err != nil {
			return out, fmt.Errorf("parse fragment: %w", err)
		}
	}

	p.mu.Lock()
	if r.policy == LastRequestWins && !p.current(req.Target, gen) {
		p.mu.Unlock()
		out.Stale = true
		return out, r.degrade(req.Target, ErrStale)
	}
	inserted, err := r.apply(p, req, frag, doc, trigger, &out)
	var root *goquery.Selection
	if len(inserted) > 0 {
		root = p.selection(inserted)
	}
	p.mu.Unlock()
	if err != nil {
		return out, err
	}

	var errs []error
	if root != nil {
		n, err := r.registry.Rehydrate(ctx, p, root)
		out.Rehydrated = n
		if err != nil {
			r.logger.Warn("rehydration failed", zap.String("target", req.Target), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if state != nil && req.swap().removesTarget() && req.swap() != SwapDelete {
		if err := RestoreState(p, *state); err != nil {
			errs = append(errs, fmt.Errorf("restore state: %w", err))
		}
	}

	r.logger.Debug("reload applied",
		zap.String("target", req.Target),
		zap.String("url", out.URL),
		zap.Int("inserted", out.Inserted),
		zap.Int("rehydrated", out.Rehydrated),
		zap.Bool("continued", out.Continued),
		zap.Bool("exhausted", out.Exhausted))
	return out, errors.Join(errs...)
}

// apply splices the fragment into the page. Must be called with p.mu held.
func (r *Reloader) apply(p *Page, req Request, frag *Fragment, doc *goquery.Document, trigger *html.Node, out *Outcome) ([]*html.Node, error) {
	if doc == nil {
		return nil, nil
	}
	// An overlapping load may have exhausted the trigger meanwhile.
	if trigger != nil && !p.attached(trigger) {
		return nil, fmt.Errorf("%w: click-to-load trigger is no longer on the page", ErrTargetNotFound)
	}

	oob, err := p.spliceOOB(doc)
	if err != nil {
		if !errors.Is(err, ErrTargetNotFound) {
			return oob, err
		}
		r.logger.Debug("out-of-band target missing", zap.String("target", req.Target), zap.Error(err))
	}

	content, err := frag.Select(req.Select)
	if err != nil {
		return oob, err
	}

	nodes := content.Nodes
	var next Continuation
	var more bool
	id := ""
	if trigger != nil {
		id = attr(trigger, "id")
		next, more = findSentinel(doc, id)
		nodes = stripSentinels(content, id)
	}

	inserted, err := p.splice(req.Target, nodes, req.swap())
	if err != nil {
		return oob, err
	}
	inserted = append(oob, inserted...)
	out.Inserted = len(inserted)

	if trigger != nil {
		if more && !next.IsZero() {
			setAttr(trigger, "data-source", next.Source)
			setAttr(trigger, "data-target", next.Target)
			out.Continued = true
		} else {
			p.forget(trigger)
			detach([]*html.Node{trigger})
			out.Exhausted = true
		}
	}
	return inserted, nil
}

// degrade logs err at a level matching its class and returns it unchanged.
func (r *Reloader) degrade(target string, err error) error {
	switch {
	case isContextDone(err):
		r.logger.Debug("reload cancelled", zap.String("target", target), zap.Error(err))
	case IsDegraded(err):
		r.logger.Debug("reload did nothing", zap.String("target", target), zap.Error(err))
	default:
		r.logger.Warn("reload failed", zap.String("target", target), zap.Error(err))
	}
	return err
}

func cloneQuery(q map[string]string) map[string]string {
	out := make(map[string]string, len(q)+2)
	for k, v := range q {
		out[k] = v
	}
	return out
}

// IDSelector builds a "#id" selector, rejecting ids a simple selector
// cannot express.
func IDSelector(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, " \t\n\"'[]#.:>+~,") {
		return "", fmt.Errorf("%w: id %q", ErrInvalidSelector, id)
	}
	return "#" + id, nil
}
