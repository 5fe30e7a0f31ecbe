// Package demo is a small fragment server exercising every part of the
// reload pattern: a paginated list with a click-to-load trigger, a block
// that reloads itself and keeps its expanded state, a JSON endpoint and
// the notification hub.
package demo

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pthm/hxreload"
	"github.com/pthm/hxreload/notify"
	"github.com/pthm/hxreload/storage"
)

// Columns of the item table.
var Columns = []string{"title", "tag", "created"}

// Options configures a Server.
type Options struct {
	Locale   string
	Schema   string
	Channel  string
	PageSize int
	// Token guards POST /notify with a bearer token when set.
	Token string
	// Encoder verifies signed state tokens carried by block reloads.
	Encoder *hxreload.Encoder
	// Local persists login attempts and column preferences. Nil means an
	// in-memory store.
	Local storage.Store
	// LoginAttempts within LoginWindow are allowed per user.
	LoginAttempts int
	LoginWindow   time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

// Server serves the demo pages.
type Server struct {
	opts    Options
	store   *Store
	hub     *notify.Hub
	limiter *storage.AttemptLimiter
	columns storage.ColumnPrefs
	frames  storage.FrameRoots
	logger  *zap.Logger
}

// New creates a server over store, broadcasting through hub.
func New(store *Store, hub *notify.Hub, opts Options) *Server {
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Schema == "" {
		opts.Schema = "hxreload"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Local == nil {
		opts.Local = storage.NewSession()
	}
	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = 3
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		opts:    opts,
		store:   store,
		hub:     hub,
		limiter: storage.NewAttemptLimiter(opts.Local, opts.LoginAttempts, opts.LoginWindow),
		columns: storage.ColumnPrefs{Store: opts.Local},
		frames:  storage.FrameRoots{Store: storage.NewSession()},
		logger:  opts.Logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(s.logRequests)

	r.Get("/", s.handleIndex)
	r.Get("/page/{n}", s.handlePage)
	r.Get("/block", s.handleBlock)
	r.Get("/chart.json", s.handleChart)
	r.Get("/breadcrumbs", s.handleBreadcrumbs)
	r.Post("/items", s.handleAddItem)
	r.Post("/login", s.handleLogin)
	r.Route("/columns", func(r chi.Router) {
		r.Get("/", s.handleColumns)
		r.Post("/{column}", s.handleToggleColumn)
	})
	r.Post("/notify", s.handleNotify)
	r.Handle(wsEndpoint, s.hub)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("client_request_id", hxreload.RequestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Bool("fragment", hxreload.IsFragmentRequest(r)),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	items, more := s.store.Page(1, s.opts.PageSize)
	hxreload.Render(w, r, pageView{
		Locale:  s.opts.Locale,
		Schema:  s.opts.Schema,
		Channel: s.opts.Channel,
		Items:   items,
		More:    more,
		Total:   s.store.Len(),
		Block:   blockView(false, s.opts.Now()),
	})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}
	items, more := s.store.Page(n, s.opts.PageSize)
	if items == nil {
		http.NotFound(w, r)
		return
	}
	shown := min(n*s.opts.PageSize, s.store.Len())
	hxreload.Render(w, r, pageFragment(items, n, more, shown, s.store.Len()))
}

// handleBlock renders the block in the state the client carried, either
// as the plain marker parameter or inside a signed or encrypted state token.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	expanded := hxreload.CarriedState(r, hxreload.DefaultCarry)
	if s.opts.Encoder != nil {
		states, err := hxreload.DecodeState(r, s.opts.Encoder)
		if err != nil {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		for _, st := range states {
			if st.Selector == "#"+blockID && st.Toggled {
				expanded = true
			}
		}
	}
	hxreload.Render(w, r, blockView(expanded, s.opts.Now()))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// handleBreadcrumbs renders the trail of path, trimmed to the root of the
// embedding frame when the request names one.
func (s *Server) handleBreadcrumbs(w http.ResponseWriter, r *http.Request) {
	path := notify.CleanPath(r.URL.Query().Get("path"))
	crumbs := []string{"/"}
	acc := ""
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		acc += "/" + seg
		crumbs = append(crumbs, acc)
	}

	if frame := r.URL.Query().Get("frame"); frame != "" {
		if _, err := s.frames.Remember(r.Context(), frame, path); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		trail, err := s.frames.Trail(r.Context(), frame, crumbs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		crumbs = trail
	}
	hxreload.Render(w, r, breadcrumbsView(crumbs))
}

// handleAddItem adds an item, answers with a toast and tells listeners on
// the index page to refresh.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeFlash(w, http.StatusUnprocessableEntity, hxreload.Flash{Level: hxreload.FlashError, Message: "Title is required"})
		return
	}
	tag := Tag(r.FormValue("tag"))
	if tag == "" {
		tag = TagWork
	}
	it := s.store.Add(title, tag)

	if _, err := s.hub.Broadcast(s.opts.Schema, s.opts.Channel, notify.Notification{
		Event:   notify.EventRefresh,
		Path:    "/",
		Created: s.opts.Now().UTC().Format(time.RFC3339),
	}); err != nil && !errors.Is(err, notify.ErrClosed) {
		s.logger.Warn("refresh broadcast failed", zap.Error(err))
	}
	writeFlash(w, http.StatusOK, hxreload.Flash{Level: hxreload.FlashSuccess, Message: "Added " + it.Title})
}

// handleLogin stands in for auto-login: it only applies the attempt limit.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	user := r.FormValue("user")
	if user == "" {
		user = clientIP(r)
	}
	ok, err := s.limiter.Allow(r.Context(), user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		writeFlash(w, http.StatusTooManyRequests, hxreload.Flash{Level: hxreload.FlashWarning, Message: "Too many login attempts"})
		return
	}
	if pw := r.FormValue("password"); pw != "" && tokenEqual(pw, s.opts.Token) {
		if err := s.limiter.Reset(r.Context(), user); err != nil {
			s.logger.Warn("reset login attempts", zap.Error(err))
		}
		writeFlash(w, http.StatusOK, hxreload.Flash{Level: hxreload.FlashSuccess, Message: "Welcome"})
		return
	}
	writeFlash(w, http.StatusUnauthorized, hxreload.Flash{Level: hxreload.FlashError, Message: "Login failed"})
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	s.renderColumns(w, r)
}

func (s *Server) handleToggleColumn(w http.ResponseWriter, r *http.Request) {
	column := chi.URLParam(r, "column")
	known := false
	for _, c := range Columns {
		known = known || c == column
	}
	if !known {
		http.NotFound(w, r)
		return
	}
	visible := r.FormValue("visible") != "false"
	if err := s.columns.SetVisible(r.Context(), "items", column, visible); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.renderColumns(w, r)
}

func (s *Server) renderColumns(w http.ResponseWriter, r *http.Request) {
	hidden, err := s.columns.Hidden(r.Context(), "items")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	set := make(map[string]bool, len(hidden))
	for _, c := range hidden {
		set[c] = true
	}
	hxreload.Render(w, r, columnsView(Columns, set))
}

type notifyResponse struct {
	Receivers int `json:"receivers"`
}

// handleNotify broadcasts a notification posted as a form or JSON body.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if s.opts.Token != "" && !tokenEqual(r.Header.Get("Authorization"), "Bearer "+s.opts.Token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var n notify.Notification
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	} else {
		n = notify.Notification{
			Event: r.FormValue("event"),
			Path:  r.FormValue("path"),
			Title: r.FormValue("title"),
			Body:  r.FormValue("body"),
			Icon:  r.FormValue("icon"),
		}
	}
	switch n.Event {
	case notify.EventRefresh, notify.EventBrowserNotification:
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
		return
	}
	if n.Created == "" {
		n.Created = s.opts.Now().UTC().Format(time.RFC3339)
	}

	count, err := s.hub.Broadcast(s.opts.Schema, s.opts.Channel, n)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, notifyResponse{Receivers: count})
}

func writeFlash(w http.ResponseWriter, status int, f hxreload.Flash) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(hxreload.RenderFlashesOOB([]hxreload.Flash{f})))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// tokenEqual compares secrets in constant time.
func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
