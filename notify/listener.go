package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler reacts to the notification events a page consumes.
type Handler interface {
	Refresh(ctx context.Context, n Notification) error
	BrowserNotification(ctx context.Context, n Notification) error
}

// HandlerFuncs adapts plain functions to Handler. Nil functions ignore the
// event.
type HandlerFuncs struct {
	OnRefresh             func(ctx context.Context, n Notification) error
	OnBrowserNotification func(ctx context.Context, n Notification) error
}

func (h HandlerFuncs) Refresh(ctx context.Context, n Notification) error {
	if h.OnRefresh == nil {
		return nil
	}
	return h.OnRefresh(ctx, n)
}

func (h HandlerFuncs) BrowserNotification(ctx context.Context, n Notification) error {
	if h.OnBrowserNotification == nil {
		return nil
	}
	return h.OnBrowserNotification(ctx, n)
}

// Listener is the page side of the channel. It connects once, registers
// and dispatches notifications until the connection or ctx ends. It does
// not reconnect.
type Listener struct {
	// Endpoint is the ws:// or wss:// URL of the hub.
	Endpoint string
	Schema   string
	Channel  string

	// CurrentPath returns the path of the page the listener serves. Refresh
	// events for other paths are ignored.
	CurrentPath func() string

	Handler Handler
	Logger  *zap.Logger
	Dialer  *websocket.Dialer
	Header  http.Header
}

// Run connects and serves notifications. It returns nil when ctx is
// cancelled or the server closes the connection normally.
func (l *Listener) Run(ctx context.Context) error {
	if l.Endpoint == "" || l.Schema == "" {
		return fmt.Errorf("notify: listener needs an endpoint and a schema")
	}
	logger := l.logger()

	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, l.Endpoint, l.Header)
	if err != nil {
		return fmt.Errorf("notify: dial %s: %w", l.Endpoint, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	register, _ := json.Marshal(Envelope{Type: TypeRegister, Schema: l.Schema, Channel: l.Channel})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, register); err != nil {
		return fmt.Errorf("notify: register: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})
	logger.Debug("listening", zap.String("endpoint", l.Endpoint), zap.String("key", Key(l.Schema, l.Channel)))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("notify: read: %w", err)
		}
		env, err := decodeEnvelope(data, TypeAcknowledged, TypeNotification, TypeError)
		if err != nil {
			logger.Debug("ignoring frame", zap.Error(err))
			continue
		}
		if _, err := l.Dispatch(ctx, env); err != nil {
			if errors.Is(err, ErrRejected) {
				return err
			}
			logger.Warn("notification handler failed", zap.Error(err))
		}
	}
}

// Dispatch acts on one frame and reports whether a handler ran. Refresh
// events only run the handler when their path matches the current page.
// An error frame from the server yields ErrRejected.
func (l *Listener) Dispatch(ctx context.Context, env Envelope) (bool, error) {
	switch env.Type {
	case TypeError:
		var msg string
		json.Unmarshal(env.Message, &msg)
		return false, fmt.Errorf("%w: %s", ErrRejected, msg)
	case TypeNotification:
	default:
		return false, nil
	}

	var n Notification
	if err := json.Unmarshal(env.Message, &n); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if l.Handler == nil {
		return false, nil
	}

	switch n.Event {
	case EventRefresh:
		current := "/"
		if l.CurrentPath != nil {
			current = l.CurrentPath()
		}
		if !n.MatchesPath(current) {
			l.logger().Debug("refresh for another page", zap.String("path", n.Path), zap.String("current", current))
			return false, nil
		}
		return true, l.Handler.Refresh(ctx, n)
	case EventBrowserNotification:
		return true, l.Handler.BrowserNotification(ctx, n)
	}
	return false, nil
}

func (l *Listener) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
