// Package notify is the page notification channel: a WebSocket hub that
// fans server events out to registered pages, and the listener a page runs
// to react to them.
//
// A listener registers once after connecting:
//
//	{"type": "register", "schema": "town-govikon", "channel": "private"}
//
// and then receives notifications:
//
//	{"type": "notification", "message": {"event": "refresh", "path": "/tickets"}}
//
// Only the "refresh" and "browser-notification" events are acted upon.
// Anything else is ignored.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Envelope types.
const (
	TypeRegister     = "register"
	TypeAuthenticate = "authenticate"
	TypeBroadcast    = "broadcast"
	TypeStatus       = "status"
	TypeNotification = "notification"
	TypeAcknowledged = "acknowledged"
	TypeError        = "error"
)

// Notification events.
const (
	EventRefresh             = "refresh"
	EventBrowserNotification = "browser-notification"
)

// Sentinel errors.
var (
	ErrClosed       = errors.New("notify: hub closed")
	ErrInvalidFrame = errors.New("notify: invalid frame")
	ErrRejected     = errors.New("notify: rejected by server")
)

// Envelope is one frame on the wire. Message holds a Notification for
// notifications and broadcasts, a string for errors and a Status for
// status replies.
type Envelope struct {
	Type    string          `json:"type"`
	Schema  string          `json:"schema,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Token   string          `json:"token,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Notification is the payload of a notification frame.
type Notification struct {
	Event   string `json:"event"`
	Path    string `json:"path,omitempty"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Created string `json:"created,omitempty"`
}

// Status is the payload of a status reply: listener counts per key.
type Status struct {
	Connections map[string]int `json:"connections"`
}

// MatchesPath reports whether the notification concerns the page at
// current. Both sides are cleaned first, so "/tickets/" matches "/tickets"
// and a full URL matches its path. A notification without a path matches
// nothing.
func (n Notification) MatchesPath(current string) bool {
	if n.Path == "" {
		return false
	}
	return CleanPath(n.Path) == CleanPath(current)
}

// CleanPath reduces a path or URL to a canonical path: no scheme, host,
// query or fragment, no trailing slash, "/" for empty input.
func CleanPath(p string) string {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Key returns the subscription key of a schema and optional channel.
func Key(schema, channel string) string {
	if channel == "" {
		return schema
	}
	return schema + "-" + channel
}

// decodeEnvelope parses a frame and checks that its type is one of
// expected.
func decodeEnvelope(data []byte, expected ...string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	for _, t := range expected {
		if env.Type == t {
			return env, nil
		}
	}
	return env, fmt.Errorf("%w: unexpected type %q", ErrInvalidFrame, env.Type)
}

func errorFrame(msg string) []byte {
	raw, _ := json.Marshal(msg)
	data, _ := json.Marshal(Envelope{Type: TypeError, Message: raw})
	return data
}

func ackFrame() []byte {
	return []byte(`{"type":"acknowledged"}`)
}

func notificationFrame(message json.RawMessage) []byte {
	data, _ := json.Marshal(Envelope{Type: TypeNotification, Message: message})
	return data
}
