package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pthm/hxreload"
)

// Body attributes announcing the notification channel of a page.
const (
	EndpointAttr = "data-websocket-endpoint"
	SchemaAttr   = "data-websocket-schema"
	ChannelAttr  = "data-websocket-channel"
)

// Desktop shows OS-level notifications.
type Desktop interface {
	Notify(ctx context.Context, title, body, icon string) error
}

// PageHandler applies notifications to a loaded page: refresh reloads the
// whole document through the Reloader, browser notifications go to the
// desktop or, without one, become a toast on the page.
type PageHandler struct {
	Reloader *hxreload.Reloader
	Page     *hxreload.Page
	Desktop  Desktop
}

func (h *PageHandler) Refresh(ctx context.Context, _ Notification) error {
	_, err := h.Reloader.Refresh(ctx, h.Page)
	return err
}

func (h *PageHandler) BrowserNotification(ctx context.Context, n Notification) error {
	if h.Desktop != nil {
		return h.Desktop.Notify(ctx, n.Title, n.Body, n.Icon)
	}
	return hxreload.ShowFlash(h.Page, hxreload.Flash{
		Level:   hxreload.FlashInfo,
		Title:   n.Title,
		Message: n.Body,
	})
}

// ListenerFor builds a listener from the channel attributes on the page's
// body. A relative endpoint is resolved against the page URL and http(s)
// becomes ws(s).
func ListenerFor(r *hxreload.Reloader, p *hxreload.Page, desktop Desktop, logger *zap.Logger) (*Listener, error) {
	var endpoint, schema, channel string
	p.Do(func(doc *goquery.Document) error {
		body := doc.Find("body").First()
		endpoint = body.AttrOr(EndpointAttr, "")
		schema = body.AttrOr(SchemaAttr, "")
		channel = body.AttrOr(ChannelAttr, "")
		return nil
	})
	if endpoint == "" || schema == "" {
		return nil, fmt.Errorf("notify: page has no %s or %s", EndpointAttr, SchemaAttr)
	}

	ws, err := WebSocketURL(p.URL(), endpoint)
	if err != nil {
		return nil, err
	}
	return &Listener{
		Endpoint:    ws,
		Schema:      schema,
		Channel:     channel,
		CurrentPath: p.Path,
		Handler:     &PageHandler{Reloader: r, Page: p, Desktop: desktop},
		Logger:      logger,
	}, nil
}

// WebSocketURL resolves endpoint against base and maps http to ws.
func WebSocketURL(base *url.URL, endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("notify: endpoint %q: %w", endpoint, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	switch ref.Scheme {
	case "http":
		ref.Scheme = "ws"
	case "https":
		ref.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("notify: endpoint %q: unsupported scheme", endpoint)
	}
	return ref.String(), nil
}
