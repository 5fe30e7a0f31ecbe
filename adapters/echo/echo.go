// Package hxreloadecho provides Echo framework integration for hxreload
// fragment endpoints and the notification hub.
//
// Mount the hub onto an Echo instance or group:
//
//	e := echo.New()
//	hub := notify.NewHub()
//	go hub.Run(ctx)
//	hxreloadecho.Mount(e, hub)
//
// Or mount on a group with middleware:
//
//	g := e.Group("/app", authMiddleware)
//	hxreloadecho.MountGroup(g, hub, hxreloadecho.WithPath("/events"))
package hxreloadecho

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/pthm/hxreload"
	"github.com/pthm/hxreload/notify"
)

// Option configures the Mount and MountGroup functions.
type Option func(*options)

type options struct {
	path string
}

// WithPath sets the URL path of the WebSocket endpoint.
// Defaults to "/ws".
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

func buildOptions(opts []Option) *options {
	o := &options{path: "/ws"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Mount serves the notification hub on an Echo instance and returns the
// endpoint path, the value pages announce in data-websocket-endpoint.
//
//	e := echo.New()
//	path := hxreloadecho.Mount(e, hub)
func Mount(e *echo.Echo, hub *notify.Hub, opts ...Option) string {
	o := buildOptions(opts)
	e.GET(o.path, echo.WrapHandler(hub))
	return o.path
}

// MountGroup serves the notification hub on an Echo group, so the upgrade
// request passes the group's middleware (auth, logging, etc.).
func MountGroup(g *echo.Group, hub *notify.Hub, opts ...Option) string {
	o := buildOptions(opts)
	g.GET(o.path, echo.WrapHandler(hub))
	return o.path
}

// Render writes a templ component to the Echo response.
//
//	func handler(c echo.Context) error {
//	    return hxreloadecho.Render(c, myTemplate())
//	}
func Render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(c.Request().Context(), c.Response())
}

// IsFragment reports whether the request came from a Fetcher or HTMX.
func IsFragment(c echo.Context) bool {
	return hxreload.IsFragmentRequest(c.Request())
}

// CarriedState reports whether the reload carried marker as toggled.
func CarriedState(c echo.Context, marker string) bool {
	return hxreload.CarriedState(c.Request(), marker)
}

// Flash answers with the given toasts as an out-of-band fragment.
//
//	return hxreloadecho.Flash(c, http.StatusOK, hxreload.Flash{Level: hxreload.FlashSuccess, Message: "Saved"})
func Flash(c echo.Context, status int, flashes ...hxreload.Flash) error {
	if status == 0 {
		status = http.StatusOK
	}
	return c.HTML(status, hxreload.RenderFlashesOOB(flashes))
}
