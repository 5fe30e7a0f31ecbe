package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/hxreload/notify"
)

var listenCmd = &cobra.Command{
	Use:   "listen <url>",
	Short: "Load a page and apply its notifications until interrupted",
	Long: `Load a page, connect to the notification hub it announces (or
notify.url from the configuration) and apply notifications: refresh events
for the page's path reload it, browser notifications are printed.

Examples:
  hxreload listen http://localhost:8080/`,
	Args: cobra.ExactArgs(1),
	RunE: runListen,
}

// printDesktop prints browser notifications instead of showing them.
type printDesktop struct {
	w io.Writer
}

func (d printDesktop) Notify(_ context.Context, title, body, _ string) error {
	_, err := fmt.Fprintf(d.w, "%s: %s\n", title, body)
	return err
}

func runListen(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	r, err := e.reloader()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := r.Fetcher().FetchPage(ctx, args[0])
	if err != nil {
		return err
	}
	if _, err := r.Init(ctx, p); err != nil {
		e.logger.Warn("initial rehydration incomplete", zap.Error(err))
	}

	l, err := notify.ListenerFor(r, p, printDesktop{w: cmd.OutOrStdout()}, e.logger.Named("listener"))
	if err != nil {
		if e.cfg.Notify.URL == "" {
			return err
		}
		l = &notify.Listener{
			Schema:      e.cfg.Notify.Schema,
			Channel:     e.cfg.Notify.Channel,
			CurrentPath: p.Path,
			Handler:     &notify.PageHandler{Reloader: r, Page: p, Desktop: printDesktop{w: cmd.OutOrStdout()}},
			Logger:      e.logger.Named("listener"),
		}
	}
	if e.cfg.Notify.URL != "" {
		if l.Endpoint, err = notify.WebSocketURL(p.URL(), e.cfg.Notify.URL); err != nil {
			return err
		}
	}

	e.logger.Info("listening", zap.String("endpoint", l.Endpoint), zap.String("key", notify.Key(l.Schema, l.Channel)))
	return l.Run(ctx)
}
