package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/hxreload"
	"github.com/pthm/hxreload/internal/demo"
	"github.com/pthm/hxreload/notify"
	"github.com/pthm/hxreload/storage"
)

var serveItems int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo fragment server and notification hub",
	Long: `Run the demo fragment server. It serves a paginated list with a
click-to-load trigger, a reloadable block, a JSON endpoint and the
WebSocket notification hub on /ws.

Examples:
  # Serve on the configured address
  hxreload serve

  # Broadcast a refresh to every page showing /
  curl -d event=refresh -d path=/ http://localhost:8080/notify`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveItems, "items", 42, "number of sample items")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	cfg := e.cfg

	local, err := storage.OpenLocal(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer local.Close()

	var enc *hxreload.Encoder
	if cfg.StateKey != "" {
		if enc, err = hxreload.NewEncoder([]byte(cfg.StateKey)); err != nil {
			return err
		}
	}

	hub := notify.NewHub(
		notify.WithToken(cfg.Notify.Token),
		notify.WithPingInterval(cfg.Notify.Ping),
		notify.WithHubLogger(e.logger.Named("hub")),
	)
	srv := demo.New(demo.NewStore(serveItems), hub, demo.Options{
		Locale:        cfg.Locale,
		Schema:        cfg.Notify.Schema,
		Channel:       cfg.Notify.Channel,
		Token:         cfg.Notify.Token,
		Encoder:       enc,
		Local:         local,
		LoginAttempts: cfg.Storage.LoginAttempts,
		LoginWindow:   cfg.Storage.LoginWindow,
		Logger:        e.logger.Named("demo"),
	})

	httpSrv := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		e.logger.Info("serving", zap.String("addr", cfg.Serve.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
