package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/hxreload"
)

var (
	reloadClicks   []string
	reloadTargets  []string
	reloadSelect   string
	reloadLoadAll  string
	reloadMaxPages int
)

var reloadCmd = &cobra.Command{
	Use:   "reload <url>",
	Short: "Load a page, drive reloads and print the result",
	Long: `Load a page, rehydrate it, then apply clicks and reloads in order and
print the resulting document (or the part matching --select).

Examples:
  # Follow a click-to-load trigger until the list is complete
  hxreload reload --load-all '#loadmore' --select '.list' http://localhost:8080/

  # Expand a block, then reload it from its source
  hxreload reload --click '#block .toggle-button' --reload '#block' http://localhost:8080/`,
	Args: cobra.ExactArgs(1),
	RunE: runReload,
}

func init() {
	reloadCmd.Flags().StringArrayVar(&reloadClicks, "click", nil, "selector to click (repeatable)")
	reloadCmd.Flags().StringArrayVar(&reloadTargets, "reload", nil, "reload-from block to reload (repeatable)")
	reloadCmd.Flags().StringVar(&reloadSelect, "select", "", "print only the elements matching this selector")
	reloadCmd.Flags().StringVar(&reloadLoadAll, "load-all", "", "click this trigger until it is gone")
	reloadCmd.Flags().IntVar(&reloadMaxPages, "max-pages", 100, "stop --load-all after this many pages")
}

func runReload(cmd *cobra.Command, args []string) error {
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

	for _, sel := range reloadClicks {
		n, err := p.Click(ctx, sel)
		if err != nil {
			return fmt.Errorf("click %s: %w", sel, err)
		}
		e.logger.Debug("clicked", zap.String("selector", sel), zap.Int("handlers", n))
	}
	for _, sel := range reloadTargets {
		out, err := r.ReloadFrom(ctx, p, sel)
		if err != nil && !hxreload.IsDegraded(err) {
			return fmt.Errorf("reload %s: %w", sel, err)
		}
		e.logger.Debug("reloaded", zap.String("selector", sel), zap.Bool("applied", out.Applied()))
	}
	if reloadLoadAll != "" {
		pages, err := loadAll(ctx, p, reloadLoadAll, reloadMaxPages)
		if err != nil {
			return err
		}
		e.logger.Info("pagination complete", zap.Int("pages", pages))
	}

	return printPage(cmd.OutOrStdout(), p, reloadSelect)
}

// loadAll clicks trigger until it leaves the page and returns the number
// of clicks.
func loadAll(ctx context.Context, p *hxreload.Page, trigger string, limit int) (int, error) {
	for i := 0; i < limit; i++ {
		n, err := p.Count(trigger)
		if err != nil {
			return i, err
		}
		if n == 0 {
			return i, nil
		}
		if _, err := p.Click(ctx, trigger); err != nil {
			return i, fmt.Errorf("page %d: %w", i+2, err)
		}
	}
	return limit, errors.New("pagination did not end within --max-pages")
}

func printPage(w io.Writer, p *hxreload.Page, selector string) error {
	var out string
	var err error
	if selector == "" {
		out, err = p.HTML()
	} else {
		out, err = p.OuterHTML(selector)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
