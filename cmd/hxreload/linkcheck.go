package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pthm/hxreload"
)

var linkScope string

var linkcheckCmd = &cobra.Command{
	Use:   "linkcheck <url>",
	Short: "Check the links of a page",
	Long: `Load a page and issue a HEAD request for each of its links, a bounded
number at a time (fetch.link_limit). Exits non-zero when a link is broken.

Examples:
  hxreload linkcheck --scope external https://example.org/`,
	Args: cobra.ExactArgs(1),
	RunE: runLinkcheck,
}

func init() {
	linkcheckCmd.Flags().StringVar(&linkScope, "scope", string(hxreload.LinksExternal), "external, internal or all")
}

func runLinkcheck(cmd *cobra.Command, args []string) error {
	scope := hxreload.LinkScope(linkScope)
	switch scope {
	case hxreload.LinksExternal, hxreload.LinksInternal, hxreload.LinksAll:
	default:
		return fmt.Errorf("invalid scope %q", linkScope)
	}

	e, err := setup()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	ctx := cmd.Context()
	f := e.fetcher()
	p, err := f.FetchPage(ctx, args[0])
	if err != nil {
		return err
	}

	results, err := f.CheckLinks(ctx, p.URL(), hxreload.PageLinks(p, scope), e.cfg.Fetch.LinkLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	broken := 0
	for _, res := range results {
		status := fmt.Sprint(res.Status)
		if res.Err != nil {
			status = res.Err.Error()
		}
		mark := "ok"
		if !res.Healthy() {
			mark = "BROKEN"
			broken++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, status, res.URL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if broken > 0 {
		return fmt.Errorf("%d of %d links broken", broken, len(results))
	}
	return nil
}
