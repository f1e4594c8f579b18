package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-stock-sync/feed"
	"github.com/aluiziolira/go-stock-sync/fetcher"
	"github.com/aluiziolira/go-stock-sync/identity"
	"github.com/aluiziolira/go-stock-sync/metrics"
	"github.com/aluiziolira/go-stock-sync/models"
)

var keyFormat string

var keyCmd = &cobra.Command{
	Use:   "key [feed]",
	Short: "Print the canonical and display key of every feed record without writing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.Feed.Source = args[0]
		}
		if cmd.Flags().Changed("format") {
			cfg.Feed.Format = keyFormat
		}
		if cfg.Feed.Source == "" {
			return eris.New("feed source cannot be empty")
		}

		f, err := newFetcher(cfg, metrics.New(), zap.L())
		if err != nil {
			return err
		}
		return printKeys(cmd.Context(), cmd.OutOrStdout(), cfg.Feed.Source, cfg.Feed.Format, f)
	},
}

func init() {
	keyCmd.Flags().StringVar(&keyFormat, "format", "auto", "feed format: auto, xml, csv or xlsx")
}

// printKeys renders one row per record. Records without identity show the
// reason instead of a key.
func printKeys(ctx context.Context, w io.Writer, source, format string, f fetcher.Fetcher) error {
	ff, err := feed.ParseFormat(format)
	if err != nil {
		return err
	}
	records, errs, err := feed.Open(ctx, source, ff, f)
	if err != nil {
		return eris.Wrap(err, "open feed")
	}

	var rows [][]string
	n := 0
	for rec := range records {
		n++
		key, kerr := identity.CanonicalKey(rec)
		if kerr != nil {
			key = "! " + kerr.Error()
		}
		rows = append(rows, []string{
			fmt.Sprint(n),
			key,
			identity.DisplayKey(rec, identity.KeyFields...),
			rec.Value(models.FieldVIN),
		})
	}
	if err, ok := <-errs; ok && err != nil {
		return eris.Wrap(err, "read feed")
	}

	fmt.Fprintln(w, renderTable([]string{"#", "Key", "Display", "VIN"}, rows, []columnAlignment{alignRight}))
	return nil
}
