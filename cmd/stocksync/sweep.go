package main

import (
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-stock-sync/config"
	"github.com/aluiziolira/go-stock-sync/content"
	"github.com/aluiziolira/go-stock-sync/metrics"
	"github.com/aluiziolira/go-stock-sync/thumbs"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete cached thumbnails that no existing content record references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("content-dir") {
			cfg.ContentDir = runContentDir
		}
		if cmd.Flags().Changed("thumbs-dir") {
			cfg.ThumbsDir = runThumbsDir
		}

		res, err := sweepExisting(cfg, metrics.New(), zap.L())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d, kept %d, errors %d\n", res.Deleted, res.Kept, len(res.Errors))
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&runContentDir, "content-dir", "", "content records directory")
	sweepCmd.Flags().StringVar(&runThumbsDir, "thumbs-dir", "", "thumbnail cache directory")
}

// sweepExisting sweeps the cache against the thumbnails referenced by the
// records currently in the content directory. Any unreadable record aborts
// the sweep, because its thumbnails cannot be accounted for.
func sweepExisting(c *config.Config, m *metrics.Metrics, logger *zap.Logger) (thumbs.SweepResult, error) {
	if err := c.ValidateDirs(); err != nil {
		return thumbs.SweepResult{}, err
	}
	if _, err := os.Stat(c.ContentDir); err != nil {
		return thumbs.SweepResult{}, eris.Wrapf(err, "content directory %s", c.ContentDir)
	}

	lock, err := acquireLock(c.ContentDir)
	if err != nil {
		return thumbs.SweepResult{}, err
	}
	defer lock.Unlock() //nolint:errcheck

	store := content.NewStore(osfs.New(c.ContentDir), content.DefaultExt)
	cacheFS := osfs.New(c.ThumbsDir)
	cache := thumbs.New(cacheFS, nil, nil, thumbs.Options{URLPrefix: c.ThumbsURLPrefix, Max: c.Thumbs.Max}, m, logger)

	keys, err := store.Keys()
	if err != nil {
		return thumbs.SweepResult{}, err
	}
	live := thumbs.NewLiveSet()
	for _, key := range keys {
		rec, err := store.Read(key)
		if err != nil {
			return thumbs.SweepResult{}, eris.Wrapf(err, "read %s", key)
		}
		for _, p := range rec.Thumbs {
			live.Add(cache.FileOf(p))
		}
	}
	logger.Info("collected referenced thumbnails", zap.Int("records", len(keys)), zap.Int("thumbnails", live.Len()))

	return thumbs.Sweep(cacheFS, live, m, logger)
}
