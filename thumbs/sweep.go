package thumbs

import (
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-stock-sync/metrics"
)

// SweepResult reports what Sweep did.
type SweepResult struct {
	Deleted int
	Kept    int
	Errors  []error
}

// Sweep deletes every regular file in the root of fs that is not in live.
// Per-file failures are logged and collected; only a failure to list the
// directory is returned as an error. It must run after every producer of
// live has finished.
func Sweep(fs billy.Filesystem, live *LiveSet, m *metrics.Metrics, logger *zap.Logger) (SweepResult, error) {
	if logger == nil {
		logger = zap.L()
	}

	var res SweepResult
	infos, err := fs.ReadDir(".")
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, eris.Wrap(err, "thumbs: list cache directory")
	}

	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		name := info.Name()
		if live != nil && live.Has(name) {
			res.Kept++
			m.IncSwept("kept")
			continue
		}
		if err := fs.Remove(name); err != nil {
			logger.Error("failed to delete stale thumbnail", zap.String("file", name), zap.Error(err))
			res.Errors = append(res.Errors, eris.Wrapf(err, "remove %s", name))
			m.IncSwept("error")
			continue
		}
		res.Deleted++
		m.IncSwept("deleted")
		logger.Debug("stale thumbnail deleted", zap.String("file", name))
	}

	logger.Info("thumbnail sweep finished",
		zap.Int("deleted", res.Deleted),
		zap.Int("kept", res.Kept),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}
