// Package thumbs maintains the content-addressed cache of preview images and
// sweeps entries a run no longer references.
package thumbs

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-stock-sync/fetcher"
	"github.com/aluiziolira/go-stock-sync/metrics"
)

// MaxPerKey bounds the thumbnails kept for one vehicle identity.
const MaxPerKey = 5

// Options configures a Cache.
type Options struct {
	// URLPrefix is prepended to file names in returned paths.
	URLPrefix string
	// Max slots per key; values outside 1..MaxPerKey select MaxPerKey.
	Max int
}

// Cache generates thumbnails into a filesystem. A file that already exists is a
// cache hit and is never fetched or re-encoded.
type Cache struct {
	fs        billy.Filesystem
	fetcher   fetcher.Fetcher
	encoder   Encoder
	urlPrefix string
	max       int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New builds a cache on fs.
func New(fs billy.Filesystem, f fetcher.Fetcher, enc Encoder, opts Options, m *metrics.Metrics, logger *zap.Logger) *Cache {
	if opts.Max <= 0 || opts.Max > MaxPerKey {
		opts.Max = MaxPerKey
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = "img/thumbs"
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Cache{
		fs:        fs,
		fetcher:   f,
		encoder:   enc,
		urlPrefix: opts.URLPrefix,
		max:       opts.Max,
		metrics:   m,
		logger:    logger,
	}
}

// FileName returns the cache file name for slot i of key.
func (c *Cache) FileName(key string, i int) string {
	return fmt.Sprintf("thumb_%s_%d.%s", key, i, c.encoder.Ext())
}

// PublicPath returns the path written into content records for a cache file.
func (c *Cache) PublicPath(name string) string {
	return path.Join(c.urlPrefix, name)
}

// FileOf maps a public path back to its cache file name.
func (c *Cache) FileOf(publicPath string) string {
	return path.Base(publicPath)
}

// Max returns the slot bound per key.
func (c *Cache) Max() int {
	return c.max
}

// Result reports what Generate did.
type Result struct {
	Paths     []string
	Generated int
	Hits      int
	Failed    int
}

type slot struct {
	index int
	url   string
	name  string
	ok    bool
	hit   bool
}

// Generate fills the free slots of key from urls in order. A slot is free
// when its public path is not in taken. Failed fetches or decodes are logged
// and skipped. Returned paths are in slot order and every one of them is
// added to live.
func (c *Cache) Generate(ctx context.Context, key string, urls []string, taken []string, live *LiveSet) Result {
	used := make(map[string]struct{}, len(taken))
	for _, p := range taken {
		used[c.FileOf(p)] = struct{}{}
	}

	var slots []*slot
	for i := 0; i < c.max && len(slots) < len(urls); i++ {
		name := c.FileName(key, i)
		if _, ok := used[name]; ok {
			continue
		}
		slots = append(slots, &slot{index: i, url: urls[len(slots)], name: name})
	}
	if len(slots) == 0 {
		return Result{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(slots))
	for _, s := range slots {
		g.Go(func() error {
			c.fill(gctx, key, s)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	names := make([]string, 0, len(slots))
	for _, s := range slots {
		switch {
		case !s.ok:
			res.Failed++
			c.metrics.IncThumb("failed")
			continue
		case s.hit:
			res.Hits++
			c.metrics.IncThumb("hit")
		default:
			res.Generated++
			c.metrics.IncThumb("generated")
		}
		names = append(names, s.name)
		res.Paths = append(res.Paths, c.PublicPath(s.name))
	}
	if live != nil {
		live.Add(names...)
	}
	return res
}

func (c *Cache) fill(ctx context.Context, key string, s *slot) {
	if _, err := c.fs.Stat(s.name); err == nil {
		s.ok, s.hit = true, true
		c.logger.Debug("thumbnail cache hit", zap.String("key", key), zap.String("file", s.name))
		return
	}

	log := c.logger.With(zap.String("key", key), zap.Int("slot", s.index), zap.String("url", s.url))
	if err := ctx.Err(); err != nil {
		log.Warn("thumbnail skipped", zap.Error(err))
		return
	}

	src, err := c.fetcher.Fetch(ctx, s.url)
	if err != nil {
		log.Error("thumbnail fetch failed", zap.String("kind", string(fetcher.KindOf(err))), zap.Error(err))
		return
	}
	data, err := c.encoder.Encode(src)
	if err != nil {
		log.Error("thumbnail encode failed", zap.Error(err))
		return
	}
	if err := c.write(s.name, data); err != nil {
		log.Error("thumbnail write failed", zap.Error(err))
		return
	}
	s.ok = true
	log.Info("thumbnail created", zap.String("file", s.name), zap.Int("bytes", len(data)))
}

func (c *Cache) write(name string, data []byte) error {
	tmp := name + ".tmp"
	if err := util.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		return err
	}
	if err := c.fs.Rename(tmp, name); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}
	return nil
}

// Reset removes every file from the cache medium.
func (c *Cache) Reset() error {
	infos, err := c.fs.ReadDir(".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, info := range infos {
		if err := util.RemoveAll(c.fs, info.Name()); err != nil {
			return err
		}
	}
	return nil
}
