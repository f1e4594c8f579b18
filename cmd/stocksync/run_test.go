package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-stock-sync/config"
	"github.com/aluiziolira/go-stock-sync/content"
	"github.com/aluiziolira/go-stock-sync/metrics"
	"github.com/aluiziolira/go-stock-sync/models"
)

const gs8Key = "gac-gs8-20t-gl-черный-2023"

type echoFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *echoFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []byte(url), nil
}

type copyEncoder struct{}

func (copyEncoder) Encode(src []byte) ([]byte, error) { return src, nil }
func (copyEncoder) Ext() string                       { return "webp" }

func car(vin, images string) string {
	return `<car>
  <mark_id>GAC</mark_id>
  <folder_id>GS8</folder_id>
  <modification_id>2.0T</modification_id>
  <complectation_name>GL</complectation_name>
  <color>черный</color>
  <year>2023</year>
  <vin>` + vin + `</vin>
  <total>1</total>
  <price>3500000</price>
  <images>` + images + `</images>
</car>`
}

func writeFeed(t *testing.T, dir string, cars ...string) string {
	t.Helper()
	path := filepath.Join(dir, "feed.xml")
	data := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<data><cars>" + strings.Join(cars, "") + "</cars></data>"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.ContentDir = filepath.Join(dir, "content", "cars")
	c.ThumbsDir = filepath.Join(dir, "public", "img", "thumbs")
	c.MappingFile = filepath.Join(dir, "models.yaml")
	c.Dealer = config.DealerConfig{Where: "Москве", City: "Москва"}
	c.Parallelism = 2
	require.NoError(t, os.WriteFile(c.MappingFile, []byte("models:\n  GS8:\n    folder: gs8\n    color:\n      Черный: black.webp\n"), 0o644))
	c.Feed.Source = writeFeed(t, dir,
		car("VIN0000000000001", "<image>http://cdn.test/a.jpg</image><image>http://cdn.test/b.jpg</image>"),
		car("VIN0000000000002", "<image>http://cdn.test/c.jpg</image>"),
	)
	return c
}

func syncOnce(t *testing.T, c *config.Config) (models.RunResult, error) {
	t.Helper()
	_, res, err := runSync(context.Background(), c, &echoFetcher{}, copyEncoder{}, metrics.New(), zap.NewNop())
	return res, err
}

func TestRunSync_MergesAndSweeps(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.MkdirAll(c.ThumbsDir, 0o755))
	require.NoError(t, os.MkdirAll(c.ContentDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(c.ThumbsDir, "thumb_old_0.webp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(c.ContentDir, "old.mdx"), []byte("---\n---\n"), 0o644))

	res, err := syncOnce(t, c)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Merged)
	assert.Equal(t, 3, res.Generated)
	assert.Equal(t, 1, res.Swept)
	assert.Equal(t, 3, res.Kept)
	assert.False(t, res.SweepSkip)

	store := content.NewStore(osfs.New(c.ContentDir), content.DefaultExt)
	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{gs8Key}, keys)

	rec, err := store.Read(gs8Key)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Total)
	assert.Equal(t, "img/models/gs8/colors/black.webp", rec.Image)
	assert.Len(t, rec.Thumbs, 3)

	_, err = os.Stat(filepath.Join(c.ThumbsDir, "thumb_old_0.webp"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(filepath.Join(c.ThumbsDir, "thumb_"+gs8Key+"_0.webp"))
	assert.NoError(t, err)
}

func TestRunSync_SecondRunHitsCache(t *testing.T) {
	c := testConfig(t)
	_, err := syncOnce(t, c)
	require.NoError(t, err)

	f := &echoFetcher{}
	_, res, err := runSync(context.Background(), c, f, copyEncoder{}, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, f.calls)
	assert.Equal(t, 3, res.CacheHits)
	assert.Equal(t, 0, res.Swept)
}

func TestRunSync_ResetCacheRegenerates(t *testing.T) {
	c := testConfig(t)
	_, err := syncOnce(t, c)
	require.NoError(t, err)

	c.ResetCache = true
	res, err := syncOnce(t, c)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Generated)
	assert.Equal(t, 0, res.CacheHits)
}

func TestRunSync_TruncatedFeedSkipsSweep(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.MkdirAll(c.ThumbsDir, 0o755))
	orphan := filepath.Join(c.ThumbsDir, "thumb_old_0.webp")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(c.Feed.Source, []byte("<data><cars><car><vin>1</car>"), 0o644))

	res, err := syncOnce(t, c)
	require.Error(t, err)
	assert.True(t, res.SweepSkip)
	_, err = os.Stat(orphan)
	assert.NoError(t, err)
}

func TestRunSync_MissingMappingFileUsesFallback(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.Remove(c.MappingFile))

	res, err := syncOnce(t, c)
	require.NoError(t, err)
	// only the creating record resolves the cover
	require.Len(t, res.Missing, 1)
	assert.Equal(t, models.MissingMapping{VIN: "VIN0000000000001", Model: "GS8"}, res.Missing[0])

	rec, err := content.NewStore(osfs.New(c.ContentDir), content.DefaultExt).Read(gs8Key)
	require.NoError(t, err)
	assert.Equal(t, c.FallbackImage, rec.Image)
}

func TestRunSync_LockedDirectory(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, os.MkdirAll(c.ContentDir, 0o755))

	lock, err := acquireLock(c.ContentDir)
	require.NoError(t, err)
	defer lock.Unlock() //nolint:errcheck

	_, err = syncOnce(t, c)
	assert.True(t, errors.Is(err, ErrLocked))
}

func TestSweepExisting(t *testing.T) {
	c := testConfig(t)
	_, err := syncOnce(t, c)
	require.NoError(t, err)

	orphan := filepath.Join(c.ThumbsDir, "thumb_gone_0.webp")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))

	res, err := sweepExisting(c, metrics.New(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 3, res.Kept)
}

func TestSweepExisting_RejectsSharedDirectory(t *testing.T) {
	c := testConfig(t)
	_, err := syncOnce(t, c)
	require.NoError(t, err)

	c.ThumbsDir = c.ContentDir
	_, err = sweepExisting(c, metrics.New(), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not overlap")

	_, err = os.Stat(filepath.Join(c.ContentDir, gs8Key+"."+content.DefaultExt))
	assert.NoError(t, err)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	err := writeReport(config.ReportConfig{File: path, Format: "csv"},
		[]models.Outcome{{Key: gs8Key, Status: models.StatusCreated}},
		[]models.MissingMapping{{VIN: "V1", Model: "Z9"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), gs8Key)
	assert.Contains(t, string(data), "Z9")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, models.RunResult{
		RunID:   "run-1",
		Records: 3,
		Created: 2,
		Merged:  1,
		Missing: []models.MissingMapping{{VIN: "V1", Model: "Z9"}},
	}, 1500*time.Millisecond, nil)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "Created")
	assert.Contains(t, out, "0 deleted, 0 kept")
	assert.Contains(t, out, "Z9")

	buf.Reset()
	printSummary(&buf, models.RunResult{SweepSkip: true}, 0, nil)
	assert.Contains(t, buf.String(), "skipped")
	assert.NotContains(t, buf.String(), "missing from the image mapping")
}

func TestPrintKeys(t *testing.T) {
	dir := t.TempDir()
	source := writeFeed(t, dir,
		car("VIN0000000000001", ""),
		"<car><vin>VIN0000000000009</vin></car>",
	)

	var buf bytes.Buffer
	require.NoError(t, printKeys(context.Background(), &buf, source, "auto", &echoFetcher{}))

	out := buf.String()
	assert.Contains(t, out, gs8Key)
	assert.Contains(t, out, "GAC GS8 2.0T GL черный 2023")
	assert.Contains(t, out, "no key fields present")
}
