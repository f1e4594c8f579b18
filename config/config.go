// Package config loads and validates stocksync settings.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes environment overrides, e.g. STOCKSYNC_FEED_SOURCE.
const EnvPrefix = "STOCKSYNC"

// Config holds the full application configuration.
type Config struct {
	Feed            FeedConfig   `yaml:"feed" mapstructure:"feed"`
	ContentDir      string       `yaml:"content_dir" mapstructure:"content_dir"`
	ThumbsDir       string       `yaml:"thumbs_dir" mapstructure:"thumbs_dir"`
	ThumbsURLPrefix string       `yaml:"thumbs_url_prefix" mapstructure:"thumbs_url_prefix"`
	MappingFile     string       `yaml:"mapping_file" mapstructure:"mapping_file"`
	FallbackImage   string       `yaml:"fallback_image" mapstructure:"fallback_image"`
	ModelsPrefix    string       `yaml:"models_prefix" mapstructure:"models_prefix"`
	Dealer          DealerConfig `yaml:"dealer" mapstructure:"dealer"`
	Parallelism     int          `yaml:"parallelism" mapstructure:"parallelism"`
	Thumbs          ThumbsConfig `yaml:"thumbs" mapstructure:"thumbs"`
	Fetch           FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	ResetCache      bool         `yaml:"reset_cache" mapstructure:"reset_cache"`
	Report          ReportConfig `yaml:"report" mapstructure:"report"`
	MetricsAddr     string       `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	Log             LogConfig    `yaml:"log" mapstructure:"log"`
}

// FeedConfig locates the inventory feed.
type FeedConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	Format string `yaml:"format" mapstructure:"format"` // auto, xml, csv or xlsx
}

// DealerConfig holds the wording used in titles and descriptions.
type DealerConfig struct {
	Where string `yaml:"where" mapstructure:"where"`
	City  string `yaml:"city" mapstructure:"city"`
}

// ThumbsConfig controls preview generation.
type ThumbsConfig struct {
	Width   int `yaml:"width" mapstructure:"width"`
	Quality int `yaml:"quality" mapstructure:"quality"`
	Max     int `yaml:"max" mapstructure:"max"`
}

// FetchConfig controls the HTTP client.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	RetryBackoffMax time.Duration `yaml:"retry_backoff_max" mapstructure:"retry_backoff_max"`
	RatePerSecond   float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	CacheSize       int           `yaml:"cache_size" mapstructure:"cache_size"`
	UserAgent       string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// ReportConfig selects the optional run report file.
type ReportConfig struct {
	File   string `yaml:"file" mapstructure:"file"`
	Format string `yaml:"format" mapstructure:"format"` // csv, json or dual
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, console, or empty for auto
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Feed:            FeedConfig{Format: "auto"},
		ContentDir:      "content/cars",
		ThumbsDir:       "public/img/thumbs",
		ThumbsURLPrefix: "img/thumbs",
		MappingFile:     "models.yaml",
		FallbackImage:   "img/404.jpg",
		ModelsPrefix:    "img/models",
		Parallelism:     4,
		Thumbs: ThumbsConfig{
			Width:   360,
			Quality: 75,
			Max:     5,
		},
		Fetch: FetchConfig{
			Timeout:         20 * time.Second,
			MaxRetries:      2,
			RetryBackoff:    200 * time.Millisecond,
			RetryBackoffMax: 2 * time.Second,
			RatePerSecond:   0,
			CacheSize:       256,
			UserAgent:       "stocksync/1.0 (+https://github.com/aluiziolira/go-stock-sync)",
		},
		Report: ReportConfig{Format: "csv"},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Feed.Source == "" {
		return eris.New("feed source cannot be empty")
	}
	if strings.Contains(c.Feed.Source, "://") {
		u, err := url.Parse(c.Feed.Source)
		if err != nil {
			return eris.Wrap(err, "invalid feed URL")
		}
		if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return eris.New("feed URL must be http(s) and include a host")
		}
	}
	switch c.Feed.Format {
	case "", "auto", "xml", "csv", "xlsx":
	default:
		return eris.Errorf("feed format must be auto, xml, csv or xlsx, got %q", c.Feed.Format)
	}
	if err := c.ValidateDirs(); err != nil {
		return err
	}
	if c.MappingFile == "" {
		return eris.New("mapping file cannot be empty")
	}
	if c.Parallelism <= 0 {
		return eris.New("parallelism must be positive")
	}
	if c.Thumbs.Width <= 0 {
		return eris.New("thumbnail width must be positive")
	}
	if c.Thumbs.Quality <= 0 || c.Thumbs.Quality > 100 {
		return eris.New("thumbnail quality must be within 1..100")
	}
	if c.Thumbs.Max <= 0 || c.Thumbs.Max > 5 {
		return eris.New("thumbnails per vehicle must be within 1..5")
	}
	if c.Fetch.Timeout <= 0 {
		return eris.New("fetch timeout must be positive")
	}
	if c.Fetch.MaxRetries < 0 {
		return eris.New("max retries cannot be negative")
	}
	if c.Fetch.RetryBackoff < 0 {
		return eris.New("retry backoff cannot be negative")
	}
	if c.Fetch.RetryBackoffMax < 0 {
		return eris.New("retry backoff max cannot be negative")
	}
	if c.Fetch.RetryBackoffMax > 0 && c.Fetch.RetryBackoff > c.Fetch.RetryBackoffMax {
		return eris.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.Fetch.RetryBackoff, c.Fetch.RetryBackoffMax)
	}
	if c.Fetch.RatePerSecond < 0 {
		return eris.New("rate per second cannot be negative")
	}
	if c.Fetch.UserAgent == "" {
		return eris.New("user agent cannot be empty")
	}
	if c.Report.File != "" {
		switch c.Report.Format {
		case "csv", "json", "dual":
		default:
			return eris.New("report format must be csv, json, or dual")
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return eris.New("log format must be json or console")
	}
	return nil
}

// ValidateDirs checks the content and thumbnail directories on their own, for
// commands that never read the feed.
func (c *Config) ValidateDirs() error {
	if c.ContentDir == "" {
		return eris.New("content dir cannot be empty")
	}
	if c.ThumbsDir == "" {
		return eris.New("thumbs dir cannot be empty")
	}
	if dirsOverlap(c.ContentDir, c.ThumbsDir) {
		return eris.Errorf("content dir %q and thumbs dir %q must not overlap", c.ContentDir, c.ThumbsDir)
	}
	return nil
}

// dirsOverlap reports whether one directory equals or contains the other.
// The sweep deletes every unreferenced file in the thumbs dir, so the two
// must stay apart.
func dirsOverlap(a, b string) bool {
	a, b = absDir(a), absDir(b)
	return within(a, b) || within(b, a)
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Load reads configuration from defaults, an optional YAML file and
// STOCKSYNC_* environment variables, in increasing precedence. An empty path
// looks for stocksync.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stocksync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("feed.source", d.Feed.Source)
	v.SetDefault("feed.format", d.Feed.Format)
	v.SetDefault("content_dir", d.ContentDir)
	v.SetDefault("thumbs_dir", d.ThumbsDir)
	v.SetDefault("thumbs_url_prefix", d.ThumbsURLPrefix)
	v.SetDefault("mapping_file", d.MappingFile)
	v.SetDefault("fallback_image", d.FallbackImage)
	v.SetDefault("models_prefix", d.ModelsPrefix)
	v.SetDefault("dealer.where", d.Dealer.Where)
	v.SetDefault("dealer.city", d.Dealer.City)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("thumbs.width", d.Thumbs.Width)
	v.SetDefault("thumbs.quality", d.Thumbs.Quality)
	v.SetDefault("thumbs.max", d.Thumbs.Max)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.retry_backoff", d.Fetch.RetryBackoff)
	v.SetDefault("fetch.retry_backoff_max", d.Fetch.RetryBackoffMax)
	v.SetDefault("fetch.rate_per_second", d.Fetch.RatePerSecond)
	v.SetDefault("fetch.cache_size", d.Fetch.CacheSize)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("reset_cache", d.ResetCache)
	v.SetDefault("report.file", d.Report.File)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// InitLogger builds the global zap logger. An empty format picks console
// output on a terminal and JSON otherwise.
func InitLogger(cfg LogConfig) error {
	format := cfg.Format
	if format == "" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "console"
		}
	}

	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
