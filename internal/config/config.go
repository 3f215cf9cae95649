// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
	"github.com/JakeFAU/hreflang-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/hreflang-crawler/internal/retry"
)

// EnvPrefix prefixes every environment override, e.g. CRAWLER_HTTP_TIMEOUT.
const EnvPrefix = "CRAWLER"

// Config captures every knob of a crawl run.
type Config struct {
	Sitemap  SitemapConfig  `mapstructure:"sitemap"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Rate     RateConfig     `mapstructure:"rate"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Output   OutputConfig   `mapstructure:"output"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SitemapConfig locates the sitemap listing the pages to crawl.
type SitemapConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CrawlerConfig governs the worker pool and the request shape.
type CrawlerConfig struct {
	Seeds         []string          `mapstructure:"seeds"`
	Workers       int               `mapstructure:"workers"`
	UserAgent     string            `mapstructure:"user_agent"`
	Headers       map[string]string `mapstructure:"headers"`
	Cookies       []string          `mapstructure:"cookies"`
	RespectRobots bool              `mapstructure:"respect_robots"`
	Jitter        time.Duration     `mapstructure:"jitter"`
	PerHostRPS    float64           `mapstructure:"per_host_rps"`
}

// RateConfig bounds the adaptive delay, in seconds.
type RateConfig struct {
	MinDelay float64 `mapstructure:"min_delay"`
	MaxDelay float64 `mapstructure:"max_delay"`
	Decrease float64 `mapstructure:"decrease"`
	Increase float64 `mapstructure:"increase"`
}

// HTTPConfig configures per-request timeout and retry behavior.
type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	RetryStatuses   []int         `mapstructure:"retry_statuses"`
	BackoffJitter   bool          `mapstructure:"backoff_jitter"`
	MaxConnsPerHost int           `mapstructure:"max_conns_per_host"`
}

// HeadlessConfig switches page fetching to headless Chrome.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	Settle      time.Duration `mapstructure:"settle"`
}

// OutputConfig controls where the report goes.
type OutputConfig struct {
	Path            string `mapstructure:"path"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	GCSPrefix       string `mapstructure:"gcs_prefix"`
	FailureSentinel string `mapstructure:"failure_sentinel"`
	// DryRun crawls and logs the summary but discards the report.
	DryRun bool `mapstructure:"dry_run"`
}

// DBConfig enables per-URL persistence in Postgres when DSN is set.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// PubSubConfig enables a batch completion notice when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig exposes /metrics and /healthz while a batch runs.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// New returns a Viper instance with defaults and environment overrides
// installed, ready for flag binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path (when non-empty) into v and decodes a validated Config.
// A nil v gets New().
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sitemap.url", "")
	v.SetDefault("sitemap.timeout", "10s")
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.workers", crawler.DefaultWorkers)
	v.SetDefault("crawler.user_agent", "hreflang-crawler/1.0")
	v.SetDefault("crawler.headers", map[string]string{})
	v.SetDefault("crawler.cookies", []string{})
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.jitter", "1s")
	v.SetDefault("crawler.per_host_rps", 0)
	v.SetDefault("rate.min_delay", ratelimit.DefaultMinDelay)
	v.SetDefault("rate.max_delay", ratelimit.DefaultMaxDelay)
	v.SetDefault("rate.decrease", ratelimit.DefaultDecrease)
	v.SetDefault("rate.increase", ratelimit.DefaultIncrease)
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base", "300ms")
	v.SetDefault("http.backoff_max", "10s")
	v.SetDefault("http.retry_statuses", retry.DefaultRetryableStatuses)
	v.SetDefault("http.backoff_jitter", true)
	v.SetDefault("http.max_conns_per_host", 0)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout", "25s")
	v.SetDefault("headless.settle", "500ms")
	v.SetDefault("output.path", "hreflang_map.csv")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_prefix", "")
	v.SetDefault("output.failure_sentinel", "ERROR")
	v.SetDefault("output.dry_run", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "hreflang_results")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Sitemap.URL) == "" && len(crawler.UniqueURLs(c.Crawler.Seeds)) == 0 {
		return crawler.ErrNoSeeds
	}
	if c.Sitemap.URL != "" && !crawler.IsValidURL(c.Sitemap.URL) {
		return fmt.Errorf("sitemap.url %q is not an absolute url", c.Sitemap.URL)
	}
	if c.Sitemap.Timeout <= 0 {
		return fmt.Errorf("sitemap.timeout must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.Jitter < 0 {
		return fmt.Errorf("crawler.jitter must be >= 0")
	}
	if c.Crawler.PerHostRPS < 0 {
		return fmt.Errorf("crawler.per_host_rps must be >= 0")
	}
	if _, err := c.CookieValues(); err != nil {
		return err
	}
	if _, err := ratelimit.NewAdaptive(c.AdaptiveConfig()); err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path is required")
	}
	if c.Output.FailureSentinel == "" {
		return fmt.Errorf("output.failure_sentinel must not be empty")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// Seeds returns the trimmed, deduplicated seed list.
func (c Config) Seeds() []string {
	return crawler.UniqueURLs(c.Crawler.Seeds)
}

// HeaderValues returns the configured request headers, with the user agent
// applied unless a User-Agent header was given explicitly.
func (c Config) HeaderValues() http.Header {
	h := make(http.Header, len(c.Crawler.Headers)+1)
	for k, v := range c.Crawler.Headers {
		h.Set(k, v)
	}
	if h.Get("User-Agent") == "" && c.Crawler.UserAgent != "" {
		h.Set("User-Agent", c.Crawler.UserAgent)
	}
	return h
}

// CookieValues parses crawler.cookies entries of the form name=value.
func (c Config) CookieValues() ([]*http.Cookie, error) {
	cookies := make([]*http.Cookie, 0, len(c.Crawler.Cookies))
	for _, raw := range c.Crawler.Cookies {
		name, value, ok := strings.Cut(strings.TrimSpace(raw), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("crawler.cookies entry %q must be name=value", raw)
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies, nil
}

// AdaptiveConfig converts the rate section.
func (c Config) AdaptiveConfig() ratelimit.AdaptiveConfig {
	return ratelimit.AdaptiveConfig{
		MinDelay: c.Rate.MinDelay,
		MaxDelay: c.Rate.MaxDelay,
		Decrease: c.Rate.Decrease,
		Increase: c.Rate.Increase,
	}
}

// RetryPolicy converts the http section.
func (c Config) RetryPolicy() retry.Policy {
	statuses := c.HTTP.RetryStatuses
	if statuses == nil {
		statuses = retry.DefaultRetryableStatuses
	}
	return retry.Policy{
		MaxRetries:        c.HTTP.MaxRetries,
		BackoffBase:       c.HTTP.BackoffBase,
		MaxBackoff:        c.HTTP.BackoffMax,
		RetryableStatuses: append([]int(nil), statuses...),
		Jitter:            c.HTTP.BackoffJitter,
	}
}
