package app

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/clock/system"
	"github.com/JakeFAU/hreflang-crawler/internal/config"
	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
	"github.com/JakeFAU/hreflang-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/hreflang-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/hreflang-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/hreflang-crawler/internal/id/uuid"
	"github.com/JakeFAU/hreflang-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/hreflang-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/hreflang-crawler/internal/sitemap"
	"github.com/JakeFAU/hreflang-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/hreflang-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hreflang-crawler/internal/storage/local"
	pgstore "github.com/JakeFAU/hreflang-crawler/internal/storage/postgres"
)

// Build constructs an App and every client cfg asks for. Call Close when done.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{}
	deps, opts, err := a.buildDeps(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	built, err := New(deps, opts, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	built.closers = a.closers
	return built, nil
}

func (a *App) buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (Deps, Options, error) {
	cookies, err := cfg.CookieValues()
	if err != nil {
		return Deps{}, Options{}, err
	}
	headers := cfg.HeaderValues()

	raw := collyfetcher.New(collyfetcher.Config{
		UserAgent:       cfg.Crawler.UserAgent,
		RespectRobots:   cfg.Crawler.RespectRobots,
		Timeout:         cfg.HTTP.Timeout,
		MaxConnsPerHost: cfg.HTTP.MaxConnsPerHost,
	})

	var pageGetter crawler.Getter = raw
	if cfg.Headless.Enabled {
		hl, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
			Settle:            cfg.Headless.Settle,
		})
		if err != nil {
			return Deps{}, Options{}, fmt.Errorf("headless fetcher: %w", err)
		}
		a.closers = append(a.closers, hl.Close)
		pageGetter = hl
		logger.Info("headless page fetching enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
	}

	pages, err := fetcher.New(pageGetter, fetcher.Config{
		Headers: headers,
		Cookies: cookies,
		Timeout: cfg.HTTP.Timeout,
		Retry:   cfg.RetryPolicy(),
	}, logger.Named("fetcher"))
	if err != nil {
		return Deps{}, Options{}, err
	}

	rate, err := ratelimit.NewAdaptive(cfg.AdaptiveConfig())
	if err != nil {
		return Deps{}, Options{}, fmt.Errorf("rate controller: %w", err)
	}

	deps := Deps{
		Sitemap: sitemap.NewReader(raw, sitemap.Config{
			Timeout: cfg.Sitemap.Timeout,
			Headers: headers,
			Cookies: cookies,
		}, logger.Named("sitemap")),
		Fetcher: pages,
		Rate:    rate,
		IDs:     uuid.New(),
		Clock:   system.New(),
	}
	if cfg.Crawler.PerHostRPS > 0 {
		deps.Hosts = ratelimit.NewHostLimiter(ratelimit.HostConfig{RPS: cfg.Crawler.PerHostRPS})
	}

	opts := Options{
		SitemapURL: cfg.Sitemap.URL,
		Seeds:      cfg.Seeds(),
		Workers:    cfg.Crawler.Workers,
		Jitter:     cfg.Crawler.Jitter,
		Sentinel:   cfg.Output.FailureSentinel,
		ListenAddr: cfg.Metrics.ListenAddr,
	}

	deps.Blobs, opts.ArtifactPath, err = a.buildBlobStore(ctx, cfg, logger)
	if err != nil {
		return Deps{}, Options{}, err
	}

	if cfg.DB.DSN != "" {
		store, err := pgstore.NewResultStore(ctx, pgstore.Config{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return Deps{}, Options{}, err
		}
		a.closers = append(a.closers, store.Close)
		if cfg.DB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return Deps{}, Options{}, err
			}
		}
		deps.Results = store
		logger.Info("postgres result store enabled", zap.String("table", cfg.DB.Table))
	}

	if cfg.PubSub.Topic != "" {
		pub, err := gcppublisher.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, map[string]string{
			"event": "hreflang.batch.completed",
		})
		if err != nil {
			return Deps{}, Options{}, err
		}
		a.closers = append(a.closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("pubsub publisher close failed", zap.Error(err))
			}
		})
		deps.Notify = pub
		logger.Info("pubsub notifications enabled", zap.String("topic", cfg.PubSub.Topic))
	}

	return deps, opts, nil
}

func (a *App) buildBlobStore(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (storage.BlobStore, func(string) string, error) {
	base := filepath.Base(cfg.Output.Path)
	if cfg.Output.DryRun {
		logger.Info("dry run: the report will be discarded")
		return storage.NoOp{}, func(string) string { return base }, nil
	}
	if cfg.Output.GCSBucket == "" {
		store, err := localstorage.New(localstorage.Config{BaseDir: filepath.Dir(cfg.Output.Path)})
		if err != nil {
			return nil, nil, fmt.Errorf("local report store: %w", err)
		}
		return store, func(string) string { return base }, nil
	}

	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create gcs client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := client.Close(); err != nil {
			logger.Warn("gcs client close failed", zap.Error(err))
		}
	})
	store, err := gcsstorage.New(client, gcsstorage.Config{
		Bucket: cfg.Output.GCSBucket,
		Prefix: cfg.Output.GCSPrefix,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("gcs report store: %w", err)
	}
	logger.Info("reports go to gcs", zap.String("bucket", cfg.Output.GCSBucket))
	return store, func(batchID string) string { return path.Join(batchID, base) }, nil
}
