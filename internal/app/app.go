// Package app wires the crawl pipeline: sitemap, engine, report and sinks.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
	"github.com/JakeFAU/hreflang-crawler/internal/hash/sha256"
	"github.com/JakeFAU/hreflang-crawler/internal/metrics"
	"github.com/JakeFAU/hreflang-crawler/internal/report"
	"github.com/JakeFAU/hreflang-crawler/internal/server"
	"github.com/JakeFAU/hreflang-crawler/internal/storage"
	"github.com/JakeFAU/hreflang-crawler/internal/storage/postgres"
)

// SourceSeeds names the batch source when no sitemap was configured.
const SourceSeeds = "seeds"

// Batch statuses reported to metrics.
const (
	BatchCompleted = "completed"
	BatchFailed    = "failed"
)

// ResultSaver persists the per-URL outcomes of a batch.
type ResultSaver interface {
	SaveBatch(ctx context.Context, batch postgres.Batch, table *crawler.ResultTable) error
}

// Notifier announces a finished batch.
type Notifier interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Deps are the collaborators of an App. Hosts, Results, Notify and Pauser are
// optional, and Sitemap is only needed when Options.SitemapURL is set.
type Deps struct {
	Sitemap crawler.SitemapReader
	Fetcher crawler.PageFetcher
	Rate    crawler.RateController
	Hosts   crawler.HostThrottle
	Blobs   storage.BlobStore
	Results ResultSaver
	Notify  Notifier
	IDs     crawler.IDGenerator
	Clock   crawler.Clock
	Pauser  crawler.Pauser
}

// Options describe one batch.
type Options struct {
	SitemapURL string
	Seeds      []string
	Workers    int
	Jitter     time.Duration
	Sentinel   string
	// ArtifactPath maps a batch id to the object path of the CSV report.
	ArtifactPath func(batchID string) string
	// ListenAddr, when set, serves the operational routes for the duration
	// of the batch.
	ListenAddr string
}

// Summary is the outcome of Run. It doubles as the Pub/Sub payload.
type Summary struct {
	BatchID      string    `json:"batch_id"`
	Source       string    `json:"source"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	URLs         int       `json:"urls"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Languages    []string  `json:"languages"`
	ReportURI    string    `json:"report_uri"`
	ReportSHA256 string    `json:"report_sha256"`
	ReportBytes  int64     `json:"report_bytes"`
}

// App runs crawl batches. It is safe to call Status concurrently with Run.
type App struct {
	deps     Deps
	opts     Options
	logger   *zap.Logger
	progress crawler.Progress
	closers  []func()

	mu      sync.Mutex
	current *server.Status
}

// New validates deps and returns an App.
func New(deps Deps, opts Options, logger *zap.Logger) (*App, error) {
	switch {
	case deps.Sitemap == nil && opts.SitemapURL != "":
		return nil, errors.New("app: sitemap reader is required when a sitemap url is set")
	case deps.Fetcher == nil:
		return nil, errors.New("app: page fetcher is required")
	case deps.Rate == nil:
		return nil, errors.New("app: rate controller is required")
	case deps.Blobs == nil:
		return nil, errors.New("app: blob store is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("app: id generator is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("app: clock is required")
	}
	if opts.Sentinel == "" {
		opts.Sentinel = report.DefaultSentinel
	}
	if opts.ArtifactPath == nil {
		opts.ArtifactPath = func(string) string { return "hreflang_map.csv" }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{deps: deps, opts: opts, logger: logger}, nil
}

// Status reports the running batch for the /v1/batch route.
func (a *App) Status() (server.Status, bool) {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur == nil {
		return server.Status{}, false
	}
	st := *cur
	st.Delay = a.deps.Rate.CurrentDelay()
	st.Progress = a.progress.Snapshot()
	return st, true
}

func (a *App) setStatus(st server.Status) {
	a.mu.Lock()
	a.current = &st
	a.mu.Unlock()
}

// Run crawls one batch and writes its report. Fetch failures are recorded in
// the report; only sink failures are returned.
func (a *App) Run(ctx context.Context) (Summary, error) {
	batchID, err := a.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate batch id: %w", err)
	}
	summary := Summary{
		BatchID:   batchID,
		Source:    a.source(),
		StartedAt: a.deps.Clock.Now(),
	}
	logger := a.logger.With(zap.String("batch_id", batchID))
	a.setStatus(server.Status{BatchID: batchID, Source: summary.Source, Started: summary.StartedAt})

	if a.opts.ListenAddr != "" {
		serveCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			srv := server.New(logger.Named("http"), a.Status)
			if err := srv.ListenAndServe(serveCtx, a.opts.ListenAddr); err != nil {
				logger.Warn("operational server stopped", zap.Error(err))
			}
		}()
		defer func() {
			stop()
			<-done
		}()
	}

	urls := a.collect(ctx, logger)
	summary.URLs = len(urls)
	logger.Info("batch started", zap.String("source", summary.Source), zap.Int("urls", len(urls)))

	engineOpts := []crawler.EngineOption{crawler.WithProgress(&a.progress)}
	if a.deps.Hosts != nil {
		engineOpts = append(engineOpts, crawler.WithHostThrottle(a.deps.Hosts))
	}
	if a.deps.Pauser != nil {
		engineOpts = append(engineOpts, crawler.WithPauser(a.deps.Pauser))
	}
	engine := crawler.NewEngine(
		crawler.EngineConfig{Workers: a.opts.Workers, Jitter: a.opts.Jitter},
		a.deps.Fetcher, a.deps.Rate, logger.Named("engine"), engineOpts...,
	)
	table := engine.Run(ctx, urls)
	summary.Succeeded, summary.Failed = table.Counts()

	rep := report.Aggregate(table, a.opts.Sentinel)
	summary.Languages = rep.Languages

	// Sinks run on a context detached from cancellation so an interrupted
	// batch still leaves its report behind.
	sinkCtx := context.WithoutCancel(ctx)
	uri, err := a.writeReport(sinkCtx, batchID, rep, &summary)
	if err != nil {
		metrics.ObserveBatch(BatchFailed)
		return summary, err
	}
	summary.FinishedAt = a.deps.Clock.Now()

	if a.deps.Results != nil {
		batch := postgres.Batch{
			ID:         batchID,
			Source:     summary.Source,
			StartedAt:  summary.StartedAt,
			FinishedAt: summary.FinishedAt,
			ReportURI:  uri,
		}
		if err := a.deps.Results.SaveBatch(sinkCtx, batch, table); err != nil {
			metrics.ObserveBatch(BatchFailed)
			return summary, fmt.Errorf("save results: %w", err)
		}
	}
	if a.deps.Notify != nil {
		msgID, err := a.deps.Notify.Publish(sinkCtx, summary)
		if err != nil {
			logger.Warn("batch notification failed", zap.Error(err))
		} else {
			logger.Debug("batch notification published", zap.String("message_id", msgID))
		}
	}

	metrics.ObserveBatch(BatchCompleted)
	logger.Info("crawl completed",
		zap.String("report", uri),
		zap.String("sha256", summary.ReportSHA256),
		zap.Int("urls", summary.URLs),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("languages", len(summary.Languages)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// Close releases the clients opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) source() string {
	if a.opts.SitemapURL != "" {
		return a.opts.SitemapURL
	}
	return SourceSeeds
}

func (a *App) collect(ctx context.Context, logger *zap.Logger) []string {
	var urls []string
	if a.opts.SitemapURL != "" {
		urls = a.deps.Sitemap.Read(ctx, a.opts.SitemapURL)
		if len(urls) == 0 {
			logger.Warn("sitemap yielded no urls", zap.String("sitemap", a.opts.SitemapURL))
		}
	}
	return crawler.UniqueURLs(append(urls, a.opts.Seeds...))
}

func (a *App) writeReport(ctx context.Context, batchID string, rep report.Report, summary *Summary) (string, error) {
	var buf bytes.Buffer
	digest := sha256.NewWriter(&buf)
	if err := report.WriteCSV(digest, rep); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	path := a.opts.ArtifactPath(batchID)
	uri, err := a.deps.Blobs.PutObject(ctx, path, report.ContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	summary.ReportURI = uri
	summary.ReportSHA256 = digest.Sum()
	summary.ReportBytes = digest.Len()
	return uri, nil
}
