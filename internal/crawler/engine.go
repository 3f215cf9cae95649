package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/metrics"
)

// DefaultWorkers is the pool size used when EngineConfig.Workers is unset.
const DefaultWorkers = 10

// EngineConfig controls the worker pool.
type EngineConfig struct {
	// Workers caps the number of in-flight fetches.
	Workers int
	// Jitter is the upper bound of the uniform random delay added to every
	// pacing sleep so workers do not fire in lockstep.
	Jitter time.Duration
}

// Engine fans URLs out to a bounded pool of workers and collects one outcome
// per URL. The RateController is shared by reference across all workers.
type Engine struct {
	cfg      EngineConfig
	fetcher  PageFetcher
	rate     RateController
	hosts    HostThrottle
	progress *Progress
	pauser   Pauser
	jitter   func(time.Duration) time.Duration
	logger   *zap.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithHostThrottle adds a per-host ceiling that workers wait on before pacing.
func WithHostThrottle(h HostThrottle) EngineOption {
	return func(e *Engine) {
		e.hosts = h
	}
}

// WithProgress publishes live counts to p while Run executes.
func WithProgress(p *Progress) EngineOption {
	return func(e *Engine) {
		e.progress = p
	}
}

// WithPauser replaces the timer-based sleep (tests use an instant pauser).
func WithPauser(p Pauser) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.pauser = p
		}
	}
}

// WithJitterSource replaces the random jitter generator.
func WithJitterSource(fn func(time.Duration) time.Duration) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.jitter = fn
		}
	}
}

// NewEngine wires an Engine around a fetcher and a shared rate controller.
func NewEngine(cfg EngineConfig, fetcher PageFetcher, rate RateController, logger *zap.Logger, opts ...EngineOption) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:     cfg,
		fetcher: fetcher,
		rate:    rate,
		pauser:  TimerPauser{},
		jitter:  UniformJitter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run crawls every unique URL and returns once each has a recorded outcome.
// Failures never stop the batch. When ctx ends, URLs that have not been
// fetched yet are recorded as failures without touching the network.
func (e *Engine) Run(ctx context.Context, urls []string) *ResultTable {
	seeds := UniqueURLs(urls)
	table := NewResultTable(seeds)
	if e.progress != nil {
		e.progress.start(len(seeds))
	}
	if len(seeds) == 0 {
		e.logger.Info("no urls to crawl")
		return table
	}

	workers := min(e.cfg.Workers, len(seeds))
	jobs := make(chan string)
	results := make(chan Result, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			e.work(ctx, idx, jobs, results)
		}(i)
	}
	go func() {
		defer close(jobs)
		for _, u := range seeds {
			jobs <- u
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	start := time.Now()
	e.logger.Info("crawl started", zap.Int("urls", len(seeds)), zap.Int("workers", workers))
	for res := range results {
		if !table.Set(res.URL, res.Outcome) {
			e.logger.Error("duplicate outcome discarded", zap.String("url", res.URL))
			continue
		}
		if e.progress != nil {
			e.progress.record(res.Outcome)
		}
	}

	succeeded, failed := table.Counts()
	e.logger.Info("crawl finished",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Float64("final_delay_seconds", e.rate.CurrentDelay()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return table
}

func (e *Engine) work(ctx context.Context, idx int, jobs <-chan string, results chan<- Result) {
	logger := e.logger.With(zap.Int("worker", idx))
	for url := range jobs {
		results <- Result{URL: url, Outcome: e.runTask(ctx, logger, url)}
	}
}

func (e *Engine) runTask(ctx context.Context, logger *zap.Logger, url string) (outcome Outcome) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger = logger.With(zap.String("url", url))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", zap.Any("panic", r))
			e.rate.OnFailure()
			metrics.ObserveFetch(url, metrics.StatusFailure)
			outcome = Failure(fmt.Errorf("task panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		metrics.ObserveFetch(url, metrics.StatusCanceled)
		return Failure(fmt.Errorf("batch canceled: %w", err))
	}
	if e.hosts != nil {
		if err := e.hosts.Wait(ctx, url); err != nil {
			metrics.ObserveFetch(url, metrics.StatusCanceled)
			return Failure(err)
		}
	}

	base := e.rate.CurrentDelay()
	delay := secondsToDuration(base) + e.jitter(e.cfg.Jitter)
	logger.Debug("task paced", zap.Float64("delay_seconds", base), zap.Duration("sleep", delay))
	metrics.ObservePacingDelay(delay)
	e.pauser.Pause(ctx, delay)
	if err := ctx.Err(); err != nil {
		metrics.ObserveFetch(url, metrics.StatusCanceled)
		return Failure(fmt.Errorf("batch canceled: %w", err))
	}

	logger.Info("crawling", zap.Float64("delay_seconds", base))
	outcome = e.fetcher.FetchPage(ctx, url)
	if outcome.Failed() {
		e.rate.OnFailure()
		metrics.ObserveFetch(url, metrics.StatusFailure)
		logger.Warn("page failed", zap.Error(outcome.Err()))
	} else {
		e.rate.OnSuccess()
		metrics.ObserveFetch(url, metrics.StatusSuccess)
		logger.Debug("page completed", zap.Int("languages", len(outcome.Hreflangs())))
	}
	metrics.SetCurrentDelay(e.rate.CurrentDelay())
	return outcome
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
