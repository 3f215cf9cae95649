// Package fetcher turns a page URL into a crawler.Outcome: it GETs the page
// through a crawler.Getter under a retry policy and extracts hreflang links.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
	"github.com/JakeFAU/hreflang-crawler/internal/hreflang"
	"github.com/JakeFAU/hreflang-crawler/internal/metrics"
	"github.com/JakeFAU/hreflang-crawler/internal/retry"
)

// Config is the request shape shared by every page GET.
type Config struct {
	Headers http.Header
	Cookies []*http.Cookie
	Timeout time.Duration
	Retry   retry.Policy
}

// Fetcher implements crawler.PageFetcher.
type Fetcher struct {
	getter crawler.Getter
	cfg    Config
	logger *zap.Logger
}

// New returns a page fetcher. An invalid retry policy is rejected.
func New(getter crawler.Getter, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if getter == nil {
		return nil, errors.New("fetcher: getter is required")
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{getter: getter, cfg: cfg, logger: logger}, nil
}

// FetchPage GETs url, retrying transient failures, and parses the final body.
// It never panics or returns an error; every problem becomes a Failure.
func (f *Fetcher) FetchPage(ctx context.Context, url string) (outcome crawler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = crawler.Failure(fmt.Errorf("fetch panic: %v", r))
		}
	}()

	var resp crawler.FetchResponse
	err := f.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		r, err := f.getter.Get(ctx, f.request(url))
		if err != nil {
			return err
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			return &retry.StatusError{URL: url, Code: r.StatusCode}
		}
		resp = r
		return nil
	}, func(n int, err error, wait time.Duration) {
		metrics.ObserveRetry(url)
		f.logger.Debug("retrying page",
			zap.String("url", url),
			zap.Int("retry", n),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return crawler.Failure(err)
	}

	base := url
	if resp.FinalURL != "" {
		base = resp.FinalURL
	}
	links, err := hreflang.Extract(base, resp.Body)
	if err != nil {
		return crawler.Failure(fmt.Errorf("extract hreflang from %s: %w", url, err))
	}
	return crawler.Success(links)
}

func (f *Fetcher) request(url string) crawler.FetchRequest {
	return crawler.FetchRequest{
		URL:     url,
		Headers: f.cfg.Headers.Clone(),
		Cookies: f.cfg.Cookies,
		Timeout: f.cfg.Timeout,
	}
}
