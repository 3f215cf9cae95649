package crawler

import (
	"context"
	"time"
)

// Getter issues a single HTTP GET. It never retries.
type Getter interface {
	Get(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageFetcher turns a page URL into an Outcome. Implementations must not
// return errors or panic across this boundary; every problem is a Failure.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) Outcome
}

// SitemapReader lists candidate page URLs from a sitemap. Unreachable or
// malformed sitemaps yield an empty slice.
type SitemapReader interface {
	Read(ctx context.Context, sitemapURL string) []string
}

// RateController holds the shared adaptive delay, in seconds.
type RateController interface {
	CurrentDelay() float64
	OnSuccess()
	OnFailure()
}

// HostThrottle is an optional hard per-host ceiling applied before pacing.
type HostThrottle interface {
	Wait(ctx context.Context, url string) error
}

// Pauser blocks for a duration or until the context ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs.
type IDGenerator interface {
	NewID() (string, error)
}
