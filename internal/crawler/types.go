package crawler

import (
	"errors"
	"net/http"
	"time"
)

// ErrNoSeeds is returned by callers that require at least one seed source.
var ErrNoSeeds = errors.New("no sitemap or seed urls configured")

// HreflangMap maps a language code (e.g. "en-us") to the absolute URL of the
// alternate page advertised for it.
type HreflangMap map[string]string

// Outcome is the result of fetching one page: either a HreflangMap or a
// failure marker. The zero value is a successful fetch with no alternates.
type Outcome struct {
	hreflangs HreflangMap
	failed    bool
	err       error
}

// Success wraps the alternates found on a page. A nil or empty map is valid.
func Success(m HreflangMap) Outcome {
	return Outcome{hreflangs: m}
}

// Failure marks a page whose fetch or parse did not complete. err is kept for
// logging only.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Outcome{failed: true, err: err}
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.failed
}

// Hreflangs returns the alternates of a successful outcome, nil on failure.
func (o Outcome) Hreflangs() HreflangMap {
	if o.failed {
		return nil
	}
	return o.hreflangs
}

// Err returns the cause of a failure, nil on success.
func (o Outcome) Err() error {
	return o.err
}

// Result pairs a URL with its outcome as it travels from a worker back to the
// collector.
type Result struct {
	URL     string
	Outcome Outcome
}

// FetchRequest captures everything a Getter needs to issue a GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Cookies []*http.Cookie
	Timeout time.Duration
}

// FetchResponse is what a Getter returns for a completed HTTP exchange.
// Non-2xx responses are returned with a nil error; callers inspect StatusCode.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
