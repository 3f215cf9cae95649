package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
	"github.com/JakeFAU/hreflang-crawler/internal/retry"
)

func TestNewAppliesCollectorSettings(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true})
	require.Equal(t, "coverage-agent", f.baseCollector.UserAgent)
	require.False(t, f.baseCollector.IgnoreRobotsTxt)
	require.True(t, f.baseCollector.AllowURLRevisit)
	require.True(t, f.baseCollector.ParseHTTPErrorResponse)
	require.Equal(t, DefaultTimeout, f.cfg.Timeout)

	f = New(Config{})
	require.True(t, f.baseCollector.IgnoreRobotsTxt)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
		Cookies: []*http.Cookie{{Name: "session", Value: "abc"}, {Name: "ab", Value: "1"}},
	}
	start := time.Unix(0, 0)
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, start, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))
	require.Equal(t, "session=abc; ab=1", collyReq.Headers.Get("Cookie"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusNotFound,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com/final"),
		},
	})
	require.Equal(t, http.StatusNotFound, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))
	require.Equal(t, "https://example.com", result.URL)
	require.Equal(t, "https://example.com/final", result.FinalURL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesEmptyRequest(t *testing.T) {
	t.Parallel()

	collyReq := &colly.Request{Headers: &http.Header{}}
	copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func TestCopyHeadersReplacesCollectorDefaults(t *testing.T) {
	t.Parallel()

	collyReq := &colly.Request{Headers: &http.Header{"User-Agent": {"colly-default"}}}
	copyHeaders(crawler.FetchRequest{Headers: http.Header{"User-Agent": {"custom/2.0"}}}, collyReq)
	require.Equal(t, []string{"custom/2.0"}, collyReq.Headers.Values("User-Agent"))
}

func TestGetSendsConfiguredHeaders(t *testing.T) {
	t.Parallel()

	seen := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "hreflang-crawler/1.0", Timeout: 2 * time.Second})
	_, err := f.Get(context.Background(), crawler.FetchRequest{
		URL:     srv.URL,
		Headers: http.Header{
			"User-Agent": {"Example User agent"},
			"X-Market":   {"fr"},
		},
	})
	require.NoError(t, err)

	got := <-seen
	require.Equal(t, []string{"Example User agent"}, got.Values("User-Agent"))
	require.Equal(t, "fr", got.Get("X-Market"))
}

func TestGetKeepsCollectorUserAgentWithoutOverride(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("User-Agent")
		fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "hreflang-crawler/1.0", Timeout: 2 * time.Second})
	_, err := f.Get(context.Background(), crawler.FetchRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "hreflang-crawler/1.0", <-seen)
}

func TestIsPreflightError(t *testing.T) {
	t.Parallel()

	visited := &colly.AlreadyVisitedError{Destination: mustParseURL(t, "https://ex.com/a")}
	require.True(t, isPreflightError(fmt.Errorf("visit: %w", visited)))
	require.True(t, isPreflightError(colly.ErrRobotsTxtBlocked))
	require.True(t, isPreflightError(colly.ErrForbiddenDomain))
	require.False(t, isPreflightError(errors.New("connection reset")))
}

func TestCookieHeaderSkipsUnnamed(t *testing.T) {
	t.Parallel()

	got := cookieHeader([]*http.Cookie{nil, {Value: "orphan"}, {Name: "a", Value: "b"}})
	require.Equal(t, "a=b", got)
}

func TestGetReturnsErrorStatusWithoutError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Lang", r.Header.Get("Accept-Language"))
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "down")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Get(context.Background(), crawler.FetchRequest{
		URL:     srv.URL + "/page",
		Headers: http.Header{"Accept-Language": {"fr"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "down", string(resp.Body))
	require.Equal(t, "fr", resp.Headers.Get("X-Seen-Lang"))
}

func TestGetSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 2 * time.Second})
	for range 2 {
		resp, err := f.Get(context.Background(), crawler.FetchRequest{URL: srv.URL})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestGetRobotsBlockedIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /")
			return
		}
		fmt.Fprint(w, "<html></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{RespectRobots: true, Timeout: 2 * time.Second})
	_, err := f.Get(context.Background(), crawler.FetchRequest{URL: srv.URL + "/private"})
	require.ErrorIs(t, err, colly.ErrRobotsTxtBlocked)
	require.False(t, retry.DefaultPolicy().Retryable(err))
}

func TestGetHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Get(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
