package sitemap

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
)

const urlset = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://ex.com/a</loc></url>
  <url><lastmod>2024-01-01</lastmod></url>
  <url><loc>  https://ex.com/b  </loc></url>
  <url><loc>/relative</loc></url>
  <url><loc></loc></url>
  <url><loc>https://ex.com/a</loc></url>
</urlset>`

const index = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://ex.com/sitemap-1.xml</loc></sitemap>
  <sitemap><loc>https://ex.com/sitemap-2.xml</loc></sitemap>
  <sitemap><loc>https://ex.com/missing.xml</loc></sitemap>
</sitemapindex>`

type fakeGetter struct {
	mu       sync.Mutex
	pages    map[string]crawler.FetchResponse
	errs     map[string]error
	requests []crawler.FetchRequest
}

func (f *fakeGetter) Get(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.URL]; err != nil {
		return crawler.FetchResponse{}, err
	}
	if resp, ok := f.pages[req.URL]; ok {
		return resp, nil
	}
	return crawler.FetchResponse{StatusCode: http.StatusNotFound}, nil
}

func ok(body string) crawler.FetchResponse {
	return crawler.FetchResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestParseSkipsMissingAndInvalidLoc(t *testing.T) {
	t.Parallel()

	accepted, skipped, err := Parse(strings.NewReader(urlset))
	require.NoError(t, err)
	require.Equal(t, []string{"https://ex.com/a", "https://ex.com/b", "https://ex.com/a"}, accepted)
	require.Equal(t, []string{"", "/relative", ""}, skipped)
}

func TestParseOneValidOneMissing(t *testing.T) {
	t.Parallel()

	body := `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://ex.com/only</loc></url>
<url></url>
</urlset>`
	accepted, _, err := Parse(strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, []string{"https://ex.com/only"}, accepted)
}

func TestParseIgnoresForeignNamespace(t *testing.T) {
	t.Parallel()

	accepted, _, err := Parse(strings.NewReader(`<urlset><url><loc>https://ex.com/a</loc></url></urlset>`))
	require.NoError(t, err)
	require.Empty(t, accepted)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	_, _, err := Parse(strings.NewReader(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url>`))
	require.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	t.Parallel()

	children, skipped, err := ParseIndex(strings.NewReader(index))
	require.NoError(t, err)
	require.Len(t, children, 3)
	require.Empty(t, skipped)
}

func TestReadDedupesAndSendsRequestShape(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{pages: map[string]crawler.FetchResponse{
		"https://ex.com/sitemap.xml": ok(urlset),
	}}
	r := NewReader(g, Config{
		Timeout: 3 * time.Second,
		Headers: http.Header{"User-Agent": {"probe"}},
		Cookies: []*http.Cookie{{Name: "c", Value: "1"}},
	}, nil)

	got := r.Read(context.Background(), "https://ex.com/sitemap.xml")
	require.Equal(t, []string{"https://ex.com/a", "https://ex.com/b"}, got)
	require.Len(t, g.requests, 1)
	require.Equal(t, 3*time.Second, g.requests[0].Timeout)
	require.Equal(t, "probe", g.requests[0].Headers.Get("User-Agent"))
	require.Len(t, g.requests[0].Cookies, 1)
}

func TestReadFollowsIndexOneLevel(t *testing.T) {
	t.Parallel()

	g := &fakeGetter{pages: map[string]crawler.FetchResponse{
		"https://ex.com/sitemap.xml": ok(index),
		"https://ex.com/sitemap-1.xml": ok(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://ex.com/1</loc></url><url><loc>https://ex.com/shared</loc></url></urlset>`),
		"https://ex.com/sitemap-2.xml": ok(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>https://ex.com/shared</loc></url><url><loc>https://ex.com/2</loc></url></urlset>`),
	}}

	got := NewReader(g, Config{}, nil).Read(context.Background(), "https://ex.com/sitemap.xml")
	require.Equal(t, []string{"https://ex.com/1", "https://ex.com/shared", "https://ex.com/2"}, got)
	require.Len(t, g.requests, 4)
	require.Equal(t, DefaultTimeout, g.requests[0].Timeout)
}

func TestReadFailuresYieldEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		getter *fakeGetter
	}{
		{
			name:   "transport",
			getter: &fakeGetter{errs: map[string]error{"https://ex.com/s.xml": errors.New("dial tcp: refused")}},
		},
		{
			name:   "status",
			getter: &fakeGetter{},
		},
		{
			name: "malformed",
			getter: &fakeGetter{pages: map[string]crawler.FetchResponse{
				"https://ex.com/s.xml": ok("<urlset><url><loc>https://ex.com/a"),
			}},
		},
		{
			name: "html",
			getter: &fakeGetter{pages: map[string]crawler.FetchResponse{
				"https://ex.com/s.xml": ok("<html><body>not a sitemap</body></html>"),
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewReader(tt.getter, Config{}, nil).Read(context.Background(), "https://ex.com/s.xml")
			require.Empty(t, got)
			require.Len(t, tt.getter.requests, 1)
		})
	}
}

type panicGetter struct{}

func (panicGetter) Get(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
	panic("boom")
}

func TestReadRecoversPanic(t *testing.T) {
	t.Parallel()

	require.Empty(t, NewReader(panicGetter{}, Config{}, nil).Read(context.Background(), "https://ex.com/s.xml"))
}
