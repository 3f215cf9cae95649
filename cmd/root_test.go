package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/app"
	"github.com/JakeFAU/hreflang-crawler/internal/config"
)

type fakeRunner struct {
	summary app.Summary
	err     error
	closed  bool
}

func (f *fakeRunner) Run(context.Context) (app.Summary, error) { return f.summary, f.err }
func (f *fakeRunner) Close() { f.closed = true }

func withRunner(t *testing.T, r Runner, buildErr error) *config.Config {
	t.Helper()
	var got config.Config
	prev := newRunner
	newRunner = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		got = cfg
		if buildErr != nil {
			return nil, buildErr
		}
		return r, nil
	}
	t.Cleanup(func() { newRunner = prev })
	return &got
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(config.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCrawlFlagsReachConfig(t *testing.T) {
	runner := &fakeRunner{summary: app.Summary{ReportURI: "file:///tmp/map.csv"}}
	got := withRunner(t, runner, nil)

	out, err := execute(t, "crawl",
		"--sitemap", "https://ex.com/sitemap.xml",
		"--seed", "https://ex.com/a,https://ex.com/b",
		"--output", filepath.Join(t.TempDir(), "map.csv"),
		"--workers", "3",
		"--dev=false",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "file:///tmp/map.csv")
	assert.True(t, runner.closed)

	assert.Equal(t, "https://ex.com/sitemap.xml", got.Sitemap.URL)
	assert.Equal(t, []string{"https://ex.com/a", "https://ex.com/b"}, got.Crawler.Seeds)
	assert.Equal(t, 3, got.Crawler.Workers)
	assert.False(t, got.Logging.Development)
}

func TestCrawlDefaultsWithoutFlags(t *testing.T) {
	got := withRunner(t, &fakeRunner{}, nil)

	_, err := execute(t, "crawl", "--seed", "https://ex.com/")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Crawler.Workers)
	assert.Equal(t, "hreflang_map.csv", got.Output.Path)
}

func TestCrawlRejectsMissingInput(t *testing.T) {
	withRunner(t, &fakeRunner{}, nil)

	_, err := execute(t, "crawl")
	require.Error(t, err)
}

func TestCrawlPropagatesErrors(t *testing.T) {
	withRunner(t, nil, errors.New("no credentials"))
	_, err := execute(t, "crawl", "--seed", "https://ex.com/")
	require.ErrorContains(t, err, "initialize crawler")

	runner := &fakeRunner{err: errors.New("bucket gone")}
	withRunner(t, runner, nil)
	_, err = execute(t, "crawl", "--seed", "https://ex.com/")
	require.ErrorContains(t, err, "run crawl")
	assert.True(t, runner.closed)
}

func TestFromContextRequiresSetup(t *testing.T) {
	_, _, err := fromContext(context.Background())
	require.Error(t, err)
}
