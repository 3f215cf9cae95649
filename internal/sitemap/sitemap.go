// Package sitemap reads the list of page URLs advertised by an XML sitemap.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
	"github.com/JakeFAU/hreflang-crawler/internal/metrics"
)

// Namespace is the sitemaps.org schema every element must belong to.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// DefaultTimeout bounds the sitemap GET.
const DefaultTimeout = 10 * time.Second

type location struct {
	Loc *string `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 loc"`
}

type document struct {
	XMLName  xml.Name
	URLs     []location `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 url"`
	Sitemaps []location `xml:"http://www.sitemaps.org/schemas/sitemap/0.9 sitemap"`
}

func (d document) isIndex() bool {
	return d.XMLName.Space == Namespace && d.XMLName.Local == "sitemapindex"
}

func decode(r io.Reader) (document, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return document{}, fmt.Errorf("decode sitemap: %w", err)
	}
	return doc, nil
}

// split separates usable absolute URLs from entries that are missing, blank
// or invalid. Skipped entries are reported as written ("" when absent).
func split(entries []location) (accepted, skipped []string) {
	for _, e := range entries {
		if e.Loc == nil {
			skipped = append(skipped, "")
			continue
		}
		loc := strings.TrimSpace(*e.Loc)
		if !crawler.IsValidURL(loc) {
			skipped = append(skipped, loc)
			continue
		}
		accepted = append(accepted, loc)
	}
	return accepted, skipped
}

// Parse returns the page locations of a <urlset> document in document order,
// plus the entries that were skipped.
func Parse(r io.Reader) (accepted, skipped []string, err error) {
	doc, err := decode(r)
	if err != nil {
		return nil, nil, err
	}
	accepted, skipped = split(doc.URLs)
	return accepted, skipped, nil
}

// ParseIndex returns the child sitemap locations of a <sitemapindex> document.
func ParseIndex(r io.Reader) (accepted, skipped []string, err error) {
	doc, err := decode(r)
	if err != nil {
		return nil, nil, err
	}
	accepted, skipped = split(doc.Sitemaps)
	return accepted, skipped, nil
}

// Config is the request shape for sitemap GETs.
type Config struct {
	Timeout time.Duration
	Headers http.Header
	Cookies []*http.Cookie
}

// Reader implements crawler.SitemapReader.
type Reader struct {
	getter crawler.Getter
	cfg    Config
	logger *zap.Logger
}

// NewReader builds a Reader around getter.
func NewReader(getter crawler.Getter, cfg Config, logger *zap.Logger) *Reader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{getter: getter, cfg: cfg, logger: logger}
}

// Read fetches sitemapURL once and returns its page URLs, deduplicated in
// first-seen order. A sitemap index is followed one level. Any failure is
// logged and yields whatever was collected so far, possibly nothing.
func (r *Reader) Read(ctx context.Context, sitemapURL string) []string {
	doc, ok := r.load(ctx, sitemapURL)
	if !ok {
		return []string{}
	}

	var pages []string
	if doc.isIndex() {
		children, skipped := split(doc.Sitemaps)
		r.logSkipped(sitemapURL, skipped)
		r.logger.Info("sitemap index",
			zap.String("sitemap", sitemapURL),
			zap.Int("children", len(children)),
		)
		for _, child := range crawler.UniqueURLs(children) {
			if ctx.Err() != nil {
				break
			}
			childDoc, ok := r.load(ctx, child)
			if !ok {
				continue
			}
			if childDoc.isIndex() {
				r.logger.Warn("nested sitemap index ignored", zap.String("sitemap", child))
				continue
			}
			pages = append(pages, r.collect(child, childDoc)...)
		}
	} else {
		pages = r.collect(sitemapURL, doc)
	}

	pages = crawler.UniqueURLs(pages)
	r.logger.Info("sitemap read", zap.String("sitemap", sitemapURL), zap.Int("urls", len(pages)))
	return pages
}

func (r *Reader) collect(sitemapURL string, doc document) []string {
	accepted, skipped := split(doc.URLs)
	r.logSkipped(sitemapURL, skipped)
	metrics.ObserveSitemapLocations(len(accepted), len(skipped))
	return accepted
}

func (r *Reader) logSkipped(sitemapURL string, skipped []string) {
	for _, loc := range skipped {
		r.logger.Debug("sitemap entry skipped",
			zap.String("sitemap", sitemapURL),
			zap.String("loc", loc),
		)
	}
	if len(skipped) > 0 {
		r.logger.Warn("sitemap entries skipped",
			zap.String("sitemap", sitemapURL),
			zap.Int("count", len(skipped)),
		)
	}
}

func (r *Reader) load(ctx context.Context, sitemapURL string) (doc document, ok bool) {
	logger := r.logger.With(zap.String("sitemap", sitemapURL))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("sitemap read panicked", zap.Any("panic", rec))
			doc, ok = document{}, false
		}
	}()

	resp, err := r.getter.Get(ctx, crawler.FetchRequest{
		URL:     sitemapURL,
		Headers: r.cfg.Headers.Clone(),
		Cookies: r.cfg.Cookies,
		Timeout: r.cfg.Timeout,
	})
	if err != nil {
		logger.Warn("sitemap unreachable", zap.Error(err))
		return document{}, false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("sitemap returned error status", zap.Int("status", resp.StatusCode))
		return document{}, false
	}
	doc, err = decode(bytes.NewReader(resp.Body))
	if err != nil {
		logger.Warn("sitemap malformed", zap.Error(err))
		return document{}, false
	}
	return doc, true
}
