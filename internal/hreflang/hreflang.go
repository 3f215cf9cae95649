// Package hreflang extracts alternate-language links from HTML documents.
package hreflang

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
)

// Selector matches <link> elements whose rel token list contains "alternate"
// and that carry an hreflang attribute.
const Selector = `link[rel~="alternate"][hreflang]`

// Link is one alternate entry as written in the document.
type Link struct {
	Lang     string
	Href     string
	Resolved string
}

// Extract parses body and returns the hreflang map for the page at pageURL.
// Hrefs are resolved against pageURL, and an element without an href points
// at the page itself. Entries with a blank hreflang or that do not resolve to
// an absolute URL are dropped. When a language appears twice the later
// element wins.
func Extract(pageURL string, body []byte) (crawler.HreflangMap, error) {
	links, err := Links(pageURL, body)
	if err != nil {
		return nil, err
	}
	out := make(crawler.HreflangMap, len(links))
	for _, l := range links {
		out[l.Lang] = l.Resolved
	}
	return out, nil
}

// Links returns every usable alternate link in document order.
func Links(pageURL string, body []byte) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var links []Link
	doc.Find(Selector).Each(func(_ int, s *goquery.Selection) {
		lang := strings.TrimSpace(s.AttrOr("hreflang", ""))
		if lang == "" {
			return
		}
		href := s.AttrOr("href", "")
		resolved, err := crawler.ResolveURL(pageURL, href)
		if err != nil {
			return
		}
		links = append(links, Link{Lang: lang, Href: href, Resolved: resolved})
	})
	return links, nil
}
