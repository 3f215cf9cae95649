package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// IsValidURL reports whether raw parses with both a scheme and a host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ResolveURL resolves ref against base, the way a browser resolves an href.
// An error is returned when either side fails to parse or the result lacks a
// scheme or host.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	resolved := b.ResolveReference(r).String()
	if !IsValidURL(resolved) {
		return "", fmt.Errorf("resolved url %q is not absolute", resolved)
	}
	return resolved, nil
}

// UniqueURLs drops duplicates and blank entries, keeping first occurrence order.
func UniqueURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
