// Command hreflang-crawler builds a map of the hreflang alternates advertised
// by the pages of a site.
//
// Pipeline:
//   - Sitemap: the configured sitemap (or sitemap index, followed one level) is fetched once. An unreachable
//     or malformed sitemap yields nothing to crawl and is logged as a warning.
//   - Engine: a bounded worker pool fetches every URL. Before each fetch a worker sleeps for the shared
//     adaptive delay plus jitter; failures stretch the delay, successes shrink it, within fixed bounds.
//   - Fetch: each page GET runs through an explicit retry policy (transient statuses and transport errors),
//     then the final body is scanned for <link rel="alternate" hreflang> tags. Relative hrefs resolve
//     against the final URL. Headless Chrome can replace the plain HTTP getter for script-rendered pages.
//   - Report: outcomes are aggregated into a CSV with a sorted language schema. Failed pages show the
//     failure sentinel in every column. The CSV goes to a local file or to GCS under the batch id.
//   - Optional sinks: per-URL rows in Postgres and a batch completion notice on Pub/Sub.
//
// Configuration comes from a config file (--config), CRAWLER_* environment variables and flags, in
// increasing order of precedence. Run `hreflang-crawler crawl --help` for the flag list.
package main
