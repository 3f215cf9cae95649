// Package crawler implements the batch orchestrator that fans seed URLs out to
// a bounded worker pool, paces requests through an adaptive rate controller and
// collects one hreflang outcome per URL into an ordered result table.
package crawler
