// Package report turns a crawl's result table into a fixed-schema table of
// language columns and renders it as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"

	"github.com/JakeFAU/hreflang-crawler/internal/crawler"
)

// DefaultSentinel fills every language cell of a URL whose fetch failed.
const DefaultSentinel = "ERROR"

// URLColumn is the header of the first column.
const URLColumn = "URL"

// ContentType is the media type of WriteCSV output.
const ContentType = "text/csv; charset=utf-8"

// Row is one URL and its cells, aligned to Report.Languages.
type Row struct {
	URL   string
	Cells []string
}

// Report is the aggregated crawl: a sorted language schema and one row per
// recorded URL in submission order.
type Report struct {
	Languages []string
	Rows      []Row
}

// Aggregate builds a Report from table. The schema is the sorted union of
// languages seen on successful pages; failed pages get sentinel in every
// column and successful pages get "" for languages they do not advertise.
// An empty sentinel falls back to DefaultSentinel. Aggregate does not modify
// table and returns the same Report for the same table.
func Aggregate(table *crawler.ResultTable, sentinel string) Report {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	if table == nil {
		return Report{Languages: []string{}, Rows: []Row{}}
	}

	urls := table.URLs()
	seen := make(map[string]struct{})
	for _, u := range urls {
		o, _ := table.Get(u)
		for lang := range o.Hreflangs() {
			seen[lang] = struct{}{}
		}
	}
	languages := make([]string, 0, len(seen))
	for lang := range seen {
		languages = append(languages, lang)
	}
	slices.Sort(languages)

	rows := make([]Row, 0, len(urls))
	for _, u := range urls {
		o, _ := table.Get(u)
		cells := make([]string, len(languages))
		if o.Failed() {
			for i := range cells {
				cells[i] = sentinel
			}
		} else {
			links := o.Hreflangs()
			for i, lang := range languages {
				cells[i] = links[lang]
			}
		}
		rows = append(rows, Row{URL: u, Cells: cells})
	}
	return Report{Languages: languages, Rows: rows}
}

// Header returns the column names: URL followed by the languages.
func (r Report) Header() []string {
	return append([]string{URLColumn}, r.Languages...)
}

// Records returns the header followed by each row, every record 1+len(Languages) wide.
func (r Report) Records() [][]string {
	records := make([][]string, 0, len(r.Rows)+1)
	records = append(records, r.Header())
	for _, row := range r.Rows {
		records = append(records, append([]string{row.URL}, row.Cells...))
	}
	return records
}

// WriteCSV writes r to w as RFC 4180 CSV.
func WriteCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(r.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
