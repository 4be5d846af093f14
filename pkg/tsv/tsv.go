// Package tsv fetches a tab-separated file over HTTP and parses it into a
// structured report. The report goes back to the caller; fetch and parse
// failures surface as errors instead of disappearing into a log line.
package tsv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds the fetch when the caller's context carries no
// earlier deadline.
const DefaultTimeout = 30 * time.Second

// previewRows caps how many parsed rows the report carries back to the
// caller.
const previewRows = 10

var ErrEmptyFilename = errors.New("tsv: filename is required")

// Report summarizes one import: where the file came from, how much was
// parsed, and every row-level parse failure.
type Report struct {
	URL        string     `json:"url"`
	Rows       int        `json:"rows"`
	Columns    int        `json:"columns"`
	Preview    [][]string `json:"preview,omitempty"`
	RowErrors  []string   `json:"rowErrors,omitempty"`
	FetchedAt  time.Time  `json:"fetchedAt"`
	DurationMS int64      `json:"durationMs"`
}

// Importer fetches and parses TSV files from a base URL.
type Importer struct {
	base   string
	client *http.Client
}

// NewImporter creates an Importer rooted at baseURL. A nil client gets a
// default with DefaultTimeout.
func NewImporter(baseURL string, client *http.Client) *Importer {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Importer{base: baseURL, client: client}
}

// Import fetches `<base or override>/<filename>`, parses it as
// tab-separated values, and returns the report. Rows with the wrong field
// count are recorded in RowErrors rather than aborting the parse.
func (im *Importer) Import(ctx context.Context, overrideURL, filename string) (*Report, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}

	base := im.base
	if overrideURL != "" {
		base = overrideURL
	}
	fileURL, err := url.JoinPath(base, filename)
	if err != nil {
		return nil, fmt.Errorf("tsv: bad import URL: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tsv: failed to build request: %w", err)
	}

	resp, err := im.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tsv: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tsv: unexpected status %d fetching %s", resp.StatusCode, fileURL)
	}

	report, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	report.URL = fileURL
	report.FetchedAt = start
	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}

// Parse reads tab-separated values from r. Field counts may vary per row;
// malformed rows are collected into RowErrors.
func Parse(r io.Reader) (*Report, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	report := &Report{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.RowErrors = append(report.RowErrors, parseErr.Error())
				continue
			}
			return nil, fmt.Errorf("tsv: parse failed: %w", err)
		}

		report.Rows++
		if len(record) > report.Columns {
			report.Columns = len(record)
		}
		if len(report.Preview) < previewRows {
			report.Preview = append(report.Preview, record)
		}
	}
	return report, nil
}

// Summary renders a one-line description of the report for logging.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows x %d columns from %s", r.Rows, r.Columns, r.URL)
	if len(r.RowErrors) > 0 {
		fmt.Fprintf(&b, " (%d malformed rows)", len(r.RowErrors))
	}
	return b.String()
}
