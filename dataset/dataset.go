// Package dataset reads and writes the tabular thread files and builds the
// per-thread documents from per-message rows.
package dataset

import (
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dhcgn/mail-thread-digest/dates"
	"github.com/dhcgn/mail-thread-digest/model"
)

const (
	ColumnThreadID   = "thread_id"
	ColumnTimestamp  = "timestamp"
	ColumnBody       = "body"
	ColumnEmailsText = "emails_text"
	ColumnSummary    = "summary"
)

var ErrMissingColumn = errors.New("missing required column")

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type table struct {
	columns map[string]int
	rows    [][]string
}

func (t table) get(row []string, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func readTable(r io.Reader, required ...string) (table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return table{}, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return table{}, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return table{}, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("read rows: %w", err)
	}
	return table{columns: columns, rows: rows}, nil
}

// ReadDetails reads per-message rows (thread_id, timestamp, body).
// Unparseable timestamps become the zero time.
func ReadDetails(r io.Reader) ([]model.MessageRecord, error) {
	t, err := readTable(r, ColumnThreadID, ColumnBody)
	if err != nil {
		return nil, err
	}

	extractor := dates.NewExtractor()
	return lo.Map(t.rows, func(row []string, _ int) model.MessageRecord {
		return model.MessageRecord{
			ThreadID:  strings.TrimSpace(t.get(row, ColumnThreadID)),
			Timestamp: parseTimestamp(extractor, t.get(row, ColumnTimestamp)),
			Body:      t.get(row, ColumnBody),
		}
	}), nil
}

// ReadSummaries reads reference summaries keyed by thread id.
func ReadSummaries(r io.Reader) (map[string]string, error) {
	t, err := readTable(r, ColumnThreadID, ColumnSummary)
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]string, len(t.rows))
	for _, row := range t.rows {
		id := strings.TrimSpace(t.get(row, ColumnThreadID))
		if _, seen := summaries[id]; !seen {
			summaries[id] = t.get(row, ColumnSummary)
		}
	}
	return summaries, nil
}

// ReadThreads reads thread documents (thread_id, emails_text, optional summary).
func ReadThreads(r io.Reader) ([]model.ThreadDocument, error) {
	t, err := readTable(r, ColumnThreadID, ColumnEmailsText)
	if err != nil {
		return nil, err
	}

	return lo.Map(t.rows, func(row []string, _ int) model.ThreadDocument {
		return model.ThreadDocument{
			ThreadID:   strings.TrimSpace(t.get(row, ColumnThreadID)),
			EmailsText: t.get(row, ColumnEmailsText),
			Summary:    t.get(row, ColumnSummary),
		}
	}), nil
}

// WriteThreads writes docs with a thread_id,emails_text,summary header.
func WriteThreads(w io.Writer, docs []model.ThreadDocument) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{ColumnThreadID, ColumnEmailsText, ColumnSummary}); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := writer.Write([]string{doc.ThreadID, doc.EmailsText, doc.Summary}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Group orders records by thread id then timestamp and joins each thread's
// bodies with a single space. Threads come out in ascending id order, numeric
// ids compared as numbers; records without a timestamp close their thread.
func Group(records []model.MessageRecord) []model.ThreadDocument {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b model.MessageRecord) int {
		if c := compareThreadIDs(a.ThreadID, b.ThreadID); c != 0 {
			return c
		}
		return compareTimestamps(a.Timestamp, b.Timestamp)
	})

	var docs []model.ThreadDocument
	for _, rec := range sorted {
		if n := len(docs); n > 0 && docs[n-1].ThreadID == rec.ThreadID {
			docs[n-1].EmailsText += " " + rec.Body
			continue
		}
		docs = append(docs, model.ThreadDocument{ThreadID: rec.ThreadID, EmailsText: rec.Body})
	}
	return docs
}

// compareThreadIDs orders numeric ids numerically and before any other id.
func compareThreadIDs(a, b string) int {
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func compareTimestamps(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return 1
	case b.IsZero():
		return -1
	default:
		return a.Compare(b)
	}
}

// Messages keeps one row per record, in input order, so the selector ranks
// individual messages of a thread.
func Messages(records []model.MessageRecord) []model.ThreadDocument {
	return lo.Map(records, func(rec model.MessageRecord, _ int) model.ThreadDocument {
		return model.ThreadDocument{ThreadID: rec.ThreadID, EmailsText: rec.Body}
	})
}

// Merge attaches reference summaries and drops threads without one. A nil
// map keeps every document unchanged.
func Merge(docs []model.ThreadDocument, summaries map[string]string) []model.ThreadDocument {
	if summaries == nil {
		return docs
	}
	return lo.FilterMap(docs, func(doc model.ThreadDocument, _ int) (model.ThreadDocument, bool) {
		summary, ok := summaries[doc.ThreadID]
		if !ok {
			return doc, false
		}
		doc.Summary = summary
		return doc, true
	})
}

func parseTimestamp(extractor *dates.Extractor, value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := extractor.ParseFuzzy(value); err == nil {
		return t
	}
	return time.Time{}
}
