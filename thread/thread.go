// Package thread selects, orders and assembles the messages that represent a
// conversation.
package thread

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/dhcgn/mail-thread-digest/dates"
	"github.com/dhcgn/mail-thread-digest/decode"
	"github.com/dhcgn/mail-thread-digest/model"
)

const (
	DefaultLimit = 5
	Separator    = "\n\n---\n\n"
)

// Entry is a selected message with the date it was ordered by.
type Entry struct {
	Text string
	Date model.ExtractedDate
}

type Selector struct {
	extractor *dates.Extractor
}

// NewSelector returns a selector ordering by the given extractor, or the
// default extractor when nil.
func NewSelector(extractor *dates.Extractor) *Selector {
	if extractor == nil {
		extractor = dates.NewExtractor()
	}
	return &Selector{extractor: extractor}
}

// Entries filters docs to threadID, orders them by extracted date (unknown
// dates last, ties keep input order) and keeps the first limit.
func (s *Selector) Entries(docs []model.ThreadDocument, threadID string, limit int) []Entry {
	if limit <= 0 {
		limit = DefaultLimit
	}

	type dated struct {
		doc  model.ThreadDocument
		date model.ExtractedDate
	}

	matching := lo.FilterMap(docs, func(doc model.ThreadDocument, _ int) (dated, bool) {
		if doc.ThreadID != threadID {
			return dated{}, false
		}
		return dated{doc: doc, date: s.extractor.Extract(doc.EmailsText)}, true
	})

	slices.SortStableFunc(matching, func(a, b dated) int {
		return dates.Compare(a.date, b.date)
	})

	if len(matching) > limit {
		matching = matching[:limit]
	}

	return lo.Map(matching, func(d dated, _ int) Entry {
		return Entry{Text: decode.Text(d.doc.EmailsText), Date: d.date}
	})
}

// SelectTopMessages returns the decoded texts of Entries. An unknown thread
// yields an empty selection.
func (s *Selector) SelectTopMessages(docs []model.ThreadDocument, threadID string, limit int) model.ThreadSelection {
	entries := s.Entries(docs, threadID, limit)
	return lo.Map(entries, func(e Entry, _ int) string { return e.Text })
}

// Assemble joins the default selection with Separator.
func (s *Selector) Assemble(docs []model.ThreadDocument, threadID string) string {
	return strings.Join(s.SelectTopMessages(docs, threadID, DefaultLimit), Separator)
}

// Group collects the rows of each thread, threads in first-seen order.
func Group(docs []model.ThreadDocument) []model.Thread {
	byID := lo.GroupBy(docs, func(doc model.ThreadDocument) string { return doc.ThreadID })
	return lo.Map(IDs(docs), func(id string, _ int) model.Thread {
		return model.Thread{ID: id, Documents: byID[id]}
	})
}

// IDs lists unique thread ids in first-seen order.
func IDs(docs []model.ThreadDocument) []string {
	return lo.Uniq(lo.Map(docs, func(doc model.ThreadDocument, _ int) string { return doc.ThreadID }))
}
