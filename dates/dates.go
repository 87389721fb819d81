// Package dates recovers a best-guess sent timestamp from decoded message
// text.
package dates

import (
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"

	dps "github.com/markusmobius/go-dateparser"

	"github.com/dhcgn/mail-thread-digest/decode"
	"github.com/dhcgn/mail-thread-digest/model"
)

var ErrUnparseable = errors.New("text does not contain a date")

// maxTrimmedWords bounds how many trailing words fuzzy parsing drops.
const maxTrimmedWords = 8

// Rule captures a date candidate from message text. Rules are evaluated in
// order and the first match is final.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Group   int
}

// DefaultRules returns the sent header, date header and reply attribution
// rules, in that priority.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "sent", Pattern: regexp.MustCompile(`(?i)Sent:\s*(.+)`), Group: 1},
		{Name: "date", Pattern: regexp.MustCompile(`(?i)Date:\s*(.+)`), Group: 1},
		{Name: "reply", Pattern: regexp.MustCompile(`(?i)On (.+), .* wrote:`), Group: 1},
	}
}

type Extractor struct {
	rules    []Rule
	logger   *slog.Logger
	now      func() time.Time
	location *time.Location
}

type Option func(*Extractor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

func WithRules(rules []Rule) Option {
	return func(e *Extractor) { e.rules = rules }
}

// WithClock sets the reference time used to complete partial dates.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithLocation sets the zone assumed for dates without one.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) { e.location = loc }
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		rules:    DefaultRules(),
		now:      time.Now,
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Extract runs the default extractor.
func Extract(raw string) model.ExtractedDate {
	return defaultExtractor.Extract(raw)
}

// ExtractValue accepts loosely typed cells; non-text values are unknown.
func ExtractValue(v any) model.ExtractedDate {
	switch t := v.(type) {
	case string:
		return Extract(t)
	case []byte:
		return Extract(string(t))
	default:
		return model.ExtractedDate{Status: model.DateNoInput}
	}
}

// Extract never fails: the result is either a concrete date or an unknown
// date carrying the reason.
func (e *Extractor) Extract(raw string) (result model.ExtractedDate) {
	if strings.TrimSpace(raw) == "" {
		return model.ExtractedDate{Status: model.DateNoInput}
	}

	defer func() {
		if r := recover(); r != nil {
			result = model.ExtractedDate{
				Status: model.DateUnparseable,
				Source: result.Source,
				Err:    fmt.Errorf("%w: parser panic: %v", ErrUnparseable, r),
			}
		}
	}()

	text := decode.Text(raw)
	for _, rule := range e.rules {
		match := rule.Pattern.FindStringSubmatch(text)
		if match == nil || rule.Group >= len(match) {
			continue
		}

		captured := strings.TrimSpace(match[rule.Group])
		result.Source = captured

		t, err := e.ParseFuzzy(captured)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("date parsing failed", "rule", rule.Name, "text", captured, "err", err)
			}
			return model.ExtractedDate{Status: model.DateUnparseable, Source: captured, Err: err}
		}
		return model.ExtractedDate{Time: t, Status: model.DateFound, Source: captured}
	}

	return model.ExtractedDate{Status: model.DateNoMatch}
}

// ParseFuzzy parses s as an RFC 5322 date, then as a natural-language date,
// dropping trailing words that keep it from parsing. As a last resort it
// searches s for an embedded date, which skips leading noise.
func (e *Extractor) ParseFuzzy(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseable
	}

	if t, err := mail.ParseDate(s); err == nil {
		return t, nil
	}

	cfg := &dps.Configuration{
		CurrentTime:     e.now().In(e.location),
		DefaultTimezone: e.location,
	}

	words := strings.Fields(s)
	for n := len(words); n > 0 && len(words)-n <= maxTrimmedWords; n-- {
		candidate := strings.TrimRight(strings.Join(words[:n], " "), ",;")
		if !strings.ContainsFunc(candidate, unicode.IsDigit) {
			continue
		}
		parsed, err := dps.Parse(cfg, candidate)
		if err == nil && !parsed.Time.IsZero() {
			return parsed.Time, nil
		}
	}

	if strings.ContainsFunc(s, unicode.IsDigit) {
		if _, found, err := dps.Search(cfg, s); err == nil {
			for _, r := range found {
				if strings.ContainsFunc(r.Text, unicode.IsDigit) && !r.Date.Time.IsZero() {
					return r.Date.Time, nil
				}
			}
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, s)
}

// Compare orders dates ascending with unknown dates after every known one.
func Compare(a, b model.ExtractedDate) int {
	switch {
	case a.Known() && b.Known():
		return a.Time.Compare(b.Time)
	case a.Known():
		return -1
	case b.Known():
		return 1
	default:
		return 0
	}
}
