package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dhcgn/mail-thread-digest/model"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any pattern is configured.
func (o Options) Active() bool {
	return len(o.IncludeHeader)+len(o.IncludeBody)+len(o.ExcludeHeader)+len(o.ExcludeBody) > 0
}

// Filter holds compiled regex patterns for filtering messages and threads.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeHeader  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
	needHeaderText bool
	needBodyText   bool

	mu   sync.Mutex
	hits map[*regexp.Regexp]int
}

// Stats reports how often each pattern matched.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeBodyPatterns   []string
	ExcludeHeaderPatterns []string
	ExcludeBodyPatterns   []string
	IncludeHeaderHits     map[string]int
	IncludeBodyHits       map[string]int
	ExcludeHeaderHits     map[string]int
	ExcludeBodyHits       map[string]int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
		hits:           make(map[*regexp.Regexp]int),
	}, nil
}

// Allows returns true if the message passes the filter criteria.
func (f *Filter) Allows(header, body []byte) bool {
	var headerText, bodyText string
	if f.needHeaderText {
		headerText = string(header)
	}
	if f.needBodyText {
		bodyText = string(body)
	}
	return f.allows(headerText, bodyText)
}

// AllowsDocument filters a thread document. Header patterns see a
// "Thread-Id: <id>" line, body patterns see the raw emails text.
func (f *Filter) AllowsDocument(doc model.ThreadDocument) bool {
	var headerText, bodyText string
	if f.needHeaderText {
		headerText = "Thread-Id: " + doc.ThreadID
	}
	if f.needBodyText {
		bodyText = doc.EmailsText
	}
	return f.allows(headerText, bodyText)
}

// AllowsThread filters a whole thread as one document whose body is the
// newline-joined rows.
func (f *Filter) AllowsThread(t model.Thread) bool {
	texts := make([]string, 0, len(t.Documents))
	for _, doc := range t.Documents {
		texts = append(texts, doc.EmailsText)
	}
	return f.AllowsDocument(model.ThreadDocument{ThreadID: t.ID, EmailsText: strings.Join(texts, "\n")})
}

func (f *Filter) allows(headerText, bodyText string) bool {
	if f.includeMode {
		headerHit := f.matchAny(f.includeHeader, headerText)
		bodyHit := f.matchAny(f.includeBody, bodyText)
		return headerHit || bodyHit
	}

	if f.excludeMode {
		headerHit := f.matchAny(f.excludeHeader, headerText)
		bodyHit := f.matchAny(f.excludeBody, bodyText)
		if headerHit || bodyHit {
			return false
		}
	}

	return true
}

// GetStats returns a snapshot of the per-pattern hit counters.
func (f *Filter) GetStats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	collect := func(patterns []*regexp.Regexp) ([]string, map[string]int) {
		names := make([]string, 0, len(patterns))
		hits := make(map[string]int, len(patterns))
		for _, re := range patterns {
			names = append(names, re.String())
			hits[re.String()] += f.hits[re]
		}
		return names, hits
	}

	var s Stats
	s.IncludeHeaderPatterns, s.IncludeHeaderHits = collect(f.includeHeader)
	s.IncludeBodyPatterns, s.IncludeBodyHits = collect(f.includeBody)
	s.ExcludeHeaderPatterns, s.ExcludeHeaderHits = collect(f.excludeHeader)
	s.ExcludeBodyPatterns, s.ExcludeBodyHits = collect(f.excludeBody)
	return s
}

// SplitRawMessage splits a raw email message into header and body parts.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}

	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}

	return raw, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func (f *Filter) matchAny(patterns []*regexp.Regexp, text string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			f.mu.Lock()
			f.hits[re]++
			f.mu.Unlock()
			return true
		}
	}
	return false
}
