package summarize

import (
	"context"
	"regexp"
	"strings"
)

var (
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)
	headerLine      = regexp.MustCompile(`(?i)^(from|sent|to|cc|bcc|date|subject|importance):`)
)

// Extractive is an offline capability that keeps the leading sentences of
// the thread body within the word bounds. It skips header and quoted lines.
type Extractive struct{}

func (Extractive) Summarize(_ context.Context, text string, p Params) (string, error) {
	var body []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "", line == "---", strings.HasPrefix(line, ">"), headerLine.MatchString(line):
			continue
		}
		body = append(body, line)
	}

	var words []string
	for _, sentence := range sentencePattern.FindAllString(strings.Join(body, " "), -1) {
		fields := strings.Fields(sentence)
		if len(fields) == 0 {
			continue
		}
		if len(words) > 0 && len(words)+len(fields) > p.MaxLength {
			break
		}
		words = append(words, fields...)
		if len(words) >= p.MinLength {
			break
		}
	}

	if p.MaxLength > 0 && len(words) > p.MaxLength {
		words = words[:p.MaxLength]
	}
	return strings.Join(words, " "), nil
}
