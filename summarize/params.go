package summarize

import (
	"context"
	"unicode/utf8"
)

const (
	// MaxInputChars caps the text forwarded to a capability.
	MaxInputChars = 4000
	// MaxInputTokens bounds the tokenized input; the huggingface backend
	// sends it with the truncation strategy.
	MaxInputTokens = 1024

	DefaultMaxLength = 100
	DefaultMinLength = 30
	NumBeams         = 4
	LengthPenalty    = 2.0
)

// Params are the decoding parameters handed to a capability. Decoding is
// deterministic beam search; DoSample is always false.
type Params struct {
	MaxLength      int
	MinLength      int
	NumBeams       int
	LengthPenalty  float64
	EarlyStopping  bool
	DoSample       bool
	MaxInputTokens int
}

func DefaultParams() Params {
	return Params{
		MaxLength:      DefaultMaxLength,
		MinLength:      DefaultMinLength,
		NumBeams:       NumBeams,
		LengthPenalty:  LengthPenalty,
		EarlyStopping:  true,
		MaxInputTokens: MaxInputTokens,
	}
}

// WithLengths returns p with the given output bounds; non-positive values
// fall back to the defaults and MinLength never exceeds MaxLength.
func (p Params) WithLengths(maxLen, minLen int) Params {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if minLen < 0 {
		minLen = DefaultMinLength
	}
	if minLen > maxLen {
		minLen = maxLen
	}
	p.MaxLength = maxLen
	p.MinLength = minLen
	return p
}

// Capability turns thread text into a summary. Implementations may fail;
// the Gateway owns the never-fail contract.
type Capability interface {
	Summarize(ctx context.Context, text string, p Params) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, text string, p Params) (string, error)

func (f CapabilityFunc) Summarize(ctx context.Context, text string, p Params) (string, error) {
	return f(ctx, text, p)
}

// Truncate keeps the first limit characters of text.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
