// Package summarize bounds thread text and hands it to an external
// summarization capability, turning every outcome into a Result.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var ErrCapability = errors.New("summarizer failed")

const (
	NoContentMessage = "No email content provided."
	EmptyMessage     = "Summarizer returned empty output."
	ErrorPrefix      = "Error during summarization: "
)

type Status int

const (
	StatusOK Status = iota
	StatusNoContent
	StatusEmpty
	StatusFailed
	StatusInitFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoContent:
		return "no_content"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	case StatusInitFailed:
		return "init_failed"
	default:
		return "unknown"
	}
}

type Result struct {
	Summary string
	Status  Status
	Err     error
}

// String flattens the result into the text shown to users.
func (r Result) String() string {
	switch r.Status {
	case StatusOK:
		return r.Summary
	case StatusNoContent:
		return NoContentMessage
	case StatusEmpty:
		return EmptyMessage
	default:
		detail := "unknown error"
		if r.Err != nil {
			detail = r.Err.Error()
		}
		return ErrorPrefix + detail
	}
}

// Fatal reports an initialization failure: no later call can succeed.
func (r Result) Fatal() bool {
	return r.Status == StatusInitFailed
}

// Observer is notified of every Summarize outcome, including blank input
// that never reaches the capability.
type Observer interface {
	ObserveSummary(status Status, forwardedChars int, elapsed time.Duration)
}

type Gateway struct {
	handle   *Handle
	params   Params
	logger   *slog.Logger
	observer Observer
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithParams overrides the beam parameters; lengths are still taken from
// each Summarize call.
func WithParams(p Params) Option {
	return func(g *Gateway) { g.params = p }
}

func NewGateway(handle *Handle, opts ...Option) *Gateway {
	g := &Gateway{
		handle: handle,
		params: DefaultParams(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Summarize never returns an error or panics. Blank text is answered
// without touching the capability; longer text is cut to MaxInputChars.
func (g *Gateway) Summarize(ctx context.Context, text string, maxLen, minLen int) Result {
	if strings.TrimSpace(text) == "" {
		g.observe(StatusNoContent, 0, 0)
		return Result{Status: StatusNoContent}
	}

	capability, err := g.handle.Get(ctx)
	if err != nil {
		if g.logger != nil {
			g.logger.Error("summarizer unavailable", "err", err)
		}
		g.observe(StatusInitFailed, 0, 0)
		return Result{Status: StatusInitFailed, Err: err}
	}

	input := Truncate(text, MaxInputChars)
	params := g.params.WithLengths(maxLen, minLen)
	forwarded := len([]rune(input))

	start := time.Now()
	summary, err := invoke(ctx, capability, input, params)
	elapsed := time.Since(start)

	var res Result
	switch {
	case err != nil:
		res = Result{Status: StatusFailed, Err: err}
		if g.logger != nil {
			g.logger.Warn("summarization failed", "chars", forwarded, "duration", elapsed, "err", err)
		}
	case strings.TrimSpace(summary) == "":
		res = Result{Status: StatusEmpty}
	default:
		res = Result{Summary: strings.TrimSpace(summary), Status: StatusOK}
		if g.logger != nil {
			g.logger.Debug("summarized thread", "chars", forwarded, "summaryChars", len(res.Summary), "duration", elapsed)
		}
	}

	g.observe(res.Status, forwarded, elapsed)
	return res
}

// SummarizeText uses the default output lengths and returns the display
// string.
func (g *Gateway) SummarizeText(ctx context.Context, text string) string {
	return g.Summarize(ctx, text, DefaultMaxLength, DefaultMinLength).String()
}

func (g *Gateway) observe(status Status, chars int, elapsed time.Duration) {
	if g.observer != nil {
		g.observer.ObserveSummary(status, chars, elapsed)
	}
}

func invoke(ctx context.Context, c Capability, text string, p Params) (summary string, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary, err = "", fmt.Errorf("%w: panic: %v", ErrCapability, r)
		}
	}()

	summary, err = c.Summarize(ctx, text, p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapability, err)
	}
	return summary, nil
}
