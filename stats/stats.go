package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageSource    Stage = "source"
	StageSummarize Stage = "summarize"
	StageDeliver   Stage = "deliver"
)

type EventType string

const (
	EventTypeScanned       EventType = "scanned"
	EventTypeFiltered      EventType = "filtered"
	EventTypeCached        EventType = "cached"
	EventTypeSummarized    EventType = "summarized"
	EventTypeNoContent     EventType = "no_content"
	EventTypeEmpty         EventType = "empty"
	EventTypeFailed        EventType = "failed"
	EventTypeDelivered     EventType = "delivered"
	EventTypeDryRunDeliver EventType = "dry_run_delivered"
	EventTypeError         EventType = "error"
)

type Event struct {
	Stage    Stage
	Type     EventType
	ThreadID string
	Err      error
	Detail   string
}

type Summary struct {
	Scanned         int
	Filtered        int
	Cached          int
	Summarized      int
	NoContent       int
	Empty           int
	Failed          int
	Delivered       int
	DryRunDelivered int
	Errors          int
	LastError       error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"filtered", s.Filtered,
		"cached", s.Cached,
		"summarized", s.Summarized,
		"noContent", s.NoContent,
		"empty", s.Empty,
		"failed", s.Failed,
		"delivered", s.Delivered,
		"dryRunDelivered", s.DryRunDelivered,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeCached:
		c.summary.Cached++
	case EventTypeSummarized:
		c.summary.Summarized++
	case EventTypeNoContent:
		c.summary.NoContent++
	case EventTypeEmpty:
		c.summary.Empty++
	case EventTypeFailed:
		c.summary.Failed++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	case EventTypeDelivered:
		c.summary.Delivered++
	case EventTypeDryRunDeliver:
		c.summary.DryRunDelivered++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
