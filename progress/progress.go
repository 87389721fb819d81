package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/mail-thread-digest/stats"
)

// Bar manages a progress bar for tracking thread summarization.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	done        int
	mu          sync.Mutex
	enabled     bool
}

// New creates a new progress bar if logLevel is "info".
func New(total int, alreadyDone int, logLevel string) *Bar {
	enabled := logLevel == "info"

	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Summarizing threads").
			Start()

		bar.pb = pb

		pterm.Info.Printf("Threads in dataset: %d\n", total)
		pterm.Info.Printf("Summaries already stored: %d\n", alreadyDone)
		pterm.Println()
	}

	return bar
}

// Update increments the progress bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled || b.pb == nil {
		return
	}

	switch evt.Type {
	case stats.EventTypeFiltered, stats.EventTypeCached, stats.EventTypeSummarized,
		stats.EventTypeNoContent, stats.EventTypeEmpty, stats.EventTypeFailed:
		b.done++
		b.pb.Increment()

		if evt.ThreadID != "" {
			displayID := evt.ThreadID
			if len(displayID) > 40 {
				displayID = displayID[:37] + "..."
			}
			b.pb.UpdateTitle("Summarizing: " + displayID)
		}
		if evt.Type == stats.EventTypeFailed && evt.Err != nil {
			pterm.Warning.Printf("%s: %v\n", evt.ThreadID, evt.Err)
		}
	case stats.EventTypeError:
		// printed above the bar
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.enabled || b.pb == nil {
		return
	}
	b.enabled = false

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Batch complete!")
}

// Enabled reports whether the bar renders.
func (b *Bar) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// Subscriber creates a stats subscriber function that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter wraps the stats Reporter with progress bar functionality.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewProgressReporter creates a new progress reporter with optional progress bar.
func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
	}
	stream.SubscribeStats("progress-stats", reporter.collectStats)

	return reporter
}

// collectStats collects statistics and prints final summary.
func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started)

	if pr.bar == nil || !pr.bar.Enabled() {
		if pr.logger != nil {
			pr.logger.Info("batch summary", append(summary.LogAttrs(), "duration", duration)...)
		}
		return nil
	}
	pr.bar.Stop()

	pterm.Println()
	pterm.DefaultSection.Println("Batch Statistics")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Threads scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Filtered: %d\n", summary.Filtered)
	pterm.Info.Printf("Cached (skipped): %d\n", summary.Cached)
	pterm.Info.Printf("Summarized: %d\n", summary.Summarized)
	pterm.Info.Printf("No content: %d\n", summary.NoContent)
	pterm.Info.Printf("Empty output: %d\n", summary.Empty)
	pterm.Info.Printf("Failed: %d\n", summary.Failed)
	pterm.Info.Printf("Delivered: %d\n", summary.Delivered)
	pterm.Info.Printf("Dry-run delivered: %d\n", summary.DryRunDelivered)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}

	return nil
}

// Summary returns the statistics collected so far.
func (pr *ProgressReporter) Summary() stats.Summary {
	return pr.collector.Snapshot()
}
