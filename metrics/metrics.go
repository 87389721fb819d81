package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dhcgn/mail-thread-digest/stats"
	"github.com/dhcgn/mail-thread-digest/summarize"
)

// Metrics records gateway outcomes and pipeline events on a private
// registry, so a batch run can dump them as a node-exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	SummariesTotal *prometheus.CounterVec
	ForwardedChars prometheus.Histogram
	SummaryLatency prometheus.Histogram
	EventsTotal    *prometheus.CounterVec
	LastRun        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SummariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thread_digest_summaries_total",
				Help: "Summarization gateway calls by outcome",
			},
			[]string{"status"},
		),
		ForwardedChars: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "thread_digest_forwarded_chars",
				Help:    "Characters forwarded to the summarizer after truncation",
				Buckets: []float64{250, 500, 1000, 2000, 3000, 4000},
			},
		),
		SummaryLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "thread_digest_summary_duration_seconds",
				Help:    "Summarizer call duration",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thread_digest_pipeline_events_total",
				Help: "Batch pipeline events",
			},
			[]string{"stage", "type"},
		),
		LastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "thread_digest_last_run_timestamp_seconds",
				Help: "Unix time the last batch run finished",
			},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSummary implements summarize.Observer.
func (m *Metrics) ObserveSummary(status summarize.Status, forwardedChars int, elapsed time.Duration) {
	m.SummariesTotal.WithLabelValues(status.String()).Inc()
	if status == summarize.StatusNoContent || status == summarize.StatusInitFailed {
		return
	}
	m.ForwardedChars.Observe(float64(forwardedChars))
	m.SummaryLatency.Observe(elapsed.Seconds())
}

// Subscriber counts pipeline events; it fits runner.SubscribeStats.
func (m *Metrics) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				m.LastRun.SetToCurrentTime()
				return nil
			}
			m.EventsTotal.WithLabelValues(string(evt.Stage), string(evt.Type)).Inc()
		}
	}
}

// WriteTextfile writes all metrics atomically to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
