package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dhcgn/mail-thread-digest/filter"
	"github.com/dhcgn/mail-thread-digest/model"
	"github.com/dhcgn/mail-thread-digest/state"
	"github.com/dhcgn/mail-thread-digest/stats"
	"github.com/dhcgn/mail-thread-digest/summarize"
	"github.com/dhcgn/mail-thread-digest/thread"
)

var ErrThreadIDMissing = errors.New("thread missing id")

// ErrSummarizerUnavailable aborts the batch: no later thread can succeed.
var ErrSummarizerUnavailable = errors.New("summarizer unavailable")

type StageFunc func(context.Context) error

type Options struct {
	Workers   int
	Limit     int
	MaxLength int
	MinLength int
	StateDir  string
	// DryRun keeps summaries in memory only.
	DryRun bool
	// Force ignores cached summaries.
	Force  bool
	Filter filter.Options
}

type stage struct {
	name string
	fn   StageFunc
}

type subscriber struct {
	name   string
	fn     func(context.Context, <-chan stats.Event) error
	events chan stats.Event
}

// Runner wires the batch pipeline: source -> bridge -> summarize workers ->
// sink -> optional delivery. Stages and subscribers are registered first and
// launched by Start.
type Runner struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	threads    chan model.Thread
	jobs       chan model.Job
	digests    chan model.Digest
	deliveries chan model.Digest

	store    *state.FileStore
	selector *thread.Selector
	filter   *filter.Filter
	gateway  *summarize.Gateway

	stages      []stage
	subscribers []*subscriber

	workWG    sync.WaitGroup
	summaryWG sync.WaitGroup
	statsWG   sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeThreadsOnce    sync.Once
	closeJobsOnce       sync.Once
	closeDigestsOnce    sync.Once
	closeDeliveriesOnce sync.Once
	closeEventsOnce     sync.Once
	since               time.Time
}

func New(opts Options, gateway *summarize.Gateway, selector *thread.Selector, logger *slog.Logger) (*Runner, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway must not be nil")
	}
	if selector == nil {
		selector = thread.NewSelector(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = thread.DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	f, err := filter.New(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	store, err := state.NewFileStore(opts.StateDir, !opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		threads:  make(chan model.Thread, 32),
		jobs:     make(chan model.Job, 32),
		digests:  make(chan model.Digest, 32),
		store:    store,
		selector: selector,
		filter:   f,
		gateway:  gateway,
	}

	r.AddStage("bridge", r.bridge)
	r.summaryWG.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		r.AddStage(fmt.Sprintf("summarize-%d", i), r.summarizeWorker)
	}
	r.AddStage("summarize-done", func(context.Context) error {
		r.summaryWG.Wait()
		r.closeDigests()
		return nil
	})
	r.AddStage("sink", r.sink)
	return r, nil
}

func (r *Runner) Options() Options {
	return r.opts
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Store() *state.FileStore {
	return r.store
}

func (r *Runner) Filter() *filter.Filter {
	return r.filter
}

func (r *Runner) ThreadWriter() chan<- model.Thread {
	return r.threads
}

func (r *Runner) CloseThreads() {
	r.closeThreadsOnce.Do(func() {
		close(r.threads)
	})
}

// Feed registers a source stage that groups docs by thread id, sends the
// threads and closes the input.
func (r *Runner) Feed(docs []model.ThreadDocument) {
	threads := thread.Group(docs)
	r.AddStage("source", func(ctx context.Context) error {
		defer r.CloseThreads()
		for _, t := range threads {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.threads <- t:
			}
		}
		return nil
	})
}

// Deliveries enables forwarding of every digest to a delivery stage. It
// must be called before Start.
func (r *Runner) Deliveries() <-chan model.Digest {
	if r.deliveries == nil {
		r.deliveries = make(chan model.Digest, 32)
	}
	return r.deliveries
}

func (r *Runner) EmitEvent(evt stats.Event) {
	for _, sub := range r.subscribers {
		select {
		case <-r.ctx.Done():
			return
		case sub.events <- evt:
		}
	}
}

// SubscribeStats registers fn to receive every pipeline event.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.subscribers = append(r.subscribers, &subscriber{
		name:   name,
		fn:     fn,
		events: make(chan stats.Event, 128),
	})
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.stages = append(r.stages, stage{name: name, fn: fn})
}

func (r *Runner) Start() error {
	r.since = time.Now()

	for _, sub := range r.subscribers {
		r.statsWG.Add(1)
		go func(sub *subscriber) {
			defer r.statsWG.Done()
			if err := sub.fn(r.ctx, sub.events); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stats: %w", sub.name, err))
			}
		}(sub)
	}

	for _, st := range r.stages {
		r.workWG.Add(1)
		go func(st stage) {
			defer r.workWG.Done()
			if err := st.fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stage: %w", st.name, err))
			}
		}(st)
	}

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	if err := r.store.Close(); err != nil {
		r.fail(err)
	}

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// bridge turns threads into jobs, answering unchanged threads from the
// summary store.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeJobs()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-r.threads:
			if !ok {
				return nil
			}

			if strings.TrimSpace(t.ID) == "" {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Err: ErrThreadIDMissing})
				continue
			}
			r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeScanned, ThreadID: t.ID})

			if !r.filter.AllowsThread(t) {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeFiltered, ThreadID: t.ID})
				continue
			}

			job := r.jobFor(t)
			if !r.opts.Force {
				if entry, ok := r.store.Lookup(job.ThreadID, job.Hash); ok {
					r.EmitEvent(stats.Event{Stage: stats.StageSummarize, Type: stats.EventTypeCached, ThreadID: job.ThreadID})
					digest := model.Digest{
						ThreadID:  entry.ThreadID,
						Hash:      entry.Hash,
						Summary:   entry.Summary,
						Status:    entry.Status,
						Messages:  job.Messages,
						Cached:    true,
						CreatedAt: entry.CreatedAt,
					}
					if err := r.sendDigest(ctx, digest); err != nil {
						return err
					}
					continue
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.jobs <- job:
			}
		}
	}
}

func (r *Runner) jobFor(t model.Thread) model.Job {
	selection := r.selector.SelectTopMessages(t.Documents, t.ID, r.opts.Limit)
	text := strings.Join(selection, thread.Separator)
	return model.Job{
		ThreadID: t.ID,
		Text:     text,
		Hash:     state.ContentHash(text),
		Messages: len(selection),
	}
}

func (r *Runner) summarizeWorker(ctx context.Context) error {
	defer r.summaryWG.Done()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-r.jobs:
			if !ok {
				return nil
			}

			res := r.gateway.Summarize(ctx, job.Text, r.opts.MaxLength, r.opts.MinLength)
			if res.Fatal() {
				err := fmt.Errorf("%w: %w", ErrSummarizerUnavailable, res.Err)
				r.EmitEvent(stats.Event{Stage: stats.StageSummarize, Type: stats.EventTypeError, ThreadID: job.ThreadID, Err: err})
				return err
			}

			r.EmitEvent(stats.Event{Stage: stats.StageSummarize, Type: eventFor(res.Status), ThreadID: job.ThreadID, Err: res.Err})
			r.logger.Debug("thread summarized", "threadID", job.ThreadID, "status", res.Status, "messages", job.Messages)

			digest := model.Digest{
				ThreadID:  job.ThreadID,
				Hash:      job.Hash,
				Summary:   res.String(),
				Status:    res.Status.String(),
				Messages:  job.Messages,
				CreatedAt: time.Now().UTC(),
			}
			if err := r.sendDigest(ctx, digest); err != nil {
				return err
			}
		}
	}
}

func eventFor(status summarize.Status) stats.EventType {
	switch status {
	case summarize.StatusOK:
		return stats.EventTypeSummarized
	case summarize.StatusNoContent:
		return stats.EventTypeNoContent
	case summarize.StatusEmpty:
		return stats.EventTypeEmpty
	default:
		return stats.EventTypeFailed
	}
}

func (r *Runner) sendDigest(ctx context.Context, digest model.Digest) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.digests <- digest:
		return nil
	}
}

// sink records fresh summaries and forwards every digest to delivery.
// Failed summaries are not stored so the next run retries them.
func (r *Runner) sink(ctx context.Context) error {
	defer r.closeDeliveries()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case digest, ok := <-r.digests:
			if !ok {
				return r.store.Flush()
			}

			if !digest.Cached && digest.Status != summarize.StatusFailed.String() {
				entry := state.Entry{
					ThreadID:  digest.ThreadID,
					Hash:      digest.Hash,
					Summary:   digest.Summary,
					Status:    digest.Status,
					CreatedAt: digest.CreatedAt,
				}
				if err := r.store.Save(entry); err != nil {
					r.EmitEvent(stats.Event{Stage: stats.StageSummarize, Type: stats.EventTypeError, ThreadID: digest.ThreadID, Err: err})
					return err
				}
			}

			if r.deliveries == nil {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.deliveries <- digest:
			}
		}
	}
}

func (r *Runner) closeJobs() {
	r.closeJobsOnce.Do(func() {
		close(r.jobs)
	})
}

func (r *Runner) closeDigests() {
	r.closeDigestsOnce.Do(func() {
		close(r.digests)
	})
}

func (r *Runner) closeDeliveries() {
	r.closeDeliveriesOnce.Do(func() {
		if r.deliveries != nil {
			close(r.deliveries)
		}
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		for _, sub := range r.subscribers {
			close(sub.events)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
