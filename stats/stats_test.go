package stats

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Run(t *testing.T) {
	events := make(chan Event, 16)
	failure := errors.New("capability down")

	for _, evt := range []Event{
		{Stage: StageSource, Type: EventTypeScanned, ThreadID: "t1"},
		{Stage: StageSource, Type: EventTypeScanned, ThreadID: "t2"},
		{Stage: StageSource, Type: EventTypeScanned, ThreadID: "t3"},
		{Stage: StageSource, Type: EventTypeFiltered, ThreadID: "t3"},
		{Stage: StageSummarize, Type: EventTypeCached, ThreadID: "t1"},
		{Stage: StageSummarize, Type: EventTypeFailed, ThreadID: "t2", Err: failure},
		{Stage: StageDeliver, Type: EventTypeDryRunDeliver, ThreadID: "t1"},
	} {
		events <- evt
	}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	got := c.Snapshot()
	assert.Equal(t, 3, got.Scanned)
	assert.Equal(t, 1, got.Filtered)
	assert.Equal(t, 1, got.Cached)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 1, got.DryRunDelivered)
	assert.Equal(t, 0, got.Errors)
	assert.ErrorIs(t, got.LastError, failure)
}

type fakeStream struct {
	fn func(context.Context, <-chan Event) error
}

func (f *fakeStream) SubscribeStats(_ string, fn func(context.Context, <-chan Event) error) {
	f.fn = fn
}

func TestReporter(t *testing.T) {
	stream := &fakeStream{}
	reporter := NewReporter(stream, nil)
	require.NotNil(t, stream.fn)

	events := make(chan Event, 2)
	events <- Event{Type: EventTypeSummarized}
	events <- Event{Type: EventTypeError, Err: errors.New("boom")}
	close(events)

	require.NoError(t, stream.fn(context.Background(), events))
	summary := reporter.Summary()
	assert.Equal(t, 1, summary.Summarized)
	assert.Equal(t, 1, summary.Errors)
	assert.Contains(t, summary.LogAttrs(), "lastError")
}

func TestPrettyPrintTop(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrintTop(&buf, map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	assert.Equal(t, "1. c (5)\n2. a (2)\n3. b (2)\n", buf.String())
}
