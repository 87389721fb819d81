package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCapability struct {
	mu     sync.Mutex
	calls  int
	inputs []string
	params []Params
	reply  string
	err    error
}

func (r *recordingCapability) Summarize(_ context.Context, text string, p Params) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.inputs = append(r.inputs, text)
	r.params = append(r.params, p)
	return r.reply, r.err
}

type statusObserver struct {
	statuses []Status
	chars    []int
}

func (o *statusObserver) ObserveSummary(status Status, chars int, _ time.Duration) {
	o.statuses = append(o.statuses, status)
	o.chars = append(o.chars, chars)
}

func TestGateway_BlankInputSkipsCapability(t *testing.T) {
	constructed := 0
	handle := NewHandle(func(context.Context) (Capability, error) {
		constructed++
		return &recordingCapability{reply: "x"}, nil
	})
	obs := &statusObserver{}
	g := NewGateway(handle, WithObserver(obs))

	for _, in := range []string{"", "   ", "\n\t "} {
		res := g.Summarize(context.Background(), in, DefaultMaxLength, DefaultMinLength)
		assert.Equal(t, StatusNoContent, res.Status)
		assert.Equal(t, NoContentMessage, res.String())
	}
	assert.Zero(t, constructed)
	assert.Equal(t, []Status{StatusNoContent, StatusNoContent, StatusNoContent}, obs.statuses)
	assert.Equal(t, []int{0, 0, 0}, obs.chars)
}

func TestGateway_TruncatesInput(t *testing.T) {
	capability := &recordingCapability{reply: "summary"}
	obs := &statusObserver{}
	g := NewGateway(NewReadyHandle(capability), WithObserver(obs))

	res := g.Summarize(context.Background(), strings.Repeat("a", 9000), DefaultMaxLength, DefaultMinLength)
	require.Equal(t, StatusOK, res.Status)
	require.Len(t, capability.inputs, 1)
	assert.Len(t, capability.inputs[0], MaxInputChars)
	assert.Equal(t, []int{MaxInputChars}, obs.chars)
}

func TestGateway_TruncatesByCharacters(t *testing.T) {
	capability := &recordingCapability{reply: "summary"}
	g := NewGateway(NewReadyHandle(capability))

	g.Summarize(context.Background(), strings.Repeat("é", 4100), DefaultMaxLength, DefaultMinLength)
	require.Len(t, capability.inputs, 1)
	assert.Equal(t, MaxInputChars, len([]rune(capability.inputs[0])))
}

func TestGateway_ShortInputForwardedUnchanged(t *testing.T) {
	capability := &recordingCapability{reply: "  the summary  "}
	g := NewGateway(NewReadyHandle(capability))

	res := g.Summarize(context.Background(), "short thread", 60, 10)
	assert.Equal(t, "the summary", res.String())
	assert.Equal(t, []string{"short thread"}, capability.inputs)

	p := capability.params[0]
	assert.Equal(t, 60, p.MaxLength)
	assert.Equal(t, 10, p.MinLength)
	assert.Equal(t, NumBeams, p.NumBeams)
	assert.Equal(t, LengthPenalty, p.LengthPenalty)
	assert.True(t, p.EarlyStopping)
	assert.False(t, p.DoSample)
}

func TestGateway_EmptySummary(t *testing.T) {
	g := NewGateway(NewReadyHandle(&recordingCapability{reply: " \n"}))

	res := g.Summarize(context.Background(), "thread", DefaultMaxLength, DefaultMinLength)
	assert.Equal(t, StatusEmpty, res.Status)
	assert.Equal(t, EmptyMessage, res.String())
	assert.NotEqual(t, NoContentMessage, res.String())
}

func TestGateway_CapabilityError(t *testing.T) {
	g := NewGateway(NewReadyHandle(&recordingCapability{err: errors.New("model exploded")}))

	res := g.Summarize(context.Background(), "thread", DefaultMaxLength, DefaultMinLength)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrCapability)
	assert.False(t, res.Fatal())
	assert.Contains(t, res.String(), "Error")
	assert.Contains(t, res.String(), "model exploded")
}

func TestGateway_CapabilityPanic(t *testing.T) {
	panicky := CapabilityFunc(func(context.Context, string, Params) (string, error) {
		panic("boom")
	})
	g := NewGateway(NewReadyHandle(panicky))

	var res Result
	require.NotPanics(t, func() {
		res = g.Summarize(context.Background(), "thread", DefaultMaxLength, DefaultMinLength)
	})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.String(), "Error")
}

func TestGateway_InitFailure(t *testing.T) {
	calls := 0
	handle := NewHandle(func(context.Context) (Capability, error) {
		calls++
		return nil, errors.New("weights missing")
	})
	g := NewGateway(handle)

	for i := 0; i < 3; i++ {
		res := g.Summarize(context.Background(), "thread", DefaultMaxLength, DefaultMinLength)
		assert.Equal(t, StatusInitFailed, res.Status)
		assert.True(t, res.Fatal())
		assert.ErrorIs(t, res.Err, ErrInit)
		assert.Contains(t, res.String(), "Error")
	}
	assert.Equal(t, 1, calls)
}

func TestGateway_SummarizeText(t *testing.T) {
	capability := &recordingCapability{reply: "done"}
	g := NewGateway(NewReadyHandle(capability))

	assert.Equal(t, "done", g.SummarizeText(context.Background(), "thread"))
	assert.Equal(t, DefaultMaxLength, capability.params[0].MaxLength)
	assert.Equal(t, DefaultMinLength, capability.params[0].MinLength)
	assert.Equal(t, NoContentMessage, g.SummarizeText(context.Background(), ""))
}

func TestParams_WithLengths(t *testing.T) {
	p := DefaultParams().WithLengths(0, -1)
	assert.Equal(t, DefaultMaxLength, p.MaxLength)
	assert.Equal(t, DefaultMinLength, p.MinLength)

	p = DefaultParams().WithLengths(20, 50)
	assert.Equal(t, 20, p.MaxLength)
	assert.Equal(t, 20, p.MinLength)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "héé", Truncate("hééllo", 3))
	assert.Equal(t, "abc", Truncate("abc", 0))
}
