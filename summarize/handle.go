package summarize

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrInit = errors.New("summarizer initialization failed")

// Factory builds a capability. It is expensive and runs at most once per
// Handle.
type Factory func(ctx context.Context) (Capability, error)

// Handle lazily constructs a capability on first use. Concurrent first
// callers wait for the single construction; its outcome, including an
// error, is kept for the lifetime of the handle.
type Handle struct {
	factory Factory

	once       sync.Once
	capability Capability
	err        error
}

func NewHandle(factory Factory) *Handle {
	return &Handle{factory: factory}
}

// NewReadyHandle wraps an already constructed capability.
func NewReadyHandle(c Capability) *Handle {
	return NewHandle(func(context.Context) (Capability, error) { return c, nil })
}

func (h *Handle) Get(ctx context.Context) (Capability, error) {
	h.once.Do(func() {
		h.capability, h.err = h.construct(ctx)
	})
	return h.capability, h.err
}

func (h *Handle) construct(ctx context.Context) (c Capability, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("%w: factory panic: %v", ErrInit, r)
		}
	}()

	if h.factory == nil {
		return nil, fmt.Errorf("%w: no factory configured", ErrInit)
	}
	c, err = h.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: factory returned no capability", ErrInit)
	}
	return c, nil
}
