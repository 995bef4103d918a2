package hub

import (
	"context"
	"fmt"
)

// Handler is the terminal function a filter chain wraps: for inbound
// dispatch the application handler registered for the target, for outbound
// dispatch the fan-out delivery itself. The result payload is returned to
// the originating caller; outbound terminals return a nil payload.
type Handler func(ctx context.Context, inv *Invocation) ([]byte, error)

// Filter is one interceptor in the invocation filter chain. Filters carry
// cross-cutting concerns (timing, auth checks, audit logging) so they never
// have to be hard-coded into the dispatcher.
//
// Before runs on the way in, in registration order. Returning a non-nil
// error short-circuits the chain: later filters and the terminal handler do
// not run, and the error becomes the invocation's result.
//
// After runs on the way out, in reverse registration order, with the
// invocation's final error (nil on success). After is guaranteed to run for
// every filter whose Before was entered, even when a later Before, the
// terminal handler, or a panic fails the call, so it is the place to release
// anything Before acquired.
type Filter interface {
	Before(ctx context.Context, inv *Invocation) error
	After(ctx context.Context, inv *Invocation, err error)
}

// Chain is an ordered, immutable-after-setup sequence of filters applied
// around every invocation. The zero-filter chain is valid and simply invokes
// the terminal handler.
type Chain struct {
	filters []Filter
}

// NewChain creates a filter chain that applies the given filters in order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Use appends a filter to the chain. Must be called during setup, before
// the chain starts running invocations.
func (c *Chain) Use(f Filter) {
	c.filters = append(c.filters, f)
}

// Run executes the invocation through the chain: Befores in registration
// order, the terminal handler, then Afters in reverse order. A panic in the
// terminal handler is recovered into an error so one misbehaving handler
// cannot take the dispatcher down; entered filters still see their After.
func (c *Chain) Run(ctx context.Context, inv *Invocation, terminal Handler) (result []byte, err error) {
	entered := 0

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic for %q: %v", inv.Target, r)
			result = nil
		}
		for i := entered - 1; i >= 0; i-- {
			c.filters[i].After(ctx, inv, err)
		}
	}()

	for _, f := range c.filters {
		if err = f.Before(ctx, inv); err != nil {
			return nil, err
		}
		entered++
	}

	result, err = terminal(ctx, inv)
	return result, err
}
