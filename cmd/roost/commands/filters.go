package commands

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dyluth/roost/pkg/hub"
)

// loggingFilter logs every invocation with its outcome and duration. It is
// the default cross-cutting filter installed by serve; applications
// embedding the hub compose their own chain.
//
// Invocations are created per call and never reused, so the pointer is a
// safe key for the start-time table between Before and After.
type loggingFilter struct {
	mu      sync.Mutex
	started map[*hub.Invocation]time.Time
}

func newLoggingFilter() *loggingFilter {
	return &loggingFilter{started: make(map[*hub.Invocation]time.Time)}
}

func (f *loggingFilter) Before(ctx context.Context, inv *hub.Invocation) error {
	f.mu.Lock()
	f.started[inv] = time.Now()
	f.mu.Unlock()
	return nil
}

func (f *loggingFilter) After(ctx context.Context, inv *hub.Invocation, err error) {
	f.mu.Lock()
	start, ok := f.started[inv]
	delete(f.started, inv)
	f.mu.Unlock()

	elapsed := time.Duration(0)
	if ok {
		elapsed = time.Since(start).Round(time.Microsecond)
	}

	if err != nil {
		log.Printf("[Hub] %s %q failed after %v: %v", inv.Origin, inv.Target, elapsed, err)
		return
	}
	log.Printf("[Hub] %s %q completed in %v", inv.Origin, inv.Target, elapsed)
}
