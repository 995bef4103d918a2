package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Backplane relays locally-originated invocations to peer processes. The
// dispatcher only needs publish; subscription is owned by the adapter, which
// re-injects received invocations via DispatchOutbound with
// Origin=OriginBackplane.
type Backplane interface {
	Publish(ctx context.Context, inv *Invocation) error
}

// Dispatcher routes invocations: inbound calls from a connection to the
// registered handler, outbound calls to one, many, or all local connections,
// plus replication of local broadcasts through the backplane.
//
// Each invocation is an independent linear pipeline
// (received -> filtered -> routed -> delivered or failed); the dispatcher
// keeps no per-call state across invocations and is safe for concurrent use.
type Dispatcher struct {
	registry  *Registry
	groups    *GroupManager
	chain     *Chain
	backplane Backplane

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a dispatcher over the given registry and group
// manager. The chain may be empty but not nil. A nil backplane is valid and
// leaves the hub in local-only mode.
func NewDispatcher(registry *Registry, groups *GroupManager, chain *Chain, backplane Backplane) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		groups:    groups,
		chain:     chain,
		backplane: backplane,
		handlers:  make(map[string]Handler),
	}
}

// Handle registers the handler for a target name. Registration happens at
// startup; registering the same target twice replaces the handler.
func (d *Dispatcher) Handle(target string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[target] = h
}

func (d *Dispatcher) handlerFor(target string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[target]
	return h, ok
}

// DispatchInbound executes an invocation received from a connection: resolve
// the handler for target, wrap it in the filter chain, run it, and return
// the result to be relayed to the originating connection.
//
// An unknown target returns ErrMethodNotFound — an error result for that one
// caller, never a server fault. Handler errors and panics are likewise
// contained to the originating call; other connections observe nothing.
func (d *Dispatcher) DispatchInbound(ctx context.Context, connID, target string, args []json.RawMessage) ([]byte, error) {
	handler, ok := d.handlerFor(target)
	if !ok {
		return nil, fmt.Errorf("inbound from %s: %w: %q", connID, ErrMethodNotFound, target)
	}

	inv := &Invocation{
		Target: target,
		Args:   args,
		Origin: OriginLocal,
	}

	return d.chain.Run(ctx, inv, handler)
}

// DispatchOutbound delivers an invocation to the local connections named by
// its selector, then — only for locally-originated invocations — publishes
// it to the backplane so peer processes replicate the broadcast.
//
// Delivery is best-effort fan-out: a recipient that is already gone is
// skipped and logged, never aborting delivery to the rest. The backplane
// publish is ordered after local delivery so local clients are not delayed
// by a network round-trip; a publish failure degrades to local-only and is
// not surfaced to the caller.
func (d *Dispatcher) DispatchOutbound(ctx context.Context, inv *Invocation) error {
	if err := inv.Selector.Validate(); err != nil {
		return fmt.Errorf("outbound %q: %v", inv.Target, err)
	}

	_, err := d.chain.Run(ctx, inv, func(ctx context.Context, inv *Invocation) ([]byte, error) {
		payload, err := EncodeDelivery(inv)
		if err != nil {
			return nil, fmt.Errorf("outbound %q: %w", inv.Target, err)
		}
		d.deliverLocal(ctx, inv, payload)
		return nil, nil
	})
	if err != nil {
		return err
	}

	if inv.Origin == OriginLocal && d.backplane != nil {
		if err := d.backplane.Publish(ctx, inv); err != nil {
			log.Printf("[Dispatcher] Backplane publish failed, continuing local-only: %v", err)
		}
	}
	return nil
}

// deliverLocal resolves the selector against local state and sends to each
// target. Snapshots are taken up front so delivery never holds a registry or
// group lock.
func (d *Dispatcher) deliverLocal(ctx context.Context, inv *Invocation, payload []byte) {
	switch inv.Selector.Kind {
	case SelectorConnection:
		d.sendBestEffort(ctx, inv.Selector.Value, payload)

	case SelectorGroup:
		for _, connID := range d.groups.MembersOf(inv.Selector.Value) {
			if inv.Selector.excludes(connID) {
				continue
			}
			d.sendBestEffort(ctx, connID, payload)
		}

	case SelectorAll:
		for _, connID := range d.registry.ConnectionIDs() {
			if inv.Selector.excludes(connID) {
				continue
			}
			d.sendBestEffort(ctx, connID, payload)
		}
	}
}

func (d *Dispatcher) sendBestEffort(ctx context.Context, connID string, payload []byte) {
	if err := d.registry.Send(ctx, connID, payload); err != nil {
		// Racing a disconnect is normal during fan-out.
		if IsConnectionGone(err) {
			log.Printf("[Dispatcher] Skipping gone connection %s", connID)
			return
		}
		log.Printf("[Dispatcher] Delivery to %s failed: %v", connID, err)
	}
}
