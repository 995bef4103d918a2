package backplane

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/roost/pkg/hub"
)

// State is the adapter's connection state. Subscribed is the only state in
// which inbound peer messages are processed.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateSubscribed:
		return "Subscribed"
	default:
		return "Unknown"
	}
}

// Dispatcher is the slice of the hub dispatcher the adapter needs: the
// ability to inject an outbound invocation received from a peer.
type Dispatcher interface {
	DispatchOutbound(ctx context.Context, inv *hub.Invocation) error
}

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Adapter relays invocations through Redis Pub/Sub. It implements
// hub.Backplane on the publish side and drives the local dispatcher on the
// subscribe side. The adapter is safe for concurrent use.
type Adapter struct {
	rdb          *redis.Client
	instanceName string
	channel      string
	nodeID       string
	state        atomic.Int32
}

// New creates a backplane adapter for the given instance. All traffic flows
// over the instance-namespaced channel, and every envelope this adapter
// publishes is stamped with a fresh per-process node id.
//
// Returns an error if the instance name is invalid.
func New(redisOpts *redis.Options, instanceName string) (*Adapter, error) {
	if err := ValidateInstanceName(instanceName); err != nil {
		return nil, err
	}

	return &Adapter{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		channel:      InvocationChannel(instanceName),
		nodeID:       uuid.New().String(),
	}, nil
}

// NodeID returns this process's backplane identity.
func (a *Adapter) NodeID() string { return a.nodeID }

// State returns the adapter's current connection state.
func (a *Adapter) State() State { return State(a.state.Load()) }

func (a *Adapter) setState(s State) { a.state.Store(int32(s)) }

// Ping verifies Redis connectivity. Useful for health checks.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the adapter should not be used.
func (a *Adapter) Close() error {
	return a.rdb.Close()
}

// Publish relays a locally-originated invocation to peer processes. It is
// fire-and-forget: a failure means the fleet misses this broadcast, but
// local delivery has already happened, so the error is wrapped in
// hub.ErrBackplaneUnavailable for the dispatcher to log and swallow.
func (a *Adapter) Publish(ctx context.Context, inv *hub.Invocation) error {
	data, err := hub.EncodeEnvelope(inv, a.nodeID)
	if err != nil {
		return fmt.Errorf("failed to encode invocation for backplane: %w", err)
	}

	if err := a.rdb.Publish(ctx, a.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s failed: %w: %v", a.channel, hub.ErrBackplaneUnavailable, err)
	}
	return nil
}

// Run maintains the long-lived subscription and blocks until ctx is
// cancelled. Received envelopes are decoded and injected into the dispatcher
// with origin=backplane; envelopes stamped with this adapter's own node id
// are skipped because their broadcast was already delivered locally.
//
// On subscription loss the adapter reconnects with exponential backoff
// (1s doubling to 30s, reset on success). While disconnected, the hub keeps
// delivering locally; only cross-process fan-out is paused.
func (a *Adapter) Run(ctx context.Context, dispatcher Dispatcher) error {
	defer a.setState(StateDisconnected)
	backoff := initialBackoff

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		a.setState(StateConnecting)
		pubsub := a.rdb.Subscribe(ctx, a.channel)

		// Confirm the subscription before declaring ourselves connected.
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			a.setState(StateDisconnected)

			if ctx.Err() != nil {
				return nil
			}
			log.Printf("[Backplane] Subscribe to %s failed (retrying in %v): %v", a.channel, backoff, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		a.setState(StateSubscribed)
		backoff = initialBackoff
		log.Printf("[Backplane] Subscribed to %s as node %s", a.channel, a.nodeID)

		a.pump(ctx, pubsub, dispatcher)
		pubsub.Close()
		a.setState(StateDisconnected)

		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[Backplane] Subscription to %s lost, reconnecting", a.channel)
	}
}

// pump processes messages until the subscription channel closes or ctx is
// cancelled.
func (a *Adapter) pump(ctx context.Context, pubsub *redis.PubSub, dispatcher Dispatcher) {
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			inv, sender, err := hub.DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				// Skip the message; peers may be running newer code.
				log.Printf("[Backplane] Dropping undecodable message: %v", err)
				continue
			}

			if sender == a.nodeID {
				// Our own broadcast, already delivered locally.
				continue
			}

			if err := dispatcher.DispatchOutbound(ctx, inv); err != nil {
				log.Printf("[Backplane] Dispatch of relayed %q failed: %v", inv.Target, err)
			}
		}
	}
}
