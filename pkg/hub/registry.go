package hub

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport is the duplex channel a connection was accepted on. The registry
// owns the handle exclusively; nothing else may write to it.
//
// Send may suspend while the underlying channel drains (backpressure) and
// must honour context cancellation. A send against a closed channel returns
// an error, which the registry reports as ErrConnectionGone.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Connection is one live client session. The id is assigned at registration
// and is immutable, as is the identity. Group membership is mutated only
// through the GroupManager.
type Connection struct {
	id        string
	identity  string
	transport Transport

	// ctx is cancelled at unregister so in-flight sends targeting this
	// connection abort without blocking delivery to other connections.
	ctx    context.Context
	cancel context.CancelFunc
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Identity returns the authenticated principal attached at registration,
// or the empty string for anonymous connections.
func (c *Connection) Identity() string { return c.identity }

// Done is closed when the connection has been unregistered.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

const defaultShardCount = 16

// RegistryConfig holds optional Registry tuning. The zero value is valid.
type RegistryConfig struct {
	// ShardCount is the number of lock shards for the id->connection map.
	// Defaults to 16. More shards reduce contention under high churn.
	ShardCount int

	// MaxConnections caps concurrent registrations. 0 means unlimited.
	MaxConnections int
}

type registryShard struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// Registry is the authoritative id->connection map: the single source of
// truth for "is this connection still alive". It is sharded with per-shard
// locks so registration, lookup, and unregistration on different connections
// never serialize behind a global lock.
//
// The registry is safe for concurrent use from any number of goroutines.
type Registry struct {
	shards   []*registryShard
	maxConns int
	count    atomic.Int64

	hookMu sync.RWMutex
	hooks  []func(connID string)
}

// NewRegistry creates an empty connection registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	n := cfg.ShardCount
	if n <= 0 {
		n = defaultShardCount
	}

	shards := make([]*registryShard, n)
	for i := range shards {
		shards[i] = &registryShard{conns: make(map[string]*Connection)}
	}

	return &Registry{
		shards:   shards,
		maxConns: cfg.MaxConnections,
	}
}

// OnUnregister registers a hook invoked after a connection is removed from
// the registry. Hooks run in registration order and receive the connection
// id. The GroupManager's cascade removal is wired here, followed by any
// application disconnect hooks.
//
// Must be called during setup, before connections start registering.
func (r *Registry) OnUnregister(fn func(connID string)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *Registry) shardFor(connID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return r.shards[int(h.Sum32())%len(r.shards)]
}

// Register creates a Connection for the given transport handle, assigns a
// fresh unique id, and stores it. The identity may be empty for anonymous
// connections. Fails only with ErrResourceExhausted when the configured
// connection cap is reached.
func (r *Registry) Register(transport Transport, identity string) (string, error) {
	if n := r.count.Add(1); r.maxConns > 0 && n > int64(r.maxConns) {
		r.count.Add(-1)
		return "", fmt.Errorf("cannot register connection (%d max): %w", r.maxConns, ErrResourceExhausted)
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &Connection{
		id:        uuid.New().String(),
		identity:  identity,
		transport: transport,
		ctx:       ctx,
		cancel:    cancel,
	}

	shard := r.shardFor(conn.id)
	shard.mu.Lock()
	shard.conns[conn.id] = conn
	shard.mu.Unlock()

	return conn.id, nil
}

// Unregister removes the connection and triggers the cascade hooks (group
// removal, disconnect callbacks). In-flight sends targeting the connection
// are cancelled immediately; unregistration never waits for them.
//
// Idempotent: unregistering an unknown id is a no-op, not an error.
func (r *Registry) Unregister(connID string) {
	shard := r.shardFor(connID)

	shard.mu.Lock()
	conn, ok := shard.conns[connID]
	if ok {
		delete(shard.conns, connID)
	}
	shard.mu.Unlock()

	if !ok {
		return
	}

	r.count.Add(-1)
	conn.cancel()
	conn.transport.Close()

	r.hookMu.RLock()
	hooks := r.hooks
	r.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(connID)
	}
}

// Lookup returns the connection record for the given id. A missing
// connection is a normal outcome (a caller racing a disconnect), signalled
// by ok=false rather than an error.
func (r *Registry) Lookup(connID string) (*Connection, bool) {
	shard := r.shardFor(connID)
	shard.mu.RLock()
	conn, ok := shard.conns[connID]
	shard.mu.RUnlock()
	return conn, ok
}

// Send attempts delivery of payload to a single connection. Returns an error
// wrapping ErrConnectionGone if the connection is unknown or its transport
// has closed; callers fanning out to many recipients must treat that as
// "skip silently".
//
// The send is cancelled if either ctx is done or the connection is
// unregistered mid-flight.
func (r *Registry) Send(ctx context.Context, connID string, payload []byte) error {
	conn, ok := r.Lookup(connID)
	if !ok {
		return fmt.Errorf("send to %s: %w", connID, ErrConnectionGone)
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(conn.ctx, cancel)
	defer stop()

	if err := conn.transport.Send(sendCtx, payload); err != nil {
		return fmt.Errorf("send to %s: %w: %v", connID, ErrConnectionGone, err)
	}
	return nil
}

// ConnectionIDs returns a point-in-time snapshot of every registered
// connection id. The snapshot is taken shard by shard; connections
// registering or unregistering concurrently may or may not appear.
func (r *Registry) ConnectionIDs() []string {
	ids := make([]string, 0, r.count.Load())
	for _, shard := range r.shards {
		shard.mu.RLock()
		for id := range shard.conns {
			ids = append(ids, id)
		}
		shard.mu.RUnlock()
	}
	return ids
}

// Len returns the current number of registered connections.
func (r *Registry) Len() int {
	return int(r.count.Load())
}
