// Package backplane relays hub invocations between server processes over
// Redis Pub/Sub, making group and broadcast semantics span a whole fleet.
//
// # Overview
//
// Every process publishes its locally-originated broadcasts to a shared
// channel and subscribes to the same channel to replay broadcasts that
// originated elsewhere. Replayed invocations are injected into the local
// dispatcher with origin=backplane, which the dispatcher never re-publishes,
// so a message traverses the channel exactly once per originating process.
//
// # Namespacing
//
// Channels are namespaced by instance name (roost:{instance}:invocations) so
// multiple Roost deployments can safely share one Redis server. Each adapter
// additionally stamps envelopes with a per-process node id; a process skips
// envelopes carrying its own node id because it already delivered that
// broadcast locally before publishing.
//
// # Degraded Mode
//
// The adapter is never fail-stop. A publish failure is a warning: local
// delivery has already happened. A lost subscription triggers reconnection
// with exponential backoff, and until it succeeds the hub simply runs
// local-only.
//
// Delivery is at-least-once: after a reconnect, peers may observe duplicates
// or gaps. Applications needing stronger guarantees must deduplicate at the
// handler level.
package backplane
