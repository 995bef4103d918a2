// Package hub implements the Roost connection hub: a concurrent registry of
// live client connections, dynamic group membership, and best-effort broadcast
// dispatch across one or many server processes.
//
// # Overview
//
// The hub is a library, not a server. A transport layer (see internal/transport
// for the bundled WebSocket adapter) registers each client connection with the
// Registry, feeds inbound invocations to the Dispatcher, and receives outbound
// payloads through the Transport interface it supplied at registration.
//
// # Core Concepts
//
// A Connection is a single logical client session. Its identifier is assigned
// at registration and never reused while any group still references it.
//
// A Group is a named, dynamically-populated set of connections used as a
// broadcast target. Groups spring into existence on first join and disappear
// when the last member leaves; there is no explicit create or destroy call.
//
// An Invocation is one request to execute a named target, either inbound from
// a client or outbound to one, many, or all connections. Invocations carry an
// origin so that a message relayed from the backplane is never re-published
// to it (the anti-echo guarantee).
//
// # Scale-Out
//
// A single process delivers broadcasts to its own connections only. Wiring a
// Backplane (see pkg/backplane for the Redis implementation) makes group and
// broadcast semantics span every process subscribed to the same channel. The
// hub degrades gracefully: if the backplane is unreachable, local delivery
// keeps working and only cross-process fan-out is lost.
//
// # Usage Example
//
//	registry := hub.NewRegistry(hub.RegistryConfig{})
//	groups := hub.NewGroupManager(registry)
//	registry.OnUnregister(groups.RemoveConnectionEverywhere)
//
//	dispatcher := hub.NewDispatcher(registry, groups, hub.NewChain(), nil)
//	dispatcher.Handle("ping", func(ctx context.Context, inv *hub.Invocation) ([]byte, error) {
//		return []byte(`"pong"`), nil
//	})
//
//	id, _ := registry.Register(transport, "alice")
//	groups.Join(id, "room1")
//	dispatcher.DispatchOutbound(ctx, &hub.Invocation{
//		Target:   "ping",
//		Origin:   hub.OriginLocal,
//		Selector: hub.Selector{Kind: hub.SelectorGroup, Value: "room1"},
//	})
package hub
