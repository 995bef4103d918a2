package hub

import (
	"fmt"
	"hash/fnv"
	"sync"
)

type groupShard struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{} // group name -> member connection ids
}

type membershipShard struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{} // connection id -> group names
}

// GroupManager maintains the many-to-many mapping between groups and
// connections. Both directions of the index are sharded with per-shard locks
// (group side by group name, connection side by connection id) so that joins
// and leaves on unrelated groups never contend.
//
// Groups have no explicit lifecycle: a group exists exactly while it has at
// least one member. Membership is process-local; cross-process broadcast
// semantics come from the backplane, not from synchronizing these indexes.
type GroupManager struct {
	registry *Registry
	groups   []*groupShard
	members  []*membershipShard
}

// NewGroupManager creates a group manager backed by the given registry. The
// registry is consulted on join so that membership is only ever recorded for
// live connections. Wire the cascade with:
//
//	registry.OnUnregister(groups.RemoveConnectionEverywhere)
func NewGroupManager(registry *Registry) *GroupManager {
	n := len(registry.shards)
	gm := &GroupManager{
		registry: registry,
		groups:   make([]*groupShard, n),
		members:  make([]*membershipShard, n),
	}
	for i := 0; i < n; i++ {
		gm.groups[i] = &groupShard{groups: make(map[string]map[string]struct{})}
		gm.members[i] = &membershipShard{groups: make(map[string]map[string]struct{})}
	}
	return gm
}

func (gm *GroupManager) groupShardFor(group string) *groupShard {
	h := fnv.New32a()
	h.Write([]byte(group))
	return gm.groups[int(h.Sum32())%len(gm.groups)]
}

func (gm *GroupManager) memberShardFor(connID string) *membershipShard {
	h := fnv.New32a()
	h.Write([]byte(connID))
	return gm.members[int(h.Sum32())%len(gm.members)]
}

// Join adds the connection to the named group, creating the group implicitly
// if this is its first member. Idempotent: joining a group twice is a no-op.
// Fails with ErrUnknownConnection if the connection is not registered.
func (gm *GroupManager) Join(connID, group string) error {
	if group == "" {
		return fmt.Errorf("group name cannot be empty")
	}
	if _, ok := gm.registry.Lookup(connID); !ok {
		return fmt.Errorf("join %q: %w: %s", group, ErrUnknownConnection, connID)
	}

	ms := gm.memberShardFor(connID)
	ms.mu.Lock()
	if ms.groups[connID] == nil {
		ms.groups[connID] = make(map[string]struct{})
	}
	ms.groups[connID][group] = struct{}{}
	ms.mu.Unlock()

	gs := gm.groupShardFor(group)
	gs.mu.Lock()
	if gs.groups[group] == nil {
		gs.groups[group] = make(map[string]struct{})
	}
	gs.groups[group][connID] = struct{}{}
	gs.mu.Unlock()

	// The connection may have unregistered between the liveness check and
	// the inserts above. Its cascade removal may already have run and seen
	// neither index entry, so re-check and undo to keep both sides clean.
	if _, ok := gm.registry.Lookup(connID); !ok {
		gm.Leave(connID, group)
		return fmt.Errorf("join %q: %w: %s", group, ErrUnknownConnection, connID)
	}

	return nil
}

// Leave removes the connection from the named group. Idempotent: leaving a
// group the connection is not in (or that does not exist) is a no-op. A
// group left with zero members is garbage-collected.
func (gm *GroupManager) Leave(connID, group string) {
	gs := gm.groupShardFor(group)
	gs.mu.Lock()
	if members, ok := gs.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(gs.groups, group)
		}
	}
	gs.mu.Unlock()

	ms := gm.memberShardFor(connID)
	ms.mu.Lock()
	if groups, ok := ms.groups[connID]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(ms.groups, connID)
		}
	}
	ms.mu.Unlock()
}

// MembersOf returns a point-in-time snapshot of the group's member ids. The
// snapshot is taken under the group's shard lock and then owned by the
// caller, so long-running fan-out delivery never holds the lock and never
// blocks concurrent joins or leaves. A missing group yields an empty slice.
func (gm *GroupManager) MembersOf(group string) []string {
	gs := gm.groupShardFor(group)
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	members := gs.groups[group]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// GroupsOf returns a snapshot of the group names the connection currently
// belongs to.
func (gm *GroupManager) GroupsOf(connID string) []string {
	ms := gm.memberShardFor(connID)
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	groups := ms.groups[connID]
	out := make([]string, 0, len(groups))
	for g := range groups {
		out = append(out, g)
	}
	return out
}

// GroupCount returns the number of groups that currently have members.
func (gm *GroupManager) GroupCount() int {
	n := 0
	for _, gs := range gm.groups {
		gs.mu.RLock()
		n += len(gs.groups)
		gs.mu.RUnlock()
	}
	return n
}

// RemoveConnectionEverywhere removes the connection from every group it
// belongs to, garbage-collecting groups left empty. Called by the registry's
// unregister cascade; safe to call for ids that were never in any group.
func (gm *GroupManager) RemoveConnectionEverywhere(connID string) {
	for _, group := range gm.GroupsOf(connID) {
		gm.Leave(connID, group)
	}
}
