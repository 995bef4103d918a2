package hub

import (
	"encoding/json"
	"fmt"
)

// Origin records where an invocation entered this process. It controls the
// anti-echo invariant: only locally-originated invocations are ever published
// to the backplane.
type Origin string

const (
	// OriginLocal marks an invocation produced by a client (or application
	// code) on this process. Eligible for backplane publication.
	OriginLocal Origin = "local-client"

	// OriginBackplane marks an invocation replayed from a peer process via
	// the backplane. Never re-published.
	OriginBackplane Origin = "backplane"
)

// Validate checks that the origin is one of the known values.
func (o Origin) Validate() error {
	switch o {
	case OriginLocal, OriginBackplane:
		return nil
	}
	return fmt.Errorf("invalid origin: %q", string(o))
}

// SelectorKind identifies the addressing mode of an outbound invocation.
type SelectorKind string

const (
	// SelectorConnection targets a single connection by id.
	SelectorConnection SelectorKind = "connection"

	// SelectorGroup targets every current member of a named group.
	SelectorGroup SelectorKind = "group"

	// SelectorAll targets every registered connection on the process.
	SelectorAll SelectorKind = "all"
)

// Validate checks that the selector kind is one of the known values.
func (k SelectorKind) Validate() error {
	switch k {
	case SelectorConnection, SelectorGroup, SelectorAll:
		return nil
	}
	return fmt.Errorf("invalid selector kind: %q", string(k))
}

// Selector describes the destination of an outbound invocation.
type Selector struct {
	Kind SelectorKind `json:"kind"`

	// Value is the connection id for SelectorConnection and the group name
	// for SelectorGroup. Unused for SelectorAll.
	Value string `json:"value,omitempty"`

	// Exclude lists connection ids to skip during group or all fan-out
	// (set-difference addressing, e.g. "everyone in the room but the sender").
	Exclude []string `json:"exclude,omitempty"`
}

// Validate checks the selector for structural correctness.
func (s Selector) Validate() error {
	if err := s.Kind.Validate(); err != nil {
		return err
	}
	if (s.Kind == SelectorConnection || s.Kind == SelectorGroup) && s.Value == "" {
		return fmt.Errorf("selector kind %q requires a value", string(s.Kind))
	}
	return nil
}

// excludes reports whether the given connection id is on the exclusion list.
// Exclusion lists are expected to be short (typically just the sender), so a
// linear scan is fine.
func (s Selector) excludes(connID string) bool {
	for _, id := range s.Exclude {
		if id == connID {
			return true
		}
	}
	return false
}

// Invocation is a single request to execute a named target. Invocations are
// created per call, consumed synchronously by the Dispatcher, and never
// persisted.
type Invocation struct {
	// Target is the method name / route being invoked.
	Target string `json:"target"`

	// Args is the ordered sequence of opaque argument payloads. The hub
	// never inspects them; handlers decode what they need.
	Args []json.RawMessage `json:"args"`

	// Origin is local-client or backplane (see Origin).
	Origin Origin `json:"origin"`

	// Selector is the outbound destination. Unused for inbound dispatch.
	Selector Selector `json:"selector"`
}

// Validate checks the invocation for structural correctness.
// Inbound invocations have no selector, so only target and origin are checked
// unless a selector kind is set.
func (inv *Invocation) Validate() error {
	if inv.Target == "" {
		return fmt.Errorf("invocation target cannot be empty")
	}
	if err := inv.Origin.Validate(); err != nil {
		return err
	}
	if inv.Selector.Kind != "" {
		if err := inv.Selector.Validate(); err != nil {
			return err
		}
	}
	return nil
}
