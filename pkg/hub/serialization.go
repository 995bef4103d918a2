package hub

import (
	"encoding/json"
	"fmt"
)

// Wire formats.
//
// Two encodings leave the dispatcher: the delivery frame pushed to client
// transports, and the backplane envelope exchanged between peer processes.
// Both are JSON; the envelope carries the selector and origin so a peer can
// route the invocation and honour the anti-echo invariant.

// Delivery is the frame a client transport receives for an outbound
// invocation: the target name and its arguments, nothing else. Selector and
// origin are server-side routing concerns and are stripped.
type Delivery struct {
	Target string            `json:"target"`
	Args   []json.RawMessage `json:"args"`
}

// EncodeDelivery encodes the client-facing delivery frame for an invocation.
func EncodeDelivery(inv *Invocation) ([]byte, error) {
	data, err := json.Marshal(Delivery{Target: inv.Target, Args: inv.Args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery frame: %w", err)
	}
	return data, nil
}

// envelope is the backplane wire format. Kept unexported: peers exchange it
// only through EncodeEnvelope/DecodeEnvelope. The sender field carries the
// publishing node's id so a node subscribed to its own channel can suppress
// the copy of a broadcast it already delivered locally.
type envelope struct {
	Target   string            `json:"target"`
	Args     []json.RawMessage `json:"args"`
	Selector Selector          `json:"selector"`
	Origin   Origin            `json:"origin"`
	Sender   string            `json:"sender,omitempty"`
}

// EncodeEnvelope encodes an invocation for backplane publication, stamped
// with the publishing node's sender id. The envelope always records origin
// as backplane: by the time a peer decodes it, that is what the invocation
// is.
func EncodeEnvelope(inv *Invocation, sender string) ([]byte, error) {
	if err := inv.Selector.Validate(); err != nil {
		return nil, fmt.Errorf("cannot encode envelope: %v", err)
	}

	data, err := json.Marshal(envelope{
		Target:   inv.Target,
		Args:     inv.Args,
		Selector: inv.Selector,
		Origin:   OriginBackplane,
		Sender:   sender,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope decodes a backplane message into an invocation plus the
// sender id it was stamped with. The origin is forced to OriginBackplane
// regardless of what the message claims, so a malformed or malicious peer
// can never cause an echo loop.
func DecodeEnvelope(data []byte) (*Invocation, string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("failed to decode envelope: %w", err)
	}

	inv := &Invocation{
		Target:   env.Target,
		Args:     env.Args,
		Origin:   OriginBackplane,
		Selector: env.Selector,
	}
	if err := inv.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid envelope: %v", err)
	}
	return inv, env.Sender, nil
}
