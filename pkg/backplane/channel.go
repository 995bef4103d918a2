package backplane

import (
	"fmt"
	"regexp"
)

// Redis channel pattern helpers
//
// All Pub/Sub channels are namespaced by instance name so multiple Roost
// deployments can safely coexist on a single Redis server.
//
// Channel pattern: roost:{instance_name}:invocations

const (
	// MaxInstanceNameLength is the maximum length for an instance name
	// (DNS-compatible).
	MaxInstanceNameLength = 63
)

// instanceNamePattern is the regex for valid instance names: lowercase
// alphanumeric with hyphens, not at start or end.
var instanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks if an instance name is valid according to DNS
// naming rules.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}

	if !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// InvocationChannel returns the Pub/Sub channel for relayed invocations.
// Pattern: roost:{instance_name}:invocations
func InvocationChannel(instanceName string) string {
	return fmt.Sprintf("roost:%s:invocations", instanceName)
}
