package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-01-01)", rootCmd.Version)
}

func TestServeRejectsMissingConfig(t *testing.T) {
	rootCmd.SetArgs([]string{"serve", "--config", "/nonexistent/roost.yml"})
	err := rootCmd.Execute()
	assert.Error(t, err)
}
