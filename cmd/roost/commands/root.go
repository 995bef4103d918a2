package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roost",
	Short: "Roost - Real-time connection hub with Redis scale-out",
	Long: `Roost is a real-time connection hub: WebSocket clients register,
join named groups, invoke server-side handlers, and receive targeted
broadcasts.

Multiple roost processes subscribed to the same Redis channel replicate
broadcasts to each other, so a group can span the whole fleet while each
process only manages its own sockets.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
