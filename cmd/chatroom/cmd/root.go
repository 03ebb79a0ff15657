package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatroom",
	Short: "Real-time chat rooms joined by secret key",
	Long: `chatroom serves browser chat rooms over WebSocket. Anyone who knows a
room's secret key can join it; rooms exist only in memory and disappear a
short while after the last member leaves.

Use "chatroom [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
