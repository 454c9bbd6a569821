package main

import (
	"github.com/spf13/cobra"

	"github.com/kandev/serverpool/internal/common/config"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "serverpool",
	Short: "Local HTTP server pool",
	Long: `serverpool creates, lists and disposes small HTTP servers, each on its own
loopback port. Every server serves a page with a ping button; pings are
reported as activity on the control surface.

Control API:  GET/POST/DELETE /api/v1/servers, DELETE /api/v1/servers/:id
Gateway:      GET /ws (server.stat, server.setup, server.dispose, server.clearAll)`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Directory containing config.yaml")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfig() (*config.Config, error) {
	if configDir != "" {
		return config.LoadWithPath(configDir)
	}
	return config.Load()
}
