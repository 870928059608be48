package cmd

import (
	"fmt"

	"github.com/nexi-lab/nexuskernel/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nexuskernel",
	Short: "nexuskernel virtual filesystem kernel",
	Long: `nexuskernel is a content-addressed virtual filesystem kernel: CAS
storage, a replicated metadata store, a path router, a ReBAC engine, and
an event/lock bus behind one façade, mountable over FUSE or served as a
JSON-RPC API.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default: built-in defaults)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the --config flag (if set) over NewDefault, then layers
// environment variables on top, matching the teacher's own
// file-then-env configuration precedence.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	cfg := config.NewDefault()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
