package main

import (
	"v4corner/internal/config"
	"v4corner/internal/logging"

	"github.com/spf13/cobra"
)

// NewRootCommand creates the v4corner command with serve, migrate and
// reconcile subcommands. Configuration comes from the environment and .env.
func NewRootCommand() *cobra.Command {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "v4corner",
		Short:         "Comments, likes, favorites and notifications for v4corner blogs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	cmd.AddCommand(newServeCommand(cfg))
	cmd.AddCommand(newMigrateCommand(cfg))
	cmd.AddCommand(newReconcileCommand(cfg))

	return cmd
}
