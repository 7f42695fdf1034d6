package main

import (
	"v4corner/internal/config"
	"v4corner/internal/db"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.Init(cfg); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DBDriver).Msg("数据库迁移完成")
			return nil
		},
	}
}
