package main

import (
	"encoding/json"
	"runtime"
	"v4corner/internal/config"
	"v4corner/internal/db"
	"v4corner/internal/services"

	"github.com/spf13/cobra"
)

func newReconcileCommand(cfg *config.Config) *cobra.Command {
	var parallelism int

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount like and favorite counters of every post",
		Long: `Walks every post in id order, recounts like rows and distinct
favoriting users, and corrects drifted counters. Prints a JSON report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.Init(cfg); err != nil {
				return err
			}
			reconciler := services.NewReconciler(db.DB, cfg.ReconcileHour)
			report, err := reconciler.ReconcileAll(cmd.Context(), parallelism)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", runtime.NumCPU(), "posts checked concurrently")
	return cmd
}
