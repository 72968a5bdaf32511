package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncFile string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish a lead file to the sync targets without enrichment",
	Long: `Maps, validates, and scores a lead file, then publishes the accepted
records to every enabled sync target. No provider is called; use this to
re-push a previously enriched export after a failed publish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		targets, err := initSyncers()
		if err != nil {
			return err
		}

		runner, err := buildRunner(nil, targets)
		if err != nil {
			return err
		}

		result, err := runner.RunFile(ctx, syncFile)
		if err != nil {
			return eris.Wrap(err, "sync run")
		}

		zap.L().Info("sync finished",
			zap.String("run_id", result.Run.ID),
			zap.Int("published", result.Run.Stats.Synced),
			zap.Int("rejected", len(result.Rejected)),
		)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncFile, "file", "", "lead file to publish, CSV or XLSX (required)")
	_ = syncCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(syncCmd)
}
