package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/ingest"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/scorer"
	syncpkg "github.com/sells-group/outreach-cli/internal/sync"
	"github.com/sells-group/outreach-cli/internal/validate"
)

var (
	runFile          string
	runNoSync        bool
	runMaxFailRate   float64
	runMaxRejectRate float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline over a lead file",
	Long: `Ingests a CSV or XLSX lead list, enriches each unique lead through the
configured providers (cache first, then Hunter and Apollo in precedence
order), validates and dedupes, scores against the rule set, and publishes
the result to every enabled sync target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		orch, err := buildOrchestrator(c)
		if err != nil {
			return err
		}

		var targets []syncpkg.Syncer
		if !runNoSync {
			targets, err = initSyncers()
			if err != nil {
				return err
			}
		}

		runner, err := buildRunner(orch, targets)
		if err != nil {
			return err
		}

		result, err := runner.RunFile(ctx, runFile)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run finished",
			zap.String("run_id", result.Run.ID),
			zap.Int("accepted", len(result.Accepted)),
			zap.Int("rejected", len(result.Rejected)),
			zap.Strings("breaches", result.Breaches),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.Snapshot)
	},
}

// buildRunner loads the mapping and rule set and assembles the pipeline.
// A nil enricher yields a runner that only maps, validates, and scores.
func buildRunner(enricher pipeline.Enricher, targets []syncpkg.Syncer) (*pipeline.Runner, error) {
	mapping, err := ingest.LoadMapping(cfg.Mapping.Path)
	if err != nil {
		return nil, err
	}
	rules, err := scorer.LoadRuleSet(cfg.Scoring.RulesPath)
	if err != nil {
		return nil, err
	}

	validation := validate.Config{
		RequiredFields:     cfg.Validation.RequiredFields,
		BlacklistDomains:   cfg.Validation.BlacklistDomains,
		MinEmailConfidence: cfg.Validation.MinEmailConfidence,
	}
	thresholds := monitoring.Thresholds{
		MaxFailRate:   runMaxFailRate,
		MaxRejectRate: runMaxRejectRate,
	}

	return pipeline.New(mapping, enricher, validation, rules, targets, thresholds), nil
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "lead file to process, CSV or XLSX (required)")
	runCmd.Flags().BoolVar(&runNoSync, "no-sync", false, "skip publishing to sync targets")
	runCmd.Flags().Float64Var(&runMaxFailRate, "max-fail-rate", 0, "warn when the enrichment failure rate exceeds this fraction (0 disables)")
	runCmd.Flags().Float64Var(&runMaxRejectRate, "max-reject-rate", 0, "warn when the validation reject rate exceeds this fraction (0 disables)")
	_ = runCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(runCmd)
}
