// Package pipeline sequences a batch run end to end: map raw rows onto lead
// records, enrich, validate and dedupe, score, and hand the final set to the
// sync targets. Only configuration errors abort a run; record-level failures
// ride along in the output with their reasons.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/ingest"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/scorer"
	"github.com/sells-group/outreach-cli/internal/sync"
	"github.com/sells-group/outreach-cli/internal/validate"
)

// Enricher is the orchestration step; satisfied by *enrich.Orchestrator.
type Enricher interface {
	Enrich(ctx context.Context, run *model.BatchRun) error
}

// Runner wires the pipeline stages together.
type Runner struct {
	mapping    *ingest.Mapping
	enricher   Enricher
	validation validate.Config
	rules      *scorer.RuleSet
	targets    []sync.Syncer
	thresholds monitoring.Thresholds
}

// New creates a Runner. mapping and rules must already be loaded and
// validated; a nil enricher skips enrichment (useful for rescoring).
func New(mapping *ingest.Mapping, enricher Enricher, validation validate.Config, rules *scorer.RuleSet, targets []sync.Syncer, thresholds monitoring.Thresholds) *Runner {
	return &Runner{
		mapping:    mapping,
		enricher:   enricher,
		validation: validation,
		rules:      rules,
		targets:    targets,
		thresholds: thresholds,
	}
}

// Result is the final output of a run.
type Result struct {
	Run      *model.BatchRun
	Accepted []model.LeadRecord
	Rejected []model.RejectedRecord
	Snapshot *monitoring.RunSnapshot
	Breaches []string
}

// Run executes the pipeline over raw rows from one source. The returned
// error is always a run-level failure (configuration or sync); individual
// records never abort the run.
func (r *Runner) Run(ctx context.Context, source string, header []string, rows [][]string) (*Result, error) {
	if r.rules == nil {
		return nil, eris.New("pipeline: no rule set loaded")
	}
	if r.mapping == nil {
		return nil, eris.New("pipeline: no field mapping loaded")
	}

	records := r.mapping.MapRows(source, header, rows)
	run := model.NewBatchRun(source, records)

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("source", source))
	log.Info("run starting", zap.Int("rows", len(rows)))
	started := time.Now()

	if r.enricher != nil {
		if err := r.enricher.Enrich(ctx, run); err != nil {
			return nil, eris.Wrap(err, "pipeline: enrich")
		}
	}

	outcome := validate.Run(run, r.validation)
	accepted := scorer.Apply(run, outcome.Accepted, r.rules)

	snap := monitoring.Collect(run)
	breaches := monitoring.Check(snap, r.thresholds)

	result := &Result{
		Run:      run,
		Accepted: accepted,
		Rejected: outcome.Rejected,
		Snapshot: snap,
		Breaches: breaches,
	}

	if err := sync.Fanout(ctx, run, accepted, r.targets); err != nil {
		// The run itself finished; callers get the records plus the error.
		return result, err
	}
	run.Stats.Synced = len(accepted)

	log.Info("run complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("accepted", len(accepted)),
		zap.Int("rejected", len(outcome.Rejected)),
		zap.Int("enriched", run.Stats.Enriched),
		zap.Int("cache_hits", run.Stats.CacheHits),
		zap.Int("failed", run.Stats.Failed),
		zap.Int("provider_calls", run.Stats.ProviderCalls),
	)
	return result, nil
}

// RunFile reads a tabular source from disk and runs the pipeline over it.
func (r *Runner) RunFile(ctx context.Context, path string) (*Result, error) {
	header, rows, err := ingest.ReadSource(path)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, path, header, rows)
}

var _ Enricher = (*enrich.Orchestrator)(nil)
