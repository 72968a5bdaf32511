// Package sync publishes a finished batch run to its downstream targets: a
// snapshot workbook, Salesforce, and a Notion lead database. Targets are
// independent and run concurrently; one failing target does not stop the
// others.
package sync

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Syncer publishes the accepted records of a run to one target.
type Syncer interface {
	Name() string
	Publish(ctx context.Context, run *model.BatchRun, records []model.LeadRecord) error
}

// Fanout publishes to every target concurrently and returns the first error
// after all targets finish. Each target gets the full record set.
func Fanout(ctx context.Context, run *model.BatchRun, records []model.LeadRecord, targets []Syncer) error {
	if len(targets) == 0 {
		zap.L().Info("no sync targets configured", zap.String("run_id", run.ID))
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			if err := t.Publish(ctx, run, records); err != nil {
				zap.L().Error("sync target failed",
					zap.String("target", t.Name()),
					zap.String("run_id", run.ID),
					zap.Error(err),
				)
				return eris.Wrapf(err, "sync: publish to %s", t.Name())
			}
			zap.L().Info("sync target complete",
				zap.String("target", t.Name()),
				zap.Int("records", len(records)),
			)
			return nil
		})
	}
	return g.Wait()
}
