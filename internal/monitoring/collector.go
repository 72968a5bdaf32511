// Package monitoring summarizes run outcomes for operator-facing reporting.
package monitoring

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// RunSnapshot holds a point-in-time view of one batch run's outcome.
type RunSnapshot struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`

	Input            int `json:"input"`
	Enriched         int `json:"enriched"`
	CacheHits        int `json:"cache_hits"`
	Failed           int `json:"failed"`
	Skipped          int `json:"skipped"`
	Deduped          int `json:"deduped"`
	Rejected         int `json:"rejected"`
	Scored           int `json:"scored"`
	ProviderCalls    int `json:"provider_calls"`
	ProviderAttempts int `json:"provider_attempts"`

	FailRate     float64 `json:"fail_rate"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	CollectedAt time.Time     `json:"collected_at"`
}

// Collect derives a snapshot from a finished run.
func Collect(run *model.BatchRun) *RunSnapshot {
	s := run.Stats
	snap := &RunSnapshot{
		RunID:            run.ID,
		Source:           run.Source,
		Input:            s.Input,
		Enriched:         s.Enriched,
		CacheHits:        s.CacheHits,
		Failed:           s.Failed,
		Skipped:          s.Skipped,
		Deduped:          s.Deduped,
		Rejected:         s.Rejected,
		Scored:           s.Scored,
		ProviderCalls:    s.ProviderCalls,
		ProviderAttempts: s.ProviderAttempts,
		StartedAt:        run.StartedAt,
		Duration:         time.Since(run.StartedAt),
		CollectedAt:      time.Now().UTC(),
	}

	attempted := s.Enriched + s.CacheHits + s.Failed
	if attempted > 0 {
		snap.FailRate = float64(s.Failed) / float64(attempted)
		snap.CacheHitRate = float64(s.CacheHits) / float64(attempted)
	}
	return snap
}

// Thresholds are the health limits a run is checked against.
type Thresholds struct {
	MaxFailRate   float64 // 0 disables
	MaxRejectRate float64 // 0 disables
}

// Check evaluates a snapshot against thresholds and logs each breach.
// It returns the breach messages so callers can surface them.
func Check(snap *RunSnapshot, th Thresholds) []string {
	var breaches []string

	if th.MaxFailRate > 0 && snap.FailRate > th.MaxFailRate {
		breaches = append(breaches, "enrichment failure rate above threshold")
	}
	if th.MaxRejectRate > 0 && snap.Input > 0 {
		rejectRate := float64(snap.Rejected) / float64(snap.Input)
		if rejectRate > th.MaxRejectRate {
			breaches = append(breaches, "validation reject rate above threshold")
		}
	}

	log := zap.L().With(zap.String("run_id", snap.RunID))
	for _, b := range breaches {
		log.Warn("run health check failed",
			zap.String("breach", b),
			zap.Float64("fail_rate", snap.FailRate),
			zap.Int("rejected", snap.Rejected),
		)
	}
	return breaches
}
