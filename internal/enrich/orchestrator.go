// Package enrich coordinates cache lookups and provider calls for a batch
// run. It guarantees at most one call per provider per unique identity key
// per run, writes fetched payloads through to the cache before applying
// them, and cascades across providers in configured precedence order.
package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
)

// Config tunes orchestration.
type Config struct {
	// MaxBatchSize caps how many keys go to a provider in one sub-batch.
	MaxBatchSize int

	// RunCap limits successful provider lookups per run (0 = unlimited).
	// Once reached, remaining cache misses are skipped, not failed.
	RunCap int
}

// Orchestrator enriches batch runs.
type Orchestrator struct {
	cache     cache.Cache
	client    *provider.Client
	providers []provider.Provider // precedence order: earlier wins conflicts
	ttls      map[string]time.Duration
	cfg       Config
}

// New creates an Orchestrator. providers must be in precedence order; ttls
// maps provider name to cache TTL for entries it produces.
func New(c cache.Cache, client *provider.Client, providers []provider.Provider, ttls map[string]time.Duration, cfg Config) *Orchestrator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 25
	}
	return &Orchestrator{
		cache:     c,
		client:    client,
		providers: providers,
		ttls:      ttls,
		cfg:       cfg,
	}
}

// keyState tracks one coalesced identity through enrichment. All records
// sharing the key receive the same outcome.
type keyState struct {
	key     identity.Key
	records []int // indices into run.Records, input order

	payload    model.EnrichmentPayload
	providedBy string
	enrichedAt time.Time

	cacheHit bool
	fetched  bool // at least one successful provider call this run
	settled  bool // no further providers should be tried
	skipped  bool
	kind     model.ErrorKind
	reason   string
}

// Enrich processes every record in the run: cache hits are reused, misses
// are fetched in provider-sized sub-batches, terminal failures are recorded
// on the affected records without aborting the batch. Record-level failures
// never surface as an error; only infrastructure misuse does.
func (o *Orchestrator) Enrich(ctx context.Context, run *model.BatchRun) error {
	states, order := o.coalesce(run)
	zap.L().Info("enrichment starting",
		zap.String("run_id", run.ID),
		zap.Int("records", len(run.Records)),
		zap.Int("unique_keys", len(order)),
	)

	pending := o.partitionByCache(ctx, run, states, order)

	successes := 0
	for _, p := range o.providers {
		if len(pending) == 0 {
			break
		}
		pending = o.dispatch(ctx, run, p, pending, &successes)
	}

	o.apply(run, states, order)
	return nil
}

// coalesce groups record indices by identity key, preserving first-seen
// order so output ordering stays stable.
func (o *Orchestrator) coalesce(run *model.BatchRun) (map[identity.Key]*keyState, []identity.Key) {
	states := make(map[identity.Key]*keyState)
	var order []identity.Key
	for i := range run.Records {
		key := identity.Normalize(run.Records[i])
		st, ok := states[key]
		if !ok {
			st = &keyState{key: key}
			states[key] = st
			order = append(order, key)
		}
		st.records = append(st.records, i)
	}
	return states, order
}

// partitionByCache resolves cache hits and returns the miss states in
// first-seen order. A valid cache entry always short-circuits the provider,
// even when its payload is partial.
func (o *Orchestrator) partitionByCache(ctx context.Context, run *model.BatchRun, states map[identity.Key]*keyState, order []identity.Key) []*keyState {
	var misses []*keyState
	for _, key := range order {
		st := states[key]
		entry, err := o.cache.Lookup(ctx, key)
		if err != nil {
			// Cache trouble degrades to a miss; it must not abort the run.
			zap.L().Warn("cache lookup failed, treating as miss",
				zap.String("key", string(key)), zap.Error(err))
		}
		if entry != nil {
			st.cacheHit = true
			st.settled = true
			st.payload = entry.Payload
			st.providedBy = entry.Provider
			st.enrichedAt = entry.FetchedAt
			continue
		}
		misses = append(misses, st)
	}
	return misses
}

// dispatch sends pending keys to one provider in sub-batches and returns
// the states that should cascade to the next provider: terminal failures
// (except "gone") and incomplete payloads.
func (o *Orchestrator) dispatch(ctx context.Context, run *model.BatchRun, p provider.Provider, pending []*keyState, successes *int) []*keyState {
	var carry []*keyState
	ttl := o.ttls[p.Name()]

	for start := 0; start < len(pending); {
		// Cancellation is honored between sub-batches: an in-flight batch
		// completes, but nothing further is dispatched.
		if ctx.Err() != nil {
			o.skip(pending[start:], "run canceled before dispatch")
			return nil
		}

		end := min(start+o.cfg.MaxBatchSize, len(pending))

		// The cap bounds paid lookups, so a sub-batch never carries more
		// keys than the remaining budget allows.
		if o.cfg.RunCap > 0 {
			remaining := o.cfg.RunCap - *successes
			if remaining <= 0 {
				o.skip(pending[start:], "enrichment cap reached")
				return carry
			}
			end = min(end, start+remaining)
		}
		chunk := pending[start:end]
		start = end

		queries := make([]provider.Query, len(chunk))
		for i, st := range chunk {
			rec := run.Records[st.records[0]]
			queries[i] = provider.Query{
				Key:       st.key,
				FirstName: rec.FirstName,
				LastName:  rec.LastName,
				Company:   rec.Company,
				Domain:    domainOf(rec),
			}
		}

		results := o.client.Fetch(ctx, queries, p)

		for _, st := range chunk {
			res := results[st.key]
			run.Stats.ProviderCalls++
			run.Stats.ProviderAttempts += res.Attempts

			switch {
			case res.Err == nil:
				*successes++
				st.fetched = true
				st.payload.FillFrom(res.Payload)
				if st.providedBy == "" {
					st.providedBy = p.Name()
				}
				st.enrichedAt = time.Now().UTC()
				st.kind, st.reason = "", ""

				// Write through before application so a crash after the
				// call still preserves the fetched data for the next run.
				if err := o.cache.Store(ctx, st.key, st.payload, p.Name(), ttl); err != nil {
					zap.L().Warn("cache write-through failed",
						zap.String("key", string(st.key)), zap.Error(err))
				}

				if st.payload.Complete() {
					st.settled = true
				} else {
					carry = append(carry, st) // let a lower-precedence provider fill gaps
				}

			case res.Gone:
				// Subject no longer exists: evict and stop cascading.
				if err := o.cache.Invalidate(ctx, st.key); err != nil {
					zap.L().Warn("cache invalidate failed",
						zap.String("key", string(st.key)), zap.Error(err))
				}
				st.settled = true
				st.kind = res.Kind
				st.reason = res.Err.Error()

			default:
				st.kind = res.Kind
				st.reason = res.Err.Error()
				carry = append(carry, st) // next provider may still know this lead
			}
		}
	}

	return carry
}

func (o *Orchestrator) skip(states []*keyState, reason string) {
	for _, st := range states {
		if st.settled || st.fetched {
			continue
		}
		st.skipped = true
		st.settled = true
		st.reason = reason
	}
}

// apply copies each key's outcome onto every record sharing it and tallies
// run stats.
func (o *Orchestrator) apply(run *model.BatchRun, states map[identity.Key]*keyState, order []identity.Key) {
	for _, key := range order {
		st := states[key]

		var status model.EnrichmentStatus
		switch {
		case st.cacheHit:
			status = model.EnrichmentCacheHit
		case st.fetched:
			status = model.EnrichmentComplete
		case st.skipped:
			status = model.EnrichmentSkipped
		default:
			status = model.EnrichmentFailed
			if st.kind == "" {
				st.kind = model.ErrKindPermanentProvider
			}
		}

		for _, i := range st.records {
			rec := &run.Records[i]
			rec.Status = status
			rec.Enrichment = st.payload
			rec.EnrichedAt = st.enrichedAt
			rec.EnrichedBy = st.providedBy
			rec.FailureKind = st.kind
			rec.FailureReason = st.reason

			switch status {
			case model.EnrichmentCacheHit:
				run.Stats.CacheHits++
			case model.EnrichmentComplete:
				run.Stats.Enriched++
			case model.EnrichmentSkipped:
				run.Stats.Skipped++
			case model.EnrichmentFailed:
				run.Stats.Failed++
			}
		}
	}
}

func domainOf(rec model.LeadRecord) string {
	if rec.Domain != "" {
		return rec.Domain
	}
	email := rec.RawEmail
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
