// Package cache persists enrichment results keyed by lead identity, with a
// per-entry TTL. The cache is the single source of truth for "do we need to
// call a provider": the orchestrator never fetches a key with a valid entry.
package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Entry is one cached enrichment result. An entry past its TTL is treated as
// absent by Lookup, never served stale.
type Entry struct {
	Key       identity.Key            `json:"key"`
	Payload   model.EnrichmentPayload `json:"payload"`
	Provider  string                  `json:"provider"`
	FetchedAt time.Time               `json:"fetched_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// Stats summarizes cache contents for the status command.
type Stats struct {
	Total   int `json:"total"`
	Expired int `json:"expired"`
}

// Cache is the persistence contract for enrichment results. Store is an
// atomic upsert: concurrent readers never observe a half-written entry, and
// a failed fetch never corrupts or clears an existing valid entry.
type Cache interface {
	// Lookup returns the entry for key, or nil when missing or expired.
	Lookup(ctx context.Context, key identity.Key) (*Entry, error)

	// Store atomically upserts the entry for key with the given TTL.
	Store(ctx context.Context, key identity.Key, payload model.EnrichmentPayload, provider string, ttl time.Duration) error

	// Invalidate evicts the entry for key. Used when a provider reports the
	// subject no longer exists. Evicting an absent key is not an error.
	Invalidate(ctx context.Context, key identity.Key) error

	// PurgeExpired deletes entries past their TTL, returning the count.
	PurgeExpired(ctx context.Context) (int, error)

	// Stats reports entry counts.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Open creates a Cache for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Cache, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, eris.Errorf("cache: unknown driver %q", driver)
	}
}
