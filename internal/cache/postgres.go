package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the cache uses, satisfied by
// pgxmock.PgxPoolIface in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresCache implements Cache on a shared Postgres instance, for
// deployments where multiple operators run against the same cache.
type PostgresCache struct {
	pool Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	provider   TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

// NewPostgres creates a PostgresCache with a connection pool and runs the
// schema migration.
func NewPostgres(ctx context.Context, connString string) (*PostgresCache, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "cache: postgres parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "cache: postgres create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "cache: postgres ping")
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "cache: postgres migrate")
	}
	return &PostgresCache{pool: pool}, nil
}

func (p *PostgresCache) Lookup(ctx context.Context, key identity.Key) (*Entry, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT key, payload, provider, fetched_at, expires_at FROM enrichment_cache
		 WHERE key = $1 AND expires_at > now()`,
		string(key),
	)

	var e Entry
	var k string
	var payloadJSON []byte
	err := row.Scan(&k, &payloadJSON, &e.Provider, &e.FetchedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: postgres lookup")
	}
	e.Key = identity.Key(k)
	if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
		return nil, eris.Wrap(err, "cache: postgres unmarshal payload")
	}
	return &e, nil
}

func (p *PostgresCache) Store(ctx context.Context, key identity.Key, payload model.EnrichmentPayload, provider string, ttl time.Duration) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "cache: postgres marshal payload")
	}

	now := time.Now().UTC()
	_, err = p.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (key, payload, provider, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
			payload    = excluded.payload,
			provider   = excluded.provider,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		string(key), payloadJSON, provider, now, now.Add(ttl),
	)
	return eris.Wrap(err, "cache: postgres store")
}

func (p *PostgresCache) Invalidate(ctx context.Context, key identity.Key) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM enrichment_cache WHERE key = $1`, string(key),
	)
	return eris.Wrap(err, "cache: postgres invalidate")
}

func (p *PostgresCache) PurgeExpired(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: postgres purge")
	}
	return int(tag.RowsAffected()), nil
}

func (p *PostgresCache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at <= now()) FROM enrichment_cache`,
	).Scan(&st.Total, &st.Expired)
	if err != nil {
		return Stats{}, eris.Wrap(err, "cache: postgres stats")
	}
	return st, nil
}

func (p *PostgresCache) Close() error {
	p.pool.Close()
	return nil
}
