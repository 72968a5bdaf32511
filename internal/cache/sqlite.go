package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
)

// SQLiteCache implements Cache using modernc.org/sqlite. Default driver:
// the CLI runs as a single binary against a local file.
type SQLiteCache struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS enrichment_cache (
	key        TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	provider   TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

// NewSQLite opens (creating if needed) a SQLite cache at the given path and
// configures WAL mode.
func NewSQLite(dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cache: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cache: sqlite exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "cache: sqlite migrate")
	}
	return &SQLiteCache{db: db}, nil
}

func (s *SQLiteCache) Lookup(ctx context.Context, key identity.Key) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, payload, provider, fetched_at, expires_at FROM enrichment_cache
		 WHERE key = ? AND expires_at > ?`,
		string(key), time.Now().UTC(),
	)

	var e Entry
	var k, payloadJSON string
	err := row.Scan(&k, &payloadJSON, &e.Provider, &e.FetchedAt, &e.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: sqlite lookup")
	}
	e.Key = identity.Key(k)
	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return nil, eris.Wrap(err, "cache: sqlite unmarshal payload")
	}
	return &e, nil
}

// Store upserts in a single statement so readers never observe a partial
// write and a concurrent writer for the same key cannot interleave updates.
func (s *SQLiteCache) Store(ctx context.Context, key identity.Key, payload model.EnrichmentPayload, provider string, ttl time.Duration) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "cache: sqlite marshal payload")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (key, payload, provider, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			provider   = excluded.provider,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		string(key), string(payloadJSON), provider, now, now.Add(ttl),
	)
	return eris.Wrap(err, "cache: sqlite store")
}

func (s *SQLiteCache) Invalidate(ctx context.Context, key identity.Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE key = ?`, string(key),
	)
	return eris.Wrap(err, "cache: sqlite invalidate")
}

func (s *SQLiteCache) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM enrichment_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "cache: sqlite purge")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "cache: sqlite purge rows affected")
	}
	return int(n), nil
}

func (s *SQLiteCache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0) FROM enrichment_cache`,
		time.Now().UTC(),
	).Scan(&st.Total, &st.Expired)
	if err != nil {
		return Stats{}, eris.Wrap(err, "cache: sqlite stats")
	}
	return st, nil
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}
