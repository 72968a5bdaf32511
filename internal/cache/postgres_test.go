package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/identity"
)

// newMockPostgresCache creates a PostgresCache backed by pgxmock.
func newMockPostgresCache(t *testing.T) (*PostgresCache, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresCache{pool: mock}, mock
}

func TestPostgresCache_Lookup_Missing(t *testing.T) {
	c, mock := newMockPostgresCache(t)

	mock.ExpectQuery(`SELECT key, payload, provider, fetched_at, expires_at FROM enrichment_cache`).
		WithArgs("acme.com|jane doe").
		WillReturnError(pgx.ErrNoRows)

	e, err := c.Lookup(context.Background(), identity.Key("acme.com|jane doe"))
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Lookup_Hit(t *testing.T) {
	c, mock := newMockPostgresCache(t)

	payloadJSON, err := json.Marshal(testPayload)
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT key, payload, provider, fetched_at, expires_at FROM enrichment_cache`).
		WithArgs("acme.com|jane doe").
		WillReturnRows(pgxmock.NewRows([]string{"key", "payload", "provider", "fetched_at", "expires_at"}).
			AddRow("acme.com|jane doe", payloadJSON, "hunter", now, now.Add(time.Hour)))

	e, err := c.Lookup(context.Background(), identity.Key("acme.com|jane doe"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, testPayload, e.Payload)
	assert.Equal(t, "hunter", e.Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Store_Upsert(t *testing.T) {
	c, mock := newMockPostgresCache(t)

	mock.ExpectExec(`INSERT INTO enrichment_cache .* ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("acme.com|jane doe", pgxmock.AnyArg(), "hunter", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := c.Store(context.Background(), identity.Key("acme.com|jane doe"), testPayload, "hunter", time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Invalidate(t *testing.T) {
	c, mock := newMockPostgresCache(t)

	mock.ExpectExec(`DELETE FROM enrichment_cache WHERE key = \$1`).
		WithArgs("acme.com|jane doe").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := c.Invalidate(context.Background(), identity.Key("acme.com|jane doe"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_PurgeExpired(t *testing.T) {
	c, mock := newMockPostgresCache(t)

	mock.ExpectExec(`DELETE FROM enrichment_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := c.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCache_Stats(t *testing.T) {
	c, mock := newMockPostgresCache(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "expired"}).AddRow(10, 2))

	st, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 10, Expired: 2}, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}
