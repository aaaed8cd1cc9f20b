package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap-cli/internal/model"
)

// newMockPostgres creates a PostgresBackend backed by pgxmock for unit testing.
func newMockPostgres(t *testing.T) (*PostgresBackend, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresBackend{pool: mock}, mock
}

func TestPostgres_Migrate(t *testing.T) {
	b, mock := newMockPostgres(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS marketmap_kv`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, b.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_NotFound(t *testing.T) {
	b, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT value FROM marketmap_kv WHERE bucket = \$1 AND key = \$2`).
		WithArgs(BucketGeocode, "Gouda|Markt").
		WillReturnError(pgx.ErrNoRows)

	got, err := New(b).Geocode(context.Background(), "Gouda|Markt")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_Found(t *testing.T) {
	b, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT value FROM marketmap_kv`).
		WithArgs(BucketGeocode, "Gouda|Markt").
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow([]byte(`{"lat":52.01,"lng":4.71}`)))

	got, err := New(b).Geocode(context.Background(), "Gouda|Markt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.Coordinate{Lat: 52.01, Lng: 4.71}, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Put_Upserts(t *testing.T) {
	b, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO marketmap_kv .* ON CONFLICT \(bucket, key\) DO UPDATE`).
		WithArgs(BucketLedger, "https://a.nl", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := New(b).PutLedgerEntry(context.Background(), "https://a.nl", model.LedgerEntry{File: "a.html", Status: model.FetchOK})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	b, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT key, value FROM marketmap_kv WHERE bucket = \$1 ORDER BY seq`).
		WithArgs(BucketLedger).
		WillReturnRows(pgxmock.NewRows([]string{"key", "value"}).
			AddRow("https://b.nl", []byte(`{"file":"b.html","markets":1,"downloaded":"2024-05-01","status":"ok"}`)).
			AddRow("https://a.nl", []byte(`{"file":"a.html","markets":2,"downloaded":"2024-05-01","status":"404"}`)))

	recs, err := New(b).Ledger(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://b.nl", recs[0].URL)
	assert.Equal(t, model.FetchNotFound, recs[1].Entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Put_Error(t *testing.T) {
	b, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO marketmap_kv`).
		WillReturnError(assert.AnError)

	err := b.Put(context.Background(), BucketRuns, "r1", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: put runs/r1")
}
