package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shopper-cli/internal/artifact"
	"github.com/sells-group/shopper-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS artifacts`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("connection refused"))
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveArtifact(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testArtifact(t, 0, model.PositionPriceAsc, "A", "B")

	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs(a.ID, "price_asc", 2, 2, a.CreatedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveArtifact(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveArtifact_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testArtifact(t, 0, model.PositionPriceAsc, "A")

	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs(a.ID, "price_asc", 2, 1, a.CreatedAt, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key value"})

	err := s.SaveArtifact(context.Background(), a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicate), err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetArtifact(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testArtifact(t, 0, model.PositionPriceAsc, "A", "B", "C")
	doc, err := artifact.Marshal(a)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT document FROM artifacts WHERE id = \$1`).
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := s.GetArtifact(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ProductIDs(), got.ProductIDs())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetArtifact_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT document FROM artifacts WHERE id = \$1`).
		WithArgs("batch_missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetArtifact(context.Background(), "batch_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListArtifacts_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, mode, page_size, product_count, created_at FROM artifacts WHERE true AND mode = \$1 ORDER BY created_at DESC, id DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("random", 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "mode", "page_size", "product_count", "created_at"}).
			AddRow("batch_1", "random", 10, 12, baseTime))

	got, err := s.ListArtifacts(context.Background(), ArtifactFilter{Mode: model.PositionRandom, Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ArtifactInfo{ID: "batch_1", Mode: model.PositionRandom, PageSize: 10, ProductCount: 12, CreatedAt: baseTime}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecision_UnknownBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := testDecision("d1", "batch_nope", "A", "A")

	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs("d1", "batch_nope", "A", "claude", "claude-sonnet", rec.Provenance.CreatedAt, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation, Message: "violates foreign key constraint"})

	err := s.SaveDecision(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrReferentialIntegrity), err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDecisions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	doc := []byte(`{"id":"d1","batch_id":"b1","consideration_set":["A"],"final_choice":"A",
		"provenance":{"provider":"claude","model":"m","created_at":"2026-03-14T10:00:00Z"}}`)
	mock.ExpectQuery(`SELECT document FROM decisions WHERE batch_id = \$1 ORDER BY decided_at, id`).
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := s.ListDecisions(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].ID)
	assert.Equal(t, []string{"A"}, got[0].ConsiderationSet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceAttribution(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	a := testArtifact(t, 0, model.PositionPriceAsc, "A", "B", "C")
	rows := testRows(t, a, testDecision("d1", a.ID, "A", "A"))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "attribution_rows" WHERE "decision_id" = ANY\(\$1\)`).
		WithArgs([]string{"d1"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"attribution_rows"}, attributionColumns).WillReturnResult(3)
	mock.ExpectCommit()

	n, err := s.ReplaceAttribution(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPostgres_PassesOtherErrors(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, classifyPostgres(plain))

	other := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(other), classifyPostgres(other))
}
