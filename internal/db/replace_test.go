package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplace_DeletesThenCopies(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "attribution_rows" WHERE "decision_id" = ANY\(\$1\)`).
		WithArgs([]string{"d1"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"attribution_rows"}, []string{"decision_id", "product_id"}).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := Replace(context.Background(), mock, ReplaceConfig{
		Table:     "attribution_rows",
		Columns:   []string{"decision_id", "product_id"},
		KeyColumn: "decision_id",
		Keys:      []string{"d1"},
	}, [][]any{{"d1", "A"}, {"d1", "B"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM`).WithArgs([]string{"d1"}).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"attribution_rows"}, []string{"decision_id"}).WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	_, err = Replace(context.Background(), mock, ReplaceConfig{
		Table:     "attribution_rows",
		Columns:   []string{"decision_id"},
		KeyColumn: "decision_id",
		Keys:      []string{"d1"},
	}, [][]any{{"d1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: replace")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_InvalidConfig(t *testing.T) {
	_, err := Replace(context.Background(), nil, ReplaceConfig{Table: "t", KeyColumn: "k"}, nil)
	assert.Error(t, err)

	_, err = Replace(context.Background(), nil, ReplaceConfig{Table: "t", Columns: []string{"a"}}, nil)
	assert.Error(t, err)

	n, err := Replace(context.Background(), nil, ReplaceConfig{Table: "t", Columns: []string{"a"}, KeyColumn: "k"}, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
