package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestWithTenant_Commits(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\('app.tenant_id', \$1, true\)`).
		WithArgs("tenant-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`UPDATE products`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := WithTenant(context.Background(), mock, "tenant-1", func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), `UPDATE products SET likeestimate = 1`)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTenant_RollsBackOnError(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WithArgs("tenant-1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := WithTenant(context.Background(), mock, "tenant-1", func(pgx.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTenant_RequiresTenant(t *testing.T) {
	err := WithTenant(context.Background(), nil, "", func(pgx.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestWithTenant_BeginError(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := WithTenant(context.Background(), mock, "tenant-1", func(pgx.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}
