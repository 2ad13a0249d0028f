package sqlstore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/pkg/content"
	"github.com/agentstation/freshen/pkg/content/contenttest"
	"github.com/agentstation/freshen/pkg/content/sqlstore"
	"github.com/agentstation/freshen/pkg/errors"
)

var itemCols = []string{
	"content_key", "module", "section", "data", "source_type", "source_url", "confidence", "notes",
	"version", "is_active", "expires_at", "refreshed_at", "last_verified",
}

func newMock(t *testing.T) (*sqlstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := contenttest.NewClock(contenttest.Start)
	return sqlstore.New(sqlx.NewDb(db, "postgres"), contenttest.Registry(t, clock)), mock
}

func itemRow(key string, version int) *sqlmock.Rows {
	now := contenttest.Start
	return sqlmock.NewRows(itemCols).AddRow(
		key, "x", key[2:], []byte(`{"v":1}`), "seed", "", nil, "",
		version, true, now.Add(24*time.Hour), now, now,
	)
}

func TestBulkUpsertStopsOnStoreFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO content_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM content_items WHERE content_key").WillReturnRows(itemRow("x:1", 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO content_items").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	n, err := s.BulkUpsert(context.Background(), "x", []content.Write{
		{Key: "x:1", Section: "1", Data: content.MustDocument(1)},
		{Key: "x:2", Section: "2", Data: content.MustDocument(2)},
		{Key: "x:3", Section: "3", Data: content.MustDocument(3)},
	}, content.Meta{SourceType: content.SourceSeed})

	assert.Equal(t, 1, n)
	var partial *errors.PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Applied)
	assert.Equal(t, "x:2", partial.FailedKey)
	assert.Equal(t, 1, partial.Remaining)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	var resource *errors.ResourceError
	require.ErrorAs(t, err, &resource)
	assert.Equal(t, "upsert", resource.Operation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIfVersionConflictReadsActualVersion(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE content_items SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT (.+) FROM content_items WHERE content_key").WillReturnRows(itemRow("x:a", 5))
	mock.ExpectRollback()

	_, err := s.UpsertIfVersion(context.Background(), "x:a", 4, "x", "a", content.MustDocument(1), content.Meta{SourceType: content.SourceManual})
	var conflict *errors.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 4, conflict.Expected)
	assert.Equal(t, 5, conflict.Actual)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemNotFoundIsNotAnError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM content_items WHERE content_key").WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Item(context.Background(), "x:none")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery("SELECT (.+) FROM content_items WHERE content_key").WillReturnError(sql.ErrConnDone)
	_, _, err = s.Item(context.Background(), "x:none")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholders(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(`UPDATE content_items SET is_active = FALSE WHERE content_key = \$1 AND module = \$2`).
		WithArgs("x:a", "x").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.Deactivate(context.Background(), "x", "x:a")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(`DELETE FROM refresh_logs WHERE created_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 7))
	n, err := s.Prune(context.Background(), contenttest.Start)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
