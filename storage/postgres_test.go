package storage

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CreativeUnicorns/leafprefs"
)

// TestNewPostgresStorage tests the NewPostgresStorage constructor.
func TestNewPostgresStorage(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectPing()
		mock.ExpectExec(regexp.QuoteMeta(createTableSQL)).WillReturnResult(sqlmock.NewResult(0, 0))

		originalSqlOpen := sqlOpenFunc
		sqlOpenFunc = func(driverName, dataSourceName string) (*sql.DB, error) {
			assert.Equal(t, "postgres", driverName)
			return db, nil
		}
		defer func() { sqlOpenFunc = originalSqlOpen }()

		storage, err := NewPostgresStorage("dummy_conn_string")
		assert.NoError(t, err)
		assert.NotNil(t, storage)
		assert.NoError(t, mock.ExpectationsWereMet(), "sqlmock expectations not met")
	})

	t.Run("sql open error", func(t *testing.T) {
		expectedErr := errors.New("failed to open database")
		originalSqlOpen := sqlOpenFunc
		sqlOpenFunc = func(driverName, dataSourceName string) (*sql.DB, error) {
			return nil, expectedErr
		}
		defer func() { sqlOpenFunc = originalSqlOpen }()

		_, err := NewPostgresStorage("dummy_conn_string")
		assert.Error(t, err)
		assert.True(t, errors.Is(err, expectedErr), "Expected sql open error")
	})

	t.Run("ping error", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)

		mock.ExpectPing().WillReturnError(errors.New("ping failed"))
		mock.ExpectClose()

		originalSqlOpen := sqlOpenFunc
		sqlOpenFunc = func(driverName, dataSourceName string) (*sql.DB, error) {
			return db, nil
		}
		defer func() { sqlOpenFunc = originalSqlOpen }()

		_, err = NewPostgresStorage("dummy_conn_string")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "postgres: failed to ping database")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("migrate error", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)

		mock.ExpectPing()
		mock.ExpectExec(regexp.QuoteMeta(createTableSQL)).WillReturnError(errors.New("migrate failed"))
		mock.ExpectClose()

		originalSqlOpen := sqlOpenFunc
		sqlOpenFunc = func(driverName, dataSourceName string) (*sql.DB, error) {
			return db, nil
		}
		defer func() { sqlOpenFunc = originalSqlOpen }()

		_, err = NewPostgresStorage("dummy_conn_string")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to run migrations")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func newTestPostgresStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return &PostgresStorage{db: db}, mock
}

func TestPostgresStorage_Get(t *testing.T) {
	storage, mock := newTestPostgresStorage(t)
	defer storage.Close()
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("com.example.leaf", "theme").
			WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("stringdark"))

		token, err := storage.Get(ctx, "com.example.leaf", "theme")
		require.NoError(t, err)
		assert.Equal(t, "stringdark", token)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("com.example.leaf", "missing").
			WillReturnRows(sqlmock.NewRows([]string{"token"}))

		_, err := storage.Get(ctx, "com.example.leaf", "missing")
		assert.True(t, errors.Is(err, leafprefs.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
			WithArgs("com.example.leaf", "theme").
			WillReturnError(errors.New("connection reset"))

		_, err := storage.Get(ctx, "com.example.leaf", "theme")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, leafprefs.ErrNotFound))
		assert.Contains(t, err.Error(), "postgres: failed to get preference")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStorage_SetAll(t *testing.T) {
	storage, mock := newTestPostgresStorage(t)
	defer storage.Close()
	ctx := context.Background()

	t.Run("successful set", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("com.example.leaf", "a", "bool 1").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("com.example.leaf", "b", "bool 0").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := storage.SetAll(ctx, "com.example.leaf", map[string]string{"b": "bool 0", "a": "bool 1"})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec error rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
			WithArgs("com.example.leaf", "a", "bool 1").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := storage.SetAll(ctx, "com.example.leaf", map[string]string{"a": "bool 1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to set preference")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin error", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("no connection"))

		err := storage.SetAll(ctx, "com.example.leaf", map[string]string{"a": "bool 1"})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid container", func(t *testing.T) {
		err := storage.SetAll(ctx, "nil", map[string]string{"a": "bool 1"})
		assert.True(t, errors.Is(err, leafprefs.ErrInvalidContainer))
	})

	t.Run("empty delta", func(t *testing.T) {
		assert.NoError(t, storage.SetAll(ctx, "com.example.leaf", map[string]string{}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStorage_LoadAll(t *testing.T) {
	storage, mock := newTestPostgresStorage(t)
	defer storage.Close()
	ctx := context.Background()

	t.Run("rows", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectAllSQL)).
			WithArgs("com.example.leaf").
			WillReturnRows(sqlmock.NewRows([]string{"key", "token"}).
				AddRow("a", "bool 1").
				AddRow("b", "numbe2"))

		values, err := storage.LoadAll(ctx, "com.example.leaf")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "bool 1", "b": "numbe2"}, values)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectAllSQL)).
			WithArgs("com.example.empty").
			WillReturnRows(sqlmock.NewRows([]string{"key", "token"}))

		values, err := storage.LoadAll(ctx, "com.example.empty")
		require.NoError(t, err)
		assert.Nil(t, values)
	})

	t.Run("row error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(selectAllSQL)).
			WithArgs("com.example.leaf").
			WillReturnRows(sqlmock.NewRows([]string{"key", "token"}).
				AddRow("a", "bool 1").
				RowError(0, errors.New("row broke")))

		_, err := storage.LoadAll(ctx, "com.example.leaf")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
