package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/CreativeUnicorns/leafprefs"
)

const (
	sqliteCreateTableSQL = `
		CREATE TABLE IF NOT EXISTS leaf_preferences (
			container TEXT NOT NULL,
			key TEXT NOT NULL,
			token TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (container, key)
		);
	`

	sqliteUpsertSQL = `
		INSERT INTO leaf_preferences (container, key, token, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(container, key)
		DO UPDATE SET token = excluded.token, updated_at = CURRENT_TIMESTAMP
	`

	sqliteSelectSQL = `
		SELECT token FROM leaf_preferences
		WHERE container = ? AND key = ?
	`

	sqliteSelectAllSQL = `
		SELECT key, token FROM leaf_preferences
		WHERE container = ?
	`
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage initializes a new SQLiteStorage instance.
// It connects to the SQLite database at the specified path and runs migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// migrate runs the necessary database migrations.
func (s *SQLiteStorage) migrate() error {
	_, err := s.db.Exec(sqliteCreateTableSQL)
	return err
}

// Get retrieves a token by container and key.
// It returns ErrNotFound if the key does not exist.
func (s *SQLiteStorage) Get(ctx context.Context, container, key string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, sqliteSelectSQL, container, key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", leafprefs.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preference: %w", err)
	}
	return token, nil
}

// SetAll upserts values into container in a single transaction.
func (s *SQLiteStorage) SetAll(ctx context.Context, container string, values map[string]string) error {
	if err := leafprefs.ValidateContainer(container); err != nil {
		return err
	}
	return upsertTokens(ctx, s.db, sqliteUpsertSQL, container, values)
}

// LoadAll retrieves every token of container.
func (s *SQLiteStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectAllSQL, container)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTokens(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// upsertTokens runs upsertSQL(container, key, token) for every key inside one transaction.
func upsertTokens(ctx context.Context, db *sql.DB, upsertSQL, container string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, key := range sortedKeys(values) {
		if _, err := tx.ExecContext(ctx, upsertSQL, container, key, values[key]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set preference %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit preferences: %w", err)
	}
	return nil
}

// scanTokens reads (key, token) rows. An empty result is nil.
func scanTokens(rows *sql.Rows) (map[string]string, error) {
	var values map[string]string

	for rows.Next() {
		var key, token string
		if err := rows.Scan(&key, &token); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		if values == nil {
			values = make(map[string]string)
		}
		values[key] = token
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return values, nil
}
