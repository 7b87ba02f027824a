package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/CreativeUnicorns/leafprefs"
)

// sqlOpenFunc is a package-level variable that can be overridden for testing.
var sqlOpenFunc = sql.Open

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS leaf_preferences (
			container TEXT NOT NULL,
			key TEXT NOT NULL,
			token TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (container, key)
		);
	`

	upsertSQL = `
		INSERT INTO leaf_preferences (container, key, token, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (container, key)
		DO UPDATE SET token = $3, updated_at = CURRENT_TIMESTAMP
	`

	selectSQL = `
		SELECT token FROM leaf_preferences
		WHERE container = $1 AND key = $2
	`

	selectAllSQL = `
		SELECT key, token FROM leaf_preferences
		WHERE container = $1
	`
)

// PostgresStorage implements the Storage interface using PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage initializes a new PostgresStorage instance.
// It connects to the PostgreSQL database using the provided connection string and runs migrations.
func NewPostgresStorage(connString string) (*PostgresStorage, error) {
	db, err := sqlOpenFunc("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	storage := &PostgresStorage{db: db}
	if err := storage.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: failed to run migrations: %w", err)
	}

	return storage, nil
}

// migrate runs the necessary database migrations.
func (s *PostgresStorage) migrate() error {
	_, err := s.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("postgres: failed to execute create table statement: %w", err)
	}
	return nil
}

// Get retrieves a token by container and key.
// It returns ErrNotFound if the key does not exist.
func (s *PostgresStorage) Get(ctx context.Context, container, key string) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, selectSQL, container, key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", leafprefs.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres: failed to get preference: %w", err)
	}
	return token, nil
}

// SetAll upserts values into container in a single transaction.
func (s *PostgresStorage) SetAll(ctx context.Context, container string, values map[string]string) error {
	if err := leafprefs.ValidateContainer(container); err != nil {
		return err
	}
	if err := upsertTokens(ctx, s.db, upsertSQL, container, values); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return nil
}

// LoadAll retrieves every token of container.
func (s *PostgresStorage) LoadAll(ctx context.Context, container string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, selectAllSQL, container)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	values, err := scanTokens(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return values, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
