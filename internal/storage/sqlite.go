package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage handles all database operations.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLiteStorage instance.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

// Migrate creates the schema when it is missing.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tokens (
			account_id TEXT PRIMARY KEY,
			encrypted_token BLOB NOT NULL,
			nonce BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// validateTokenInput checks if the token input parameters are valid.
func validateTokenInput(accountID string, token, nonce []byte) error {
	if accountID == "" {
		return fmt.Errorf("%w: account ID cannot be empty", ErrInvalidInput)
	}
	if len(token) == 0 {
		return fmt.Errorf("%w: token cannot be empty", ErrInvalidInput)
	}
	if len(nonce) == 0 {
		return fmt.Errorf("%w: nonce cannot be empty", ErrInvalidInput)
	}
	return nil
}

// StoreToken stores or updates an encrypted token and its nonce.
func (s *SQLiteStorage) StoreToken(ctx context.Context, accountID string, token, nonce []byte) error {
	if err := validateTokenInput(accountID, token, nonce); err != nil {
		return err
	}

	query := `
		INSERT OR REPLACE INTO tokens (account_id, encrypted_token, nonce, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`
	_, err := s.db.ExecContext(ctx, query, accountID, token, nonce)
	return err
}

// GetToken retrieves an encrypted token and its nonce.
func (s *SQLiteStorage) GetToken(ctx context.Context, accountID string) ([]byte, []byte, error) {
	if accountID == "" {
		return nil, nil, fmt.Errorf("%w: account ID cannot be empty", ErrInvalidInput)
	}

	var token, nonce []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT encrypted_token, nonce FROM tokens WHERE account_id = ?",
		accountID).Scan(&token, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: token not found for account %s", ErrNotFound, accountID)
		}
		return nil, nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nonce, nil
}

// DeleteToken removes a token from the database.
func (s *SQLiteStorage) DeleteToken(ctx context.Context, accountID string) error {
	query := `DELETE FROM tokens WHERE account_id = ?`
	_, err := s.db.ExecContext(ctx, query, accountID)
	return err
}
