package storage

import (
	"context"
	"errors"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Storage defines the low-level database operations required by the
// higher-level TokenStore.
type Storage interface {
	GetToken(ctx context.Context, accountID string) ([]byte, []byte, error)
	StoreToken(ctx context.Context, accountID string, token, nonce []byte) error
	DeleteToken(ctx context.Context, accountID string) error
}
