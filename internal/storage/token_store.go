package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/oauth2"
)

// TokenStore encrypts OAuth2 tokens at rest with AES-GCM, one token per
// Dropbox account. The account id is bound into the ciphertext as
// additional authenticated data, so a row copied or renamed to another
// account fails to decrypt. It implements auth.TokenStore.
type TokenStore struct {
	db            Storage
	encryptionKey []byte
}

// NewTokenStore creates a new TokenStore. The key must be a valid AES
// key length (16, 24 or 32 bytes).
func NewTokenStore(db Storage, key []byte) *TokenStore {
	return &TokenStore{db: db, encryptionKey: key}
}

func (ts *TokenStore) sealer() (cipher.AEAD, error) {
	block, err := aes.NewCipher(ts.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return aesgcm, nil
}

// GetToken retrieves and decrypts the oauth2.Token for an account.
func (ts *TokenStore) GetToken(ctx context.Context, accountID string) (*oauth2.Token, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id cannot be empty: %w", ErrInvalidInput)
	}

	encryptedToken, nonce, err := ts.db.GetToken(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get encrypted token from db: %w", err)
	}

	aesgcm, err := ts.sealer()
	if err != nil {
		return nil, err
	}

	decryptedData, err := aesgcm.Open(nil, nonce, encryptedToken, []byte(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token for account %q: %w", accountID, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(decryptedData, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// StoreToken encrypts and stores an oauth2.Token for an account.
func (ts *TokenStore) StoreToken(ctx context.Context, accountID string, token *oauth2.Token) error {
	if accountID == "" {
		return fmt.Errorf("account id cannot be empty: %w", ErrInvalidInput)
	}
	if token == nil {
		return errors.New("token cannot be nil")
	}

	tokenBytes, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	aesgcm, err := ts.sealer()
	if err != nil {
		return err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	encryptedToken := aesgcm.Seal(nil, nonce, tokenBytes, []byte(accountID))

	return ts.db.StoreToken(ctx, accountID, encryptedToken, nonce)
}

// DeleteToken removes a token for an account.
func (ts *TokenStore) DeleteToken(ctx context.Context, accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account id cannot be empty: %w", ErrInvalidInput)
	}
	return ts.db.DeleteToken(ctx, accountID)
}
