package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenStore persists tokens for the host between runs. Implemented by
// the storage package; the auth subsystem itself keeps nothing on disk.
type TokenStore interface {
	GetToken(ctx context.Context, accountID string) (*oauth2.Token, error)
	StoreToken(ctx context.Context, accountID string, token *oauth2.Token) error
}

// refreshWindow is how long before expiry a token is considered stale.
const refreshWindow = 5 * time.Minute

// TokenRefreshService keeps persisted tokens fresh using the
// refresh-token grant.
type TokenRefreshService struct {
	client *ExchangeClient
	store  TokenStore
	logger logrus.FieldLogger
}

// NewTokenRefreshService creates a TokenRefreshService.
func NewTokenRefreshService(client *ExchangeClient, store TokenStore, logger logrus.FieldLogger) *TokenRefreshService {
	return &TokenRefreshService{
		client: client,
		store:  store,
		logger: logger,
	}
}

// RefreshIfStale refreshes the account's token when it is within five
// minutes of expiry. Tokens without an expiry are left alone.
func (s *TokenRefreshService) RefreshIfStale(ctx context.Context, accountID string) (*oauth2.Token, error) {
	token, err := s.store.GetToken(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if token.Expiry.IsZero() || token.Expiry.After(time.Now().Add(refreshWindow)) {
		return token, nil
	}

	return s.Refresh(ctx, accountID, token)
}

// Refresh unconditionally refreshes the token and persists the result.
func (s *TokenRefreshService) Refresh(ctx context.Context, accountID string, token *oauth2.Token) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available for account %s", accountID)
	}

	resp, err := s.client.Refresh(ctx, token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	fresh := resp.OAuth2Token()
	// Dropbox omits the refresh token on refresh responses; keep the old
	// one so the account stays refreshable.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}

	if err := s.store.StoreToken(ctx, accountID, fresh); err != nil {
		return nil, fmt.Errorf("failed to store refreshed token: %w", err)
	}

	s.logger.WithField("account_id", accountID).Info("access token refreshed")
	return fresh, nil
}
