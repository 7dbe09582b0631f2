package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"budgetview-go/internal/metrics"
)

// TokenResponse is the provider token endpoint's success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	UID          string `json:"uid,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
}

// OAuth2Token converts the response into an *oauth2.Token for host-side
// persistence. Expiry is left zero when the provider sent no expires_in.
func (t *TokenResponse) OAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
	}
	if t.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return token
}

// tokenErrorBody is the provider's structured error response.
type tokenErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeClient performs the authorization-code and refresh-token
// grants against the provider's token endpoint. It never retries; any
// transport failure is surfaced immediately as a TransportError.
type ExchangeClient struct {
	endpoint string
	clientID string
	http     *http.Client
	logger   logrus.FieldLogger
}

// NewExchangeClient creates a client for the given token endpoint. A nil
// httpClient gets a default with a 30 second timeout; that timeout is
// the only bound on these calls, no extra deadline is imposed here.
func NewExchangeClient(endpoint, clientID string, httpClient *http.Client, logger logrus.FieldLogger) *ExchangeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ExchangeClient{
		endpoint: endpoint,
		clientID: clientID,
		http:     httpClient,
		logger:   logger,
	}
}

// ExchangeCode trades an authorization code and the PKCE verifier it was
// bound to for tokens.
func (c *ExchangeClient) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}
	return c.post(ctx, form)
}

// Refresh obtains a new access token from a refresh token. No verifier
// is involved in this grant.
func (c *ExchangeClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
	}
	return c.post(ctx, form)
}

func (c *ExchangeClient) post(ctx context.Context, form url.Values) (*TokenResponse, error) {
	grantType := form.Get("grant_type")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	metrics.ExchangeDuration.WithLabelValues(grantType).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		protoErr := &ProtocolError{StatusCode: resp.StatusCode, Code: "unknown", RawBody: string(body)}
		var structured tokenErrorBody
		if json.Unmarshal(body, &structured) == nil && structured.Error != "" {
			protoErr.Code = structured.Error
			protoErr.Description = structured.ErrorDescription
			protoErr.RawBody = ""
		}
		c.logger.WithFields(logrus.Fields{
			"grant_type": grantType,
			"status":     resp.StatusCode,
			"error":      protoErr.Code,
		}).Warn("token request rejected by provider")
		return nil, protoErr
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &ParseError{Err: err, Body: string(body)}
	}
	return &token, nil
}
