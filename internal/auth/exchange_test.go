package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeClient_ExchangeCode(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"code":          r.PostFormValue("code"),
			"client_id":     r.PostFormValue("client_id"),
			"redirect_uri":  r.PostFormValue("redirect_uri"),
			"code_verifier": r.PostFormValue("code_verifier"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"x","token_type":"bearer","expires_in":14400,"refresh_token":"r","account_id":"dbid:123"}`))
	}))
	defer server.Close()

	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	token, err := client.ExchangeCode(context.Background(), "code-abc", "http://localhost:8742/callback", "verifier-1")
	require.NoError(t, err)

	assert.Equal(t, "x", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, int64(14400), token.ExpiresIn)
	assert.Equal(t, "r", token.RefreshToken)
	assert.Equal(t, "dbid:123", token.AccountID)

	assert.Equal(t, map[string]string{
		"grant_type":    "authorization_code",
		"code":          "code-abc",
		"client_id":     "client-123",
		"redirect_uri":  "http://localhost:8742/callback",
		"code_verifier": "verifier-1",
	}, form)
}

func TestExchangeClient_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "refresh-1", r.PostFormValue("refresh_token"))
		assert.Equal(t, "client-123", r.PostFormValue("client_id"))
		assert.Empty(t, r.PostFormValue("code_verifier"))
		w.Write([]byte(`{"access_token":"y","token_type":"bearer"}`))
	}))
	defer server.Close()

	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	token, err := client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "y", token.AccessToken)
}

func TestExchangeClient_StructuredError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer server.Close()

	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	_, err := client.ExchangeCode(context.Background(), "stale", "uri", "verifier")

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusBadRequest, protoErr.StatusCode)
	assert.Equal(t, "invalid_grant", protoErr.Code)
	assert.Equal(t, "code expired", protoErr.Description)
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestExchangeClient_RawBodyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	_, err := client.ExchangeCode(context.Background(), "code", "uri", "verifier")

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "unknown", protoErr.Code)
	assert.Equal(t, "upstream exploded", protoErr.RawBody)
}

func TestExchangeClient_MalformedSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	_, err := client.ExchangeCode(context.Background(), "code", "uri", "verifier")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "not json", parseErr.Body)
}

func TestExchangeClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	_, err := client.Refresh(context.Background(), "refresh-1")

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestTokenResponse_OAuth2Token(t *testing.T) {
	resp := &TokenResponse{
		AccessToken:  "x",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		RefreshToken: "r",
	}

	token := resp.OAuth2Token()
	assert.Equal(t, "x", token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, "r", token.RefreshToken)
	assert.False(t, token.Expiry.IsZero())

	noExpiry := &TokenResponse{AccessToken: "x", TokenType: "bearer"}
	assert.True(t, noExpiry.OAuth2Token().Expiry.IsZero())
}
