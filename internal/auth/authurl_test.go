package auth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorizeURL(t *testing.T) {
	verifier, err := GenerateVerifier()
	require.NoError(t, err)
	challenge := DeriveChallenge(verifier)

	raw := BuildAuthorizeURL(DropboxAuthorizeURL, "client-123", LoopbackRedirectURI(8742), challenge, "state-abc")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.dropbox.com", u.Host)
	assert.Equal(t, "/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8742/callback", q.Get("redirect_uri"))
	assert.Equal(t, challenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "offline", q.Get("token_access_type"))
	assert.Equal(t, "state-abc", q.Get("state"))

	// The raw verifier must never appear in the URL.
	assert.NotContains(t, raw, verifier)
}

func TestBuildAuthorizeURL_MobileRedirect(t *testing.T) {
	raw := BuildAuthorizeURL(DropboxAuthorizeURL, "client-123", MobileRedirectURI, "challenge", "state")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, MobileRedirectURI, u.Query().Get("redirect_uri"))
}
