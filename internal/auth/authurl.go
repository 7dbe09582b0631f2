package auth

import (
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// DefaultCallbackPort is the fixed loopback port the desktop flow
	// binds for the provider redirect.
	DefaultCallbackPort = 8742

	// MobileRedirectURI is the custom URI scheme registered with the OS
	// on mobile builds. The OS routes it back into the application as a
	// deep link.
	MobileRedirectURI = "ynab4viewer://oauth/callback"

	// DropboxAuthorizeURL and DropboxTokenURL are the provider defaults;
	// config can override them, which tests rely on.
	DropboxAuthorizeURL = "https://www.dropbox.com/oauth2/authorize"
	DropboxTokenURL     = "https://api.dropboxapi.com/oauth2/token"
)

// LoopbackRedirectURI builds the desktop redirect target for a callback
// port.
func LoopbackRedirectURI(port int) string {
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// BuildAuthorizeURL assembles the provider authorization URL. The raw
// verifier never appears here; only its S256 challenge is sent, along
// with the CSRF state and an offline token_access_type so the provider
// issues a refresh token.
func BuildAuthorizeURL(authorizeURL, clientID, redirectURI, challenge, state string) string {
	cfg := &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: authorizeURL},
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("token_access_type", "offline"),
	}
	return cfg.AuthCodeURL(state, opts...)
}
