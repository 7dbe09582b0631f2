package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePort grabs a port from the kernel and releases it for the flow to
// bind.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// callbackLauncher stands in for the browser: instead of opening the
// authorization URL it immediately dials the loopback callback with the
// given code, echoing the state from the URL it was handed.
type callbackLauncher struct {
	port    int
	code    string
	seenURL chan string
}

func newCallbackLauncher(port int, code string) *callbackLauncher {
	return &callbackLauncher{port: port, code: code, seenURL: make(chan string, 1)}
}

func (f *callbackLauncher) Open(rawURL string) error {
	f.seenURL <- rawURL
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	state := u.Query().Get("state")
	go func() {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", f.port))
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(conn, "GET /callback?code=%s&state=%s HTTP/1.1\r\nHost: localhost\r\n\r\n", f.code, state)
		io.Copy(io.Discard, conn)
	}()
	return nil
}

func TestDesktopFlow_Run(t *testing.T) {
	var gotCode, gotVerifier, gotRedirect string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotCode = r.PostFormValue("code")
		gotVerifier = r.PostFormValue("code_verifier")
		gotRedirect = r.PostFormValue("redirect_uri")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","refresh_token":"ref"}`))
	}))
	defer server.Close()

	port := freePort(t)
	launcher := newCallbackLauncher(port, "XYZ")
	store := NewInMemoryVerifierStore()
	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())

	flow := NewDesktopFlow(client, store, launcher, server.URL+"/authorize", "client-123", port, time.Minute, testLogger())

	token, err := flow.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)

	// The exchange used the code delivered via the callback and the
	// verifier generated at flow start.
	assert.Equal(t, "XYZ", gotCode)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d/callback", port), gotRedirect)

	authURL := <-launcher.seenURL
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, DeriveChallenge(gotVerifier), u.Query().Get("code_challenge"))
	assert.NotContains(t, authURL, gotVerifier)

	// The verifier slot was consumed by the exchange.
	left, err := store.Take()
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDesktopFlow_Timeout(t *testing.T) {
	port := freePort(t)
	store := NewInMemoryVerifierStore()
	client := NewExchangeClient("http://127.0.0.1:0", "client-123", nil, testLogger())

	// A launcher that never produces a callback.
	flow := NewDesktopFlow(client, store, launcherFunc(func(string) error { return nil }),
		"http://127.0.0.1:0/authorize", "client-123", port, 50*time.Millisecond, testLogger())

	_, err := flow.Run(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	// On timeout the stored verifier is left intact.
	left, takeErr := store.Take()
	require.NoError(t, takeErr)
	assert.NotEmpty(t, left)
}

func TestDesktopFlow_PortUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	store := NewInMemoryVerifierStore()
	client := NewExchangeClient("http://127.0.0.1:0", "client-123", nil, testLogger())
	flow := NewDesktopFlow(client, store, launcherFunc(func(string) error { return nil }),
		"http://127.0.0.1:0/authorize", "client-123", port, time.Minute, testLogger())

	_, err = flow.Run(context.Background())

	var portErr *PortUnavailableError
	require.ErrorAs(t, err, &portErr)
}

func TestDesktopFlow_BrowserFailure(t *testing.T) {
	port := freePort(t)
	store := NewInMemoryVerifierStore()
	client := NewExchangeClient("http://127.0.0.1:0", "client-123", nil, testLogger())
	flow := NewDesktopFlow(client, store, launcherFunc(func(string) error { return errors.New("no browser") }),
		"http://127.0.0.1:0/authorize", "client-123", port, time.Minute, testLogger())

	_, err := flow.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open browser")
}

func TestMobileFlow_StartAndExchange(t *testing.T) {
	var gotVerifier, gotRedirect string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotVerifier = r.PostFormValue("code_verifier")
		gotRedirect = r.PostFormValue("redirect_uri")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer server.Close()

	store := NewInMemoryVerifierStore()
	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	flow := NewMobileFlow(client, store, server.URL+"/authorize", "client-123", "", testLogger())

	prompt, err := flow.Start(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(prompt.URL)
	require.NoError(t, err)
	assert.Equal(t, MobileRedirectURI, u.Query().Get("redirect_uri"))
	assert.NotEmpty(t, prompt.State)

	token, err := flow.Exchange(context.Background(), "deep-link-code")
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)

	assert.Equal(t, MobileRedirectURI, gotRedirect)
	assert.Equal(t, DeriveChallenge(gotVerifier), u.Query().Get("code_challenge"))
}

func TestMobileFlow_ExchangeWithoutStart(t *testing.T) {
	store := NewInMemoryVerifierStore()
	client := NewExchangeClient("http://127.0.0.1:0", "client-123", nil, testLogger())
	flow := NewMobileFlow(client, store, "http://127.0.0.1:0/authorize", "client-123", "", testLogger())

	_, err := flow.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrNoVerifier)
}

func TestFlow_SecondStartInvalidatesFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer server.Close()

	store := NewInMemoryVerifierStore()
	client := NewExchangeClient(server.URL, "client-123", nil, testLogger())
	flow := NewMobileFlow(client, store, server.URL+"/authorize", "client-123", "", testLogger())

	first, err := flow.Start(context.Background())
	require.NoError(t, err)
	second, err := flow.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.State, second.State)

	// Only the second attempt's verifier is in the slot.
	_, err = flow.Exchange(context.Background(), "code")
	require.NoError(t, err)
	_, err = flow.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrNoVerifier)
}

// launcherFunc adapts a function to the Launcher interface.
type launcherFunc func(url string) error

func (f launcherFunc) Open(url string) error { return f(url) }
