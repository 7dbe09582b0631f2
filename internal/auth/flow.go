package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"budgetview-go/internal/metrics"
)

// DefaultFlowTimeout bounds the desktop flow's wait for a valid
// callback.
const DefaultFlowTimeout = 5 * time.Minute

// AuthPrompt is what the host hands to the browser: the provider
// authorization URL and the CSRF state bound to this attempt.
type AuthPrompt struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// Launcher opens a URL in the user's external browser. It is an
// injected collaborator so tests can substitute a fake.
type Launcher interface {
	Open(url string) error
}

// Flow is one platform's authorization strategy. Start generates a
// fresh PKCE pair and CSRF state, stores the verifier and returns the
// URL the user must visit; Exchange turns the authorization code that
// comes back into tokens using that stored verifier.
type Flow interface {
	Start(ctx context.Context) (*AuthPrompt, error)
	Exchange(ctx context.Context, code string) (*TokenResponse, error)
}

// DesktopFlow is the loopback-redirect variant: the provider sends the
// browser back to a locally bound HTTP port.
type DesktopFlow struct {
	client   *ExchangeClient
	store    VerifierStore
	launcher Launcher
	authURL  string
	clientID string
	port     int
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// NewDesktopFlow wires a desktop flow. port <= 0 selects
// DefaultCallbackPort and timeout <= 0 selects DefaultFlowTimeout.
func NewDesktopFlow(client *ExchangeClient, store VerifierStore, launcher Launcher, authURL, clientID string, port int, timeout time.Duration, logger logrus.FieldLogger) *DesktopFlow {
	if port <= 0 {
		port = DefaultCallbackPort
	}
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	return &DesktopFlow{
		client:   client,
		store:    store,
		launcher: launcher,
		authURL:  authURL,
		clientID: clientID,
		port:     port,
		timeout:  timeout,
		logger:   logger,
	}
}

func (f *DesktopFlow) redirectURI() string {
	return LoopbackRedirectURI(f.port)
}

// Start begins a desktop attempt. Any earlier unfinished attempt is
// silently overwritten.
func (f *DesktopFlow) Start(ctx context.Context) (*AuthPrompt, error) {
	metrics.FlowsStarted.WithLabelValues("desktop").Inc()
	return startAttempt(f.store, f.authURL, f.clientID, f.redirectURI())
}

// Exchange trades the callback code for tokens using the verifier from
// the current attempt. The slot is cleared as soon as the verifier is
// read: a failed exchange means starting the flow over, not retrying
// with the same verifier.
func (f *DesktopFlow) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	return exchangeAttempt(ctx, f.store, f.client, f.redirectURI(), code)
}

// Run executes the whole desktop flow: start an attempt, bind the
// callback port, open the browser on the authorization URL, race the
// callback wait against the flow timeout and exchange the code. On
// timeout the stored verifier is left intact.
func (f *DesktopFlow) Run(ctx context.Context) (*TokenResponse, error) {
	logger := f.logger.WithFields(logrus.Fields{
		"flow_id":  uuid.NewString(),
		"platform": "desktop",
	})

	prompt, err := f.Start(ctx)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("desktop", "start").Inc()
		return nil, err
	}

	listener, err := BindCallbackListener(f.port, logger)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("desktop", "port_unavailable").Inc()
		return nil, err
	}
	defer listener.Close()

	logger.WithField("port", f.port).Info("waiting for authorization callback")
	if err := f.launcher.Open(prompt.URL); err != nil {
		metrics.FlowsFailed.WithLabelValues("desktop", "browser").Inc()
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	code, err := listener.Wait(waitCtx, prompt.State)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.FlowsFailed.WithLabelValues("desktop", "timeout").Inc()
			return nil, ErrTimeout
		}
		metrics.FlowsFailed.WithLabelValues("desktop", "callback").Inc()
		return nil, err
	}

	logger.Info("authorization code received, exchanging for tokens")
	token, err := f.Exchange(ctx, code)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("desktop", "exchange").Inc()
		return nil, err
	}

	metrics.FlowsCompleted.WithLabelValues("desktop").Inc()
	logger.Info("authorization flow completed")
	return token, nil
}

// MobileFlow is the deep-link variant: the host hands the URL from
// Start to the OS browser intent, control comes back later through the
// registered custom URI scheme, and the deep-link handler feeds the
// extracted code to Exchange.
type MobileFlow struct {
	client      *ExchangeClient
	store       VerifierStore
	authURL     string
	clientID    string
	redirectURI string
	logger      logrus.FieldLogger
}

// NewMobileFlow wires a mobile flow. An empty redirectURI selects
// MobileRedirectURI.
func NewMobileFlow(client *ExchangeClient, store VerifierStore, authURL, clientID, redirectURI string, logger logrus.FieldLogger) *MobileFlow {
	if redirectURI == "" {
		redirectURI = MobileRedirectURI
	}
	return &MobileFlow{
		client:      client,
		store:       store,
		authURL:     authURL,
		clientID:    clientID,
		redirectURI: redirectURI,
		logger:      logger,
	}
}

// Start begins a mobile attempt and returns the URL for the OS browser
// intent.
func (f *MobileFlow) Start(ctx context.Context) (*AuthPrompt, error) {
	metrics.FlowsStarted.WithLabelValues("mobile").Inc()
	return startAttempt(f.store, f.authURL, f.clientID, f.redirectURI)
}

// Exchange trades a deep-linked authorization code for tokens using the
// stored verifier.
func (f *MobileFlow) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	f.logger.WithField("platform", "mobile").Info("exchanging deep-linked authorization code")
	token, err := exchangeAttempt(ctx, f.store, f.client, f.redirectURI, code)
	if err != nil {
		metrics.FlowsFailed.WithLabelValues("mobile", "exchange").Inc()
		return nil, err
	}
	metrics.FlowsCompleted.WithLabelValues("mobile").Inc()
	return token, nil
}

// startAttempt is the platform-independent half of Start: fresh PKCE
// pair, fresh state, verifier into the slot, URL out.
func startAttempt(store VerifierStore, authURL, clientID, redirectURI string) (*AuthPrompt, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	if err := store.Set(verifier); err != nil {
		return nil, fmt.Errorf("failed to store verifier: %w", err)
	}
	return &AuthPrompt{
		URL:   BuildAuthorizeURL(authURL, clientID, redirectURI, DeriveChallenge(verifier), state),
		State: state,
	}, nil
}

// exchangeAttempt consumes the stored verifier and performs the code
// exchange. The read clears the slot regardless of the outcome.
func exchangeAttempt(ctx context.Context, store VerifierStore, client *ExchangeClient, redirectURI, code string) (*TokenResponse, error) {
	verifier, err := store.Take()
	if err != nil {
		return nil, fmt.Errorf("failed to read stored verifier: %w", err)
	}
	if verifier == "" {
		return nil, ErrNoVerifier
	}
	return client.ExchangeCode(ctx, code, redirectURI, verifier)
}
