package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoVerifier is returned when a token exchange is attempted with
	// no stored code verifier, i.e. no flow was started in this process.
	ErrNoVerifier = errors.New("no code verifier stored - start an authorization flow first")

	// ErrTimeout is returned by the desktop flow when no valid callback
	// arrives within the flow timeout.
	ErrTimeout = errors.New("authorization timed out waiting for callback")
)

// TransportError wraps a network-level failure reaching the provider:
// connection refused, DNS failure, client timeout. Nothing at this
// layer retries; the caller decides.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx response from the token endpoint. Code and
// Description carry the provider's structured error body when it
// parses; otherwise Code is "unknown" and RawBody holds the response as
// received.
type ProtocolError struct {
	StatusCode  int
	Code        string
	Description string
	RawBody     string
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("token request rejected (%d): %s: %s", e.StatusCode, e.Code, e.Description)
	case e.RawBody != "":
		return fmt.Sprintf("token request rejected (%d): %s: %s", e.StatusCode, e.Code, e.RawBody)
	default:
		return fmt.Sprintf("token request rejected (%d): %s", e.StatusCode, e.Code)
	}
}

// ParseError is a malformed JSON body on an otherwise successful token
// response.
type ParseError struct {
	Err  error
	Body string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse token response: %v - body: %s", e.Err, e.Body)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PortUnavailableError means the loopback callback port could not be
// bound, which is fatal for the current desktop attempt.
type PortUnavailableError struct {
	Port int
	Err  error
}

func (e *PortUnavailableError) Error() string {
	return fmt.Sprintf("callback port %d unavailable: %v", e.Port, e.Err)
}

func (e *PortUnavailableError) Unwrap() error { return e.Err }

// ProviderError is the authorize step reporting an error query
// parameter on the redirect, for example access_denied.
type ProviderError struct {
	Code string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("authorization failed: %s", e.Code)
}
