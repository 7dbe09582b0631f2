package auth

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"budgetview-go/internal/metrics"
)

// readBufferSize bounds the single read taken per connection. A redirect
// whose request line exceeds it is truncated; provider redirects fit
// comfortably.
const readBufferSize = 4096

// CallbackListener receives the provider's loopback redirect on the
// desktop flow. It speaks just enough HTTP/1.1 to read one request line
// per connection: a single fixed-size read, no header or body parsing,
// and no percent-decoding of query values. Connections are handled
// strictly sequentially, so at most one code comes out of a flow
// attempt.
type CallbackListener struct {
	ln     net.Listener
	logger logrus.FieldLogger
}

// BindCallbackListener binds the loopback callback port. The port must
// be bound before the browser is launched so the redirect cannot race
// the listener; a bind failure is fatal for the attempt and reported as
// a PortUnavailableError.
func BindCallbackListener(port int, logger logrus.FieldLogger) (*CallbackListener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, &PortUnavailableError{Port: port, Err: err}
	}
	return &CallbackListener{ln: ln, logger: logger}, nil
}

// Addr reports the bound address.
func (l *CallbackListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections.
func (l *CallbackListener) Close() error {
	return l.ln.Close()
}

// Wait accepts connections until a redirect carrying an authorization
// code arrives with a state matching expectedState (or with no state at
// all), and returns that code. A redirect carrying an error parameter
// terminates with a ProviderError. Everything else - wrong paths, stray
// browser requests such as favicon fetches, state mismatches - is
// absorbed and the wait continues.
//
// The wait itself is unbounded; the caller bounds it through ctx, whose
// cancellation closes the listener and any connection being read, and
// returns ctx.Err().
func (l *CallbackListener) Wait(ctx context.Context, expectedState string) (string, error) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("accept failed: %w", err)
		}
		// An accepted connection that never sends data must not pin the
		// wait past its bound; ctx expiry closes it mid-read.
		stopConn := context.AfterFunc(ctx, func() { conn.Close() })
		code, done, err := l.handle(conn, expectedState)
		stopConn()
		conn.Close()
		if done {
			return code, err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

// handle serves one connection. done reports whether the flow should
// terminate, either with a code or with a provider error.
func (l *CallbackListener) handle(conn net.Conn, expectedState string) (code string, done bool, err error) {
	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		l.logger.WithError(err).Debug("failed to read callback request")
		return "", false, nil
	}

	line, _, _ := strings.Cut(string(buf[:n]), "\r\n")
	path, query, ok := parseRequestLine(line)
	if !ok || path != "/callback" {
		metrics.CallbackRequests.WithLabelValues("not_found").Inc()
		writeResponse(conn, "404 Not Found", "")
		return "", false, nil
	}

	params := parseQuery(query)

	if errCode, ok := params["error"]; ok {
		metrics.CallbackRequests.WithLabelValues("provider_error").Inc()
		writeResponse(conn, "200 OK", errorPage(errCode))
		return "", true, &ProviderError{Code: errCode}
	}

	if state, ok := params["state"]; ok && state != expectedState {
		// Not terminal: stray requests land here, but so would a forged
		// callback, hence the counter.
		metrics.StateMismatches.Inc()
		l.logger.WithField("state", state).Debug("callback state mismatch, ignoring request")
		return "", false, nil
	}

	if code, ok := params["code"]; ok {
		metrics.CallbackRequests.WithLabelValues("code").Inc()
		writeResponse(conn, "200 OK", successPage)
		return code, true, nil
	}

	metrics.CallbackRequests.WithLabelValues("not_found").Inc()
	writeResponse(conn, "404 Not Found", "")
	return "", false, nil
}

// parseRequestLine splits "GET /callback?a=b HTTP/1.1" into path and raw
// query. Only GET requests are recognised.
func parseRequestLine(line string) (path, query string, ok bool) {
	target, found := strings.CutPrefix(line, "GET ")
	if !found {
		return "", "", false
	}
	if i := strings.Index(target, " HTTP"); i >= 0 {
		target = target[:i]
	}
	path, query, _ = strings.Cut(target, "?")
	return path, query, true
}

// parseQuery splits a raw query string on '&' and '='. Values are kept
// exactly as sent; nothing is percent-decoded.
func parseQuery(query string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if key, value, ok := strings.Cut(pair, "="); ok {
			params[key] = value
		}
	}
	return params
}

func writeResponse(conn net.Conn, status, body string) {
	resp := fmt.Sprintf(
		"HTTP/1.1 %s\r\nContent-Type: text/html; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, len(body), body,
	)
	_, _ = conn.Write([]byte(resp))
}

const successPage = `<!DOCTYPE html>
<html><head><title>Connected</title></head><body>
<h1>Connected to Dropbox</h1>
<p>You can close this window and return to the application.</p>
</body></html>`

func errorPage(code string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>Authorization Error</title></head><body>
<h1>Authorization Error</h1>
<p>%s</p>
<p>You can close this window.</p>
</body></html>`, code)
}
