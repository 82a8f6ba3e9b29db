// Package httputil provides the shared HTTP plumbing for the gateway:
// pooled outbound clients for advisory calls and a semaphore that caps
// concurrent scans in serve mode.
package httputil

import (
	"io"
	"net"
	"net/http"
	"time"
)

// MaxResponseSize is the default cap on response body reads. Advisory
// responses are small JSON documents; anything larger is either a
// misconfigured endpoint or an attempt to exhaust memory.
const MaxResponseSize = 2 * 1024 * 1024 // 2MB

// DefaultTimeout is used when a caller asks for a client without a usable
// timeout.
const DefaultTimeout = 30 * time.Second

// Shared transport with connection pooling. Safe for concurrent use;
// reusing it across clients keeps TCP connections warm between scans.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// Client returns an HTTP client with the given total request timeout.
// The advisory timeout is deployment configuration, so clients are built
// per call; they all share one pooled transport, which is where the
// expensive state lives.
func Client(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

// ReadResponseBody reads an HTTP response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads a response body for diagnostic text. Error payloads
// are truncated further by callers, so the limit here is modest.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 256 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
