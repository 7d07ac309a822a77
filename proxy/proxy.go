package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultUpstreamTimeout bounds one proxied request end to end.
const DefaultUpstreamTimeout = 10 * time.Minute

// WithUpstreamTimeout derives the context every upstream call runs under. Cancelling
// the parent (client went away) or hitting the deadline aborts the in-flight fetch and
// tears down a streaming body.
func WithUpstreamTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultUpstreamTimeout
	}
	return context.WithTimeout(ctx, d)
}

// NewUpstreamRequest builds an outbound request. A non-nil body is buffered so the
// request can be replayed by a Retrier.
func NewUpstreamRequest(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if header != nil {
		req.Header = header
	}
	// let the transport negotiate and decode compression itself
	req.Header.Del("Accept-Encoding")
	return req, nil
}

// NewStreamingRequest forwards body without buffering it. It is not replayable.
func NewStreamingRequest(ctx context.Context, method, url string, body io.Reader, header http.Header) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if header != nil {
		req.Header = header
	}
	req.Header.Del("Accept-Encoding")
	return req, nil
}

// NewHTTPClient returns a client that never follows redirects, so 3xx responses are
// passed back to the caller unchanged.
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// WriteResponse copies an upstream response to w with cleaned headers, flushing as
// bytes arrive. It closes res.Body.
func WriteResponse(w http.ResponseWriter, res *http.Response, header http.Header, logger *zap.Logger) error {
	defer res.Body.Close()

	dst := w.Header()
	for k, v := range header {
		dst[k] = v
	}
	dst.Del("Content-Length")
	w.WriteHeader(res.StatusCode)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := res.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				logger.Debug("Client write failed", zap.Error(writeErr))
				return writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			if IsCancellation(readErr) {
				logger.Info("Upstream stream cancelled", zap.Error(readErr))
			} else {
				logger.Warn("Upstream stream read failed", zap.Error(readErr))
			}
			return readErr
		}
	}
}
