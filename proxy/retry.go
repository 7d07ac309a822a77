package proxy

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryOptions bound the retry loop around one upstream fetch.
type RetryOptions struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int
}

// DefaultRetryOptions returns 3 attempts, 500ms base, 5s cap, retry on 429/502/503/504.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		RetryableStatuses: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	def := DefaultRetryOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = def.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = def.MaxDelay
	}
	if len(o.RetryableStatuses) == 0 {
		o.RetryableStatuses = def.RetryableStatuses
	}
	return o
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Retrier re-sends a request on retryable statuses and transport errors with
// exponential backoff. Each call is independent; attempts run sequentially.
type Retrier struct {
	Client  Doer
	Options RetryOptions
	Logger  *zap.Logger

	// Jitter and Sleep are replaced in tests.
	Jitter func() time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier with random jitter and a context-aware sleep.
func NewRetrier(client Doer, opts RetryOptions, logger *zap.Logger) *Retrier {
	return &Retrier{
		Client:  client,
		Options: opts,
		Logger:  logger,
		Jitter:  defaultJitter,
		Sleep:   sleepContext,
	}
}

func defaultJitter() time.Duration {
	return rand.N(300 * time.Millisecond)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff is the delay before the attempt following attempt k (1-based).
func (r *Retrier) Backoff(k int) time.Duration {
	opts := r.Options.withDefaults()
	d := opts.BaseDelay << (k - 1)
	if r.Jitter != nil {
		d += r.Jitter()
	}
	if d > opts.MaxDelay || d <= 0 {
		d = opts.MaxDelay
	}
	return d
}

// Do sends req, retrying per Options. A request with a body must have GetBody set
// for retries to happen; otherwise the first outcome is returned.
func (r *Retrier) Do(req *http.Request) (*http.Response, error) {
	opts := r.Options.withDefaults()
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := req.Context()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		attemptReq := req
		if attempt > 1 {
			var err error
			if attemptReq, err = rewind(req); err != nil {
				return nil, err
			}
		}

		res, err := r.Client.Do(attemptReq)
		last := attempt == opts.MaxAttempts || !replayable(req)
		if err != nil {
			if IsCancellation(err) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			if last {
				return nil, err
			}
			logger.Warn("Upstream fetch failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		} else {
			if isStream(res) || !slices.Contains(opts.RetryableStatuses, res.StatusCode) || last {
				return res, nil
			}
			logger.Warn("Upstream returned retryable status",
				zap.String("url", req.URL.String()),
				zap.Int("status", res.StatusCode),
				zap.Int("attempt", attempt))
			drain(res)
		}

		if err := r.sleep(ctx, r.Backoff(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep == nil {
		return sleepContext(ctx, d)
	}
	return r.Sleep(ctx, d)
}

// IsCancellation reports whether err is a timeout or caller abort.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isStream(res *http.Response) bool {
	return strings.Contains(res.Header.Get("Content-Type"), "stream")
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
}
