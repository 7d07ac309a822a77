package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedDoer struct {
	steps  []func(*http.Request) (*http.Response, error)
	calls  int
	bodies []string
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(b))
	}
	step := d.steps[d.calls]
	d.calls++
	return step(req)
}

func status(code int, contentType string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		h := http.Header{}
		h.Set("Content-Type", contentType)
		return &http.Response{
			StatusCode: code,
			Header:     h,
			Body:       io.NopCloser(strings.NewReader(`{}`)),
			Request:    req,
		}, nil
	}
}

func failWith(err error) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) { return nil, err }
}

func newTestRetrier(d Doer, opts RetryOptions) (*Retrier, *[]time.Duration) {
	var slept []time.Duration
	r := NewRetrier(d, opts, nil)
	r.Jitter = func() time.Duration { return 0 }
	r.Sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return r, &slept
}

func newGet(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://api.test/v1/chat", nil)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestRetrierReturnsSuccessImmediately(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(200, "application/json")}}
	r, _ := newTestRetrier(d, RetryOptions{})
	res, err := r.Do(newGet(t))
	if err != nil || res.StatusCode != 200 || d.calls != 1 {
		t.Fatalf("status=%v err=%v calls=%d", res, err, d.calls)
	}
}

func TestRetrierDoesNotRetryNonRetryable4xx(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(400, "application/json")}}
	r, _ := newTestRetrier(d, RetryOptions{})
	res, err := r.Do(newGet(t))
	if err != nil || res.StatusCode != 400 || d.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestRetrierRetriesRetryableStatuses(t *testing.T) {
	for _, code := range []int{429, 502, 503, 504} {
		d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){
			status(code, "application/json"),
			status(200, "application/json"),
		}}
		r, slept := newTestRetrier(d, RetryOptions{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond})
		res, err := r.Do(newGet(t))
		if err != nil || res.StatusCode != 200 {
			t.Fatalf("%d: err=%v res=%v", code, err, res)
		}
		if d.calls != 2 {
			t.Fatalf("%d: calls = %d, want 2", code, d.calls)
		}
		if len(*slept) != 1 || (*slept)[0] != 10*time.Millisecond {
			t.Fatalf("%d: slept = %v", code, *slept)
		}
	}
}

func TestRetrierReturnsLastRetryableResponseWhenExhausted(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){
		status(429, "application/json"),
		status(429, "application/json"),
		status(429, "application/json"),
	}}
	r, slept := newTestRetrier(d, RetryOptions{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	res, err := r.Do(newGet(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != 429 || d.calls != 3 {
		t.Fatalf("status=%d calls=%d", res.StatusCode, d.calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("backoff = %v, want %v", *slept, want)
	}
}

func TestRetrierNeverRetriesStreams(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(503, "text/event-stream")}}
	r, _ := newTestRetrier(d, RetryOptions{})
	res, err := r.Do(newGet(t))
	if err != nil || res.StatusCode != 503 || d.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestRetrierRetriesNetworkErrors(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){
		failWith(errors.New("connection reset")),
		status(200, "application/json"),
	}}
	r, _ := newTestRetrier(d, RetryOptions{})
	res, err := r.Do(newGet(t))
	if err != nil || res.StatusCode != 200 || d.calls != 2 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestRetrierDoesNotRetryCancellation(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){failWith(cause)}}
		r, _ := newTestRetrier(d, RetryOptions{MaxAttempts: 5})
		_, err := r.Do(newGet(t))
		if !errors.Is(err, cause) || d.calls != 1 {
			t.Fatalf("err=%v calls=%d", err, d.calls)
		}
	}
}

func TestRetrierReturnsLastErrorWhenExhausted(t *testing.T) {
	last := errors.New("dial tcp: refused #3")
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){
		failWith(errors.New("dial tcp: refused #1")),
		failWith(errors.New("dial tcp: refused #2")),
		failWith(last),
	}}
	r, _ := newTestRetrier(d, RetryOptions{MaxAttempts: 3})
	_, err := r.Do(newGet(t))
	if !errors.Is(err, last) || d.calls != 3 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestRetrierCustomRetryableStatuses(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){
		status(418, "application/json"),
		status(200, "application/json"),
	}}
	r, _ := newTestRetrier(d, RetryOptions{RetryableStatuses: []int{418}})
	res, err := r.Do(newGet(t))
	if err != nil || res.StatusCode != 200 || d.calls != 2 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}

	d = &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(429, "application/json")}}
	r, _ = newTestRetrier(d, RetryOptions{RetryableStatuses: []int{418}})
	res, _ = r.Do(newGet(t))
	if res.StatusCode != 429 || d.calls != 1 {
		t.Fatalf("429 should not be retried with a custom set, calls=%d", d.calls)
	}
}

func TestRetrierSingleAttempt(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(503, "application/json")}}
	r, _ := newTestRetrier(d, RetryOptions{MaxAttempts: 1})
	res, err := r.Do(newGet(t))
	if err != nil || res.StatusCode != 503 || d.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestRetrierReplaysBody(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){
		status(502, "application/json"),
		status(200, "application/json"),
	}}
	r, _ := newTestRetrier(d, RetryOptions{})
	req, err := NewUpstreamRequest(context.Background(), http.MethodPost, "https://api.test/v1/chat", []byte(`{"model":"m"}`), http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Do(req); err != nil {
		t.Fatal(err)
	}
	if len(d.bodies) != 2 || d.bodies[0] != `{"model":"m"}` || d.bodies[1] != `{"model":"m"}` {
		t.Fatalf("bodies = %q", d.bodies)
	}
}

func TestRetrierDoesNotReplayUnbufferedBody(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(502, "application/json")}}
	r, _ := newTestRetrier(d, RetryOptions{})
	req, err := NewStreamingRequest(context.Background(), http.MethodPost, "https://api.test/v1/chat", io.NopCloser(bytes.NewBufferString("x")), http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Do(req)
	if err != nil || res.StatusCode != 502 || d.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestRetrierStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	d := &scriptedDoer{steps: []func(*http.Request) (*http.Response, error){status(503, "application/json")}}
	r := NewRetrier(d, RetryOptions{BaseDelay: time.Hour, MaxDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.test", nil)
	cancel()
	_, err := r.Do(req)
	if !errors.Is(err, context.Canceled) || d.calls != 1 {
		t.Fatalf("err=%v calls=%d", err, d.calls)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	r := &Retrier{Options: RetryOptions{BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}, Jitter: func() time.Duration { return 250 * time.Millisecond }}
	if got := r.Backoff(1); got != 750*time.Millisecond {
		t.Fatalf("Backoff(1) = %v", got)
	}
	if got := r.Backoff(3); got != 2250*time.Millisecond {
		t.Fatalf("Backoff(3) = %v", got)
	}
	if got := r.Backoff(6); got != 5*time.Second {
		t.Fatalf("Backoff(6) = %v", got)
	}
}
