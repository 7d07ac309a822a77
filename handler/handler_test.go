package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kcolemangt/llm-gateway/auth"
	"github.com/kcolemangt/llm-gateway/model"
	"go.uber.org/zap"
)

const accessCode = "team-secret"

type recorded struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// recordingUpstream captures every request it receives. A nil respond writes {"ok":true}.
func recordingUpstream(t *testing.T, respond http.HandlerFunc) (*httptest.Server, chan recorded) {
	t.Helper()
	reqs := make(chan recorded, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- recorded{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     body,
		}
		if respond != nil {
			respond(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func nextRequest(t *testing.T, reqs chan recorded) recorded {
	t.Helper()
	select {
	case r := <-reqs:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("upstream received no request")
		return recorded{}
	}
}

func requireCode(cfg *model.ServerConfig) *model.ServerConfig {
	cfg.NeedCode = true
	cfg.Codes = map[string]struct{}{auth.HashCode(accessCode): {}}
	return cfg
}

func newTestGateway(t *testing.T, cfg *model.ServerConfig) (*Gateway, *httptest.Server) {
	t.Helper()
	g := New(cfg, nil, zap.NewNop())
	g.retrier.Sleep = func(context.Context, time.Duration) error { return nil }
	srv := httptest.NewServer(NewRouter(g))
	t.Cleanup(srv.Close)
	return g, srv
}

func send(t *testing.T, method, url, body string, header map[string]string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(raw)
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	_, srv := newTestGateway(t, &model.ServerConfig{})
	res, body := send(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if res.StatusCode != http.StatusOK || body != "ok" {
		t.Fatalf("healthz = %d %q", res.StatusCode, body)
	}
}

func TestPreflightIsAnsweredWithoutAuth(t *testing.T) {
	_, srv := newTestGateway(t, requireCode(&model.ServerConfig{}))

	for _, path := range []string{"/api/openai/v1/chat/completions", "/api/deepseek/chat/completions", "/api/google/v1beta/models", "/api/whatever/x"} {
		res, body := send(t, http.MethodOptions, srv.URL+path, "", map[string]string{
			"Origin":                        "https://chat.example.com",
			"Access-Control-Request-Method": "POST",
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", path, res.StatusCode)
		}
		if decode(t, body)["body"] != "OK" {
			t.Fatalf("%s: body = %q", path, body)
		}
		if got := res.Header.Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
			t.Fatalf("%s: allow-origin = %q", path, got)
		}
		if res.Header.Get("Access-Control-Allow-Methods") == "" {
			t.Fatalf("%s: missing allow-methods", path)
		}
	}
}

func TestEveryPrefixHasExactlyOneRoute(t *testing.T) {
	routes := defaultRoutes()
	providers := DefaultProviders()
	for _, bespoke := range []string{PathOpenAI, PathAzure, PathGoogle, PathBaidu, PathStability} {
		if _, dup := providers[bespoke]; dup {
			t.Fatalf("%s claimed by both the registry and a bespoke handler", bespoke)
		}
		if _, ok := routes[bespoke]; !ok {
			t.Fatalf("%s has no route", bespoke)
		}
	}
	if len(routes) != len(providers)+5 {
		t.Fatalf("routes = %d, want %d", len(routes), len(providers)+5)
	}
	for prefix, pc := range providers {
		if prefix != pc.PathPrefix {
			t.Fatalf("registry key %q does not match prefix %q", prefix, pc.PathPrefix)
		}
	}
}

func TestAuthFailureReturns401WithResult(t *testing.T) {
	_, srv := newTestGateway(t, requireCode(&model.ServerConfig{DeepSeekAPIKey: "sk-deep"}))

	tests := []struct {
		name   string
		header map[string]string
		msg    string
	}{
		{"no credentials", nil, auth.MsgEmptyAccessCode},
		{"unknown code", map[string]string{"Authorization": "Bearer ak-guess"}, auth.MsgWrongAccessCode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, body := send(t, http.MethodPost, srv.URL+"/api/deepseek/chat/completions", `{"model":"deepseek-chat"}`, tc.header)
			if res.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d", res.StatusCode)
			}
			got := decode(t, body)
			if got["error"] != true || got["msg"] != tc.msg {
				t.Fatalf("body = %v", got)
			}
		})
	}
}
