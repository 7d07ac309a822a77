package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kcolemangt/llm-gateway/config"
	"go.uber.org/zap"
)

func TestCheckConfigReportsKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-check-config-key")
	t.Setenv("DEEPSEEK_API_KEY", "")
	t.Setenv("CODE", "one,two")
	path := filepath.Join(t.TempDir(), "gateway.toml")
	if err := os.WriteFile(path, []byte("listen_addr = \"127.0.0.1:4000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"check-config", "--config", path, "--log-level", "error"})
	if err := root.Execute(); err != nil {
		t.Fatalf("check-config: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"listen address: 127.0.0.1:4000",
		`access codes: 2 (prefix "ak-")`,
		"key length: 19, prefix: sk-che***",
		"key not set",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "sk-check-config-key") {
		t.Errorf("full key printed:\n%s", got)
	}
}

func TestCheckConfigRejectsInvalidConfig(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "not-an-address")
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check-config", "--config", filepath.Join(t.TempDir(), "none.toml"), "--log-level", "error"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected invalid listen address to fail")
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestRedirectHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://llm.example.com/api/openai/v1/models?x=1", nil)
	rec := httptest.NewRecorder()
	redirectHTTPS(rec, req)
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://llm.example.com/api/openai/v1/models?x=1" {
		t.Fatalf("Location = %q", got)
	}
}
