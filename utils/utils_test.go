package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMaskSecretsOpenAIKey(t *testing.T) {
	key := "sk-abcdefghijklmnopqrstuvwxyz0" // 30 chars
	got := MaskSecrets("using key " + key + " for request")
	if strings.Contains(got, key) {
		t.Fatalf("full key leaked: %q", got)
	}
	want := "using key sk-abcde***xyz0 for request"
	if got != want {
		t.Fatalf("MaskSecrets = %q, want %q", got, want)
	}
}

func TestMaskSecretsHexRun(t *testing.T) {
	hex := strings.Repeat("a1b2c3d4e5", 4)
	got := MaskSecrets(hex)
	if got != "a1b2c3d4***d4e5" {
		t.Fatalf("MaskSecrets(hex) = %q", got)
	}
}

func TestMaskSecretsBearer(t *testing.T) {
	got := MaskSecrets("Authorization: Bearer abcdefghijklmnop")
	if strings.Contains(got, "abcdefghijklmnop") {
		t.Fatalf("bearer token leaked: %q", got)
	}
	if got != "Authorization: Bearer a***mnop" {
		t.Fatalf("MaskSecrets = %q", got)
	}
}

func TestMaskSecretsLeavesShortAndPlainText(t *testing.T) {
	for _, in := range []string{"", "hello world", "sk-short", "Bearer abc"} {
		if got := MaskSecrets(in); got != in {
			t.Errorf("MaskSecrets(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestKeyInfo(t *testing.T) {
	if got := KeyInfo(""); got != "key not set" {
		t.Fatalf("KeyInfo(empty) = %q", got)
	}
	if got := KeyInfo("sk-1234567890"); got != "key length: 13, prefix: sk-123***" {
		t.Fatalf("KeyInfo = %q", got)
	}
	if got := KeyInfo("abc"); got != "key length: 3, prefix: abc***" {
		t.Fatalf("KeyInfo(short) = %q", got)
	}
}

func TestStripBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer sk-1":     "sk-1",
		"  Bearer  ak-x ": "ak-x",
		"raw-key":         "raw-key",
		"":                "",
	}
	for in, want := range cases {
		if got := StripBearer(in); got != want {
			t.Errorf("StripBearer(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("remote addr fallback = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")
	if got := ClientIP(r); got != "1.1.1.1" {
		t.Fatalf("forwarded-for = %q", got)
	}
	r.Header.Set("X-Real-IP", "3.3.3.3")
	if got := ClientIP(r); got != "3.3.3.3" {
		t.Fatalf("real ip = %q", got)
	}
}
