package utils

import (
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`\b[A-Fa-f0-9]{40,}\b`),
	regexp.MustCompile(`(?i)Bearer\s+[^\s]{10,}`),
}

// MaskSecrets hides anything that looks like an API key or bearer token, keeping the
// first 8 and last 4 characters of each match.
func MaskSecrets(s string) string {
	if s == "" {
		return s
	}
	for _, re := range secretPatterns {
		s = re.ReplaceAllStringFunc(s, maskMatch)
	}
	return s
}

func maskMatch(m string) string {
	if len(m) <= 12 {
		return m
	}
	return m[:8] + "***" + m[len(m)-4:]
}

// KeyInfo describes a key for logs without revealing it.
func KeyInfo(key string) string {
	if key == "" {
		return "key not set"
	}
	prefix := key
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return "key length: " + strconv.Itoa(len(key)) + ", prefix: " + prefix + "***"
}

// StripBearer trims the value and removes every "Bearer " marker from it.
func StripBearer(value string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(value), "Bearer ", ""))
}

// ClientIP returns X-Real-IP, else the first X-Forwarded-For hop, else the remote host.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
