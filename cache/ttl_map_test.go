package cache

import (
	"testing"
	"time"
)

func TestTTLMapExpiry(t *testing.T) {
	m := NewTTLMap[string, int]()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.SetWithTTL("a", 1, now, time.Minute)
	if v, ok := m.GetFresh("a", now.Add(30*time.Second)); !ok || v != 1 {
		t.Fatalf("expected fresh value, got %v %v", v, ok)
	}
	if _, ok := m.GetFresh("a", now.Add(time.Minute)); ok {
		t.Fatalf("value should be stale at expiry")
	}

	m.SetWithTTL("b", 2, now, 0)
	if _, ok := m.GetFresh("b", now.Add(24*time.Hour)); !ok {
		t.Fatalf("zero ttl should never expire")
	}

	m.Delete("b")
	if m.Len() != 1 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestTTLMapNilSafe(t *testing.T) {
	var m *TTLMap[string, string]
	m.SetWithTTL("x", "y", time.Now(), time.Second)
	m.Delete("x")
	if _, ok := m.GetFresh("x", time.Now()); ok || m.Len() != 0 {
		t.Fatalf("nil map should behave as empty")
	}
}
