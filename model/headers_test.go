package model

import "testing"

func TestHeaderMap_preservesFirstCasing(t *testing.T) {
	h := NewHeaderMap()
	h.Set("X-Request-Id", "abc")
	h.Set("x-request-id", "def")

	if got, ok := h.Get("X-REQUEST-ID"); !ok || got != "def" {
		t.Fatalf("Get = (%q, %v), want (%q, true)", got, ok, "def")
	}
	if h.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", h.Len())
	}
	seen := false
	h.Range(func(k, v string) {
		if k != "X-Request-Id" {
			t.Fatalf("Range key = %q, want original casing %q", k, "X-Request-Id")
		}
		seen = true
	})
	if !seen {
		t.Fatal("Range did not visit the single entry")
	}
}

func TestHeaderMap_nilSafe(t *testing.T) {
	var h *HeaderMap
	if _, ok := h.Get("anything"); ok {
		t.Fatal("Get on nil HeaderMap should miss")
	}
	if h.Has("anything") {
		t.Fatal("Has on nil HeaderMap should be false")
	}
	if h.Len() != 0 {
		t.Fatal("Len on nil HeaderMap should be 0")
	}
}

func TestHeaderMap_ToMap(t *testing.T) {
	h := NewHeaderMap()
	h.Set("Accept", "application/json")
	h.Set("X-Correlation-Id", "corr-1")

	m := h.ToMap()
	if m["Accept"] != "application/json" || m["X-Correlation-Id"] != "corr-1" {
		t.Fatalf("ToMap() = %+v, missing expected entries", m)
	}
}
