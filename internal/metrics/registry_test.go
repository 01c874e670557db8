package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestInitDefault(t *testing.T) {
	// Reset before test
	Reset()

	m := InitDefault()
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	if Default == nil {
		t.Fatal("expected Default to be set, got nil")
	}

	if m != Default {
		t.Error("expected returned metrics to be same as Default")
	}

	// Calling again should return same instance
	m2 := InitDefault()
	if m2 != m {
		t.Error("expected same instance on second call")
	}
}

func TestGetDefault(t *testing.T) {
	// Note: We cannot fully test the lazy initialization path (when Default is nil)
	// because it would require Reset(), which causes Prometheus registry conflicts.
	// The lazy initialization is implicitly tested by TestInitDefault.

	m := GetDefault()
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	if Default == nil {
		t.Fatal("expected Default to be set, got nil")
	}

	// Calling again should return same instance
	m2 := GetDefault()
	if m2 != m {
		t.Error("expected same instance on second call")
	}

	if m != Default {
		t.Error("expected GetDefault to return Default instance")
	}
}

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()

	if reg == nil {
		t.Fatal("expected registry, got nil")
	}

	if m == nil {
		t.Fatal("expected metrics, got nil")
	}

	// Verify metrics are registered with the custom registry
	m.Dispatches.WithLabelValues("draft").Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if *mf.Name == "storyforge_scheduler_dispatches_total" {
			found = true
			break
		}
	}

	if !found {
		t.Error("metrics not registered with custom registry")
	}
}

func TestHandlerFor(t *testing.T) {
	// Use custom registry to avoid conflicts with default
	reg, m := NewRegistry()

	m.Dispatches.WithLabelValues("draft").Inc()

	handler := HandlerFor(reg, promhttp.HandlerOpts{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, "storyforge_scheduler_dispatches_total") {
		t.Error("metrics output does not contain dispatches_total")
	}
}
