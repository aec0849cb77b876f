package config_test

import (
	"testing"
	"time"

	"github.com/robertarktes/tour-booking-dashboard/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "BACKEND_MODE", "BACKEND_URL", "LIVE_SOURCE", "TOUR_DURATION_DAYS", "CACHE_TTL", "LIVE_RECONNECT"} {
		t.Setenv(k, "")
	}
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("expected :8081, got %s", cfg.HTTPAddr)
	}
	if cfg.TourDurationDays != 3 {
		t.Errorf("expected 3 day tours, got %d", cfg.TourDurationDays)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s cache ttl, got %v", cfg.CacheTTL)
	}
	if !cfg.LiveReconnect {
		t.Error("expected reconnect enabled by default")
	}
	if cfg.ChartYear != time.Now().UTC().Year() {
		t.Errorf("expected current year, got %d", cfg.ChartYear)
	}
}

func TestLoad_SQLModeRequiresDSN(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("BACKEND_MODE", "sql")
	t.Setenv("CRDB_DSN", "")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error without CRDB_DSN")
	}
}

func TestLoad_RejectsUnknownLiveSource(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("BACKEND_MODE", "")
	t.Setenv("LIVE_SOURCE", "carrier-pigeon")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for unknown live source")
	}
}
