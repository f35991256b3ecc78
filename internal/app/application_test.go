package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pollroom/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive.db")
	cfg.HTTP.Host = "127.0.0.1"
	return cfg
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"invalid_port", func(c *config.Config) { c.HTTP.Port = 0 }},
		{"empty_archive_path", func(c *config.Config) { c.Archive.Path = "" }},
		{"zero_tick", func(c *config.Config) { c.Poll.TickInterval = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.modify(cfg)

			application, err := NewApplication(cfg)
			if err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
			if application != nil {
				t.Error("Constructor should not return application with invalid config")
			}
		})
	}
}

func TestNewApplication_WithArchive(t *testing.T) {
	application, err := NewApplication(testConfig(t))
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer application.Stop(context.Background())

	if application.archive == nil {
		t.Fatal("Expected archive to be opened")
	}

	srv := httptest.NewServer(application.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /health, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET /api/history failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from /api/history, got %d", resp.StatusCode)
	}
}

func TestNewApplication_ArchiveDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = false
	cfg.Archive.Path = ""

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer application.Stop(context.Background())

	if application.archive != nil {
		t.Error("Archive should not be opened when disabled")
	}

	srv := httptest.NewServer(application.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET /api/history failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 with archive disabled, got %d", resp.StatusCode)
	}
}

func TestApplication_MetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = false

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer application.Stop(context.Background())

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "pollroom_session_polls_created_total") {
		t.Error("Expected session metrics in exposition")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("Expected Go runtime metrics in exposition")
	}
}

func TestApplication_StartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Port = 18931

	application, err := NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
