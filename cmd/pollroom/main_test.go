package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"pollroom/internal/app"
	"pollroom/internal/config"
)

func TestConfigFileEnvName(t *testing.T) {
	if ConfigFileEnv != "POLLROOM_CONFIG_FILE" {
		t.Errorf("Unexpected config file variable %q", ConfigFileEnv)
	}
}

func TestConfigFileDrivesApplication(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pollroom.json")
	body := `{"archive": {"path": "` + filepath.ToSlash(filepath.Join(dir, "h.db")) + `"}, "poll": {"default_time_limit": 45}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg := config.LoadConfigWithPrecedence(path)
	if cfg.Poll.DefaultTimeLimit != 45 {
		t.Errorf("Expected default time limit 45 from file, got %d", cfg.Poll.DefaultTimeLimit)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	defer application.Stop(context.Background())

	if application.GetAddr() != cfg.Address() {
		t.Errorf("Expected address %s, got %s", cfg.Address(), application.GetAddr())
	}
}
