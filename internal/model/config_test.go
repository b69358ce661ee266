package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CMS.Origin != "https://proyectomalharro.onrender.com" || cfg.CMS.TimeoutSec != 30 {
		t.Fatalf("unexpected cms defaults %+v", cfg.CMS)
	}
	if cfg.Inbox.PollIntervalSec != 120 || cfg.Inbox.PageSize != 200 {
		t.Fatalf("unexpected inbox defaults %+v", cfg.Inbox)
	}
	if len(cfg.Roles.Staff) != 3 || cfg.OAuth.ProxyAddr != ":8787" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Roles, cfg.OAuth)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `cms:
  base_url: https://file.example.com/api
  timeout_sec: 5
inbox:
  page_size: 0
fallbacks:
  usinas:
    titulo: Sin título
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("MALHARRO_API_TOKEN", "public-token")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CMS.BaseURL != "https://file.example.com/api" || cfg.CMS.Timeout().Seconds() != 5 {
		t.Fatalf("unexpected cms config %+v", cfg.CMS)
	}
	if cfg.CMS.PublicToken != "public-token" {
		t.Fatalf("expected token from env, got %q", cfg.CMS.PublicToken)
	}
	if cfg.Inbox.PageSize != 200 {
		t.Fatalf("expected non-positive page size replaced by default, got %d", cfg.Inbox.PageSize)
	}
	if got := cfg.FallbacksFor("usinas")["titulo"]; got != "Sin título" {
		t.Fatalf("unexpected fallback %v", got)
	}
	if cfg.FallbacksFor("agendas") != nil {
		t.Fatalf("expected no agenda fallbacks")
	}

	t.Setenv("MALHARRO_API_URL", "https://env.example.com/api")
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CMS.BaseURL != "https://env.example.com/api" {
		t.Fatalf("expected env to override file, got %q", cfg.CMS.BaseURL)
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.CMS.BaseURL = "https://cms.example.com/api"
	cfg.Inbox.PageSize = 50

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if got.CMS.BaseURL != cfg.CMS.BaseURL || got.Inbox.PageSize != 50 {
		t.Fatalf("saved config not reloaded: %+v %+v", got.CMS, got.Inbox)
	}
}
