package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Model.Name == "" || cfg.Model.Endpoint == "" {
		t.Error("model defaults missing")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":9000\"\ndatabase_url: postgres://db/custom\nmodel:\n  name: llama3\n  endpoint: http://localhost:11434/v1\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7777")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7777" {
		t.Errorf("env override lost: addr = %q", cfg.Addr)
	}
	if cfg.DatabaseURL != "postgres://db/custom" {
		t.Errorf("database_url = %q", cfg.DatabaseURL)
	}
	if cfg.Model.Name != "llama3" {
		t.Errorf("model.name = %q", cfg.Model.Name)
	}
	if cfg.Model.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Model.APIKey)
	}
}

func TestLoadRejectsBadTemperature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model:\n  temperature: 3.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}
