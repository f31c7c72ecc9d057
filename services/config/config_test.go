package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 9091 {
		t.Fatalf("default ports = %d/%d", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.ClickHouse.Table != "bars" {
		t.Fatalf("default table = %q", cfg.ClickHouse.Table)
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.yaml")
	yaml := `
environment: production
server:
  http_port: 8090
clickhouse:
  addr: ch:9000
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CH_ADDR", "ch-prod:9000")
	t.Setenv("MAX_WORKERS", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "production" {
		t.Fatalf("environment = %q", cfg.Environment)
	}
	if cfg.Server.HTTPPort != 8090 {
		t.Fatalf("http port = %d, want yaml override 8090", cfg.Server.HTTPPort)
	}
	if cfg.Server.GRPCPort != 9091 {
		t.Fatalf("grpc port = %d, want default kept", cfg.Server.GRPCPort)
	}
	if cfg.ClickHouse.Addr != "ch-prod:9000" {
		t.Fatalf("addr = %q, want env to beat yaml", cfg.ClickHouse.Addr)
	}
	if cfg.Engine.MaxWorkers != 4 {
		t.Fatalf("max workers = %d", cfg.Engine.MaxWorkers)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "-1")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for negative port")
	}
	t.Setenv("HTTP_PORT", "8080")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
