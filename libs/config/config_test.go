package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "fee-router" || cfg.HTTP.Port != 8080 || cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LogFile.Path != "" || cfg.Trace.Endpoint != "" {
		t.Fatalf("file logging and trace export must be off by default")
	}
	if cfg.Trace.SampleRatio != 1 {
		t.Fatalf("unexpected sample ratio %v", cfg.Trace.SampleRatio)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "service_name: router-test\nhttp:\n  port: 9000\nlog_file:\n  path: /tmp/router.log\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROUTER_HTTP_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "router-test" || cfg.HTTP.Port != 9100 || cfg.LogFile.Path != "/tmp/router.log" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("ROUTER_HTTP_PORT", "0")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for zero port")
	}
}

func TestLoadRejectsSampleRatio(t *testing.T) {
	t.Setenv("ROUTER_TRACE_SAMPLE_RATIO", "1.5")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for sample ratio above 1")
	}
}
