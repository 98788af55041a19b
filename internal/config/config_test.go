package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.SampleInterval.Duration != time.Second {
		t.Errorf("SampleInterval = %v, want 1s", cfg.SampleInterval)
	}
	if cfg.Chart.Capacity != 60 {
		t.Errorf("Chart.Capacity = %d, want 60", cfg.Chart.Capacity)
	}
	if cfg.Window.Retention.Duration != 5*time.Minute {
		t.Errorf("Window.Retention = %v, want 5m", cfg.Window.Retention)
	}
	if cfg.Peak.Window.Duration != time.Minute {
		t.Errorf("Peak.Window = %v, want 1m", cfg.Peak.Window)
	}
	if cfg.FPS.Floor != 30 {
		t.Errorf("FPS.Floor = %d, want 30", cfg.FPS.Floor)
	}
	if !cfg.FastPath {
		t.Error("FastPath should default to true")
	}
	if cfg.Sources.ProcRoot != "/proc" {
		t.Errorf("ProcRoot = %q", cfg.Sources.ProcRoot)
	}
	if cfg.Level() != log.INFO {
		t.Errorf("Level = %v, want INFO", cfg.Level())
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
sample_interval: 500ms
chart:
  capacity: 120
window:
  retention: 10m
peak:
  report_interval: 0s
fast_path: false
sources:
  proc_root: /host/proc
log_level: DEBUG
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.SampleInterval.Duration != 500*time.Millisecond {
		t.Errorf("SampleInterval = %v", cfg.SampleInterval)
	}
	if cfg.Chart.Capacity != 120 {
		t.Errorf("Capacity = %d", cfg.Chart.Capacity)
	}
	if cfg.Window.Retention.Duration != 10*time.Minute {
		t.Errorf("Retention = %v", cfg.Window.Retention)
	}
	if cfg.Peak.ReportInterval.Duration != 0 {
		t.Errorf("ReportInterval = %v, want 0", cfg.Peak.ReportInterval)
	}
	if cfg.Peak.Window.Duration != time.Minute {
		t.Errorf("Peak.Window lost its default: %v", cfg.Peak.Window)
	}
	if cfg.FastPath {
		t.Error("FastPath should be false")
	}
	if cfg.Sources.ProcRoot != "/host/proc" {
		t.Errorf("ProcRoot = %q", cfg.Sources.ProcRoot)
	}
	if cfg.Sources.ThermalZone != Default().Sources.ThermalZone {
		t.Errorf("ThermalZone lost its default: %q", cfg.Sources.ThermalZone)
	}
	if cfg.Level() != log.DEBUG {
		t.Errorf("Level = %v, want DEBUG", cfg.Level())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"fast interval", "sample_interval: 10ms", "sample_interval"},
		{"bad duration", "sample_interval: soon", "invalid duration"},
		{"zero capacity", "chart:\n  capacity: 0", "chart.capacity"},
		{"negative floor", "fps:\n  floor: -1", "fps.floor"},
		{"log level", "log_level: chatty", "log_level"},
		{"empty proc root", "sources:\n  proc_root: \"\"", "proc_root"},
		{"not yaml", "chart: [", "error parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("missing file should give defaults, got %q", cfg.Server.Addr)
	}

	path := filepath.Join(t.TempDir(), "sysmetrics.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("chart:\n  capacity: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), bad) {
		t.Fatalf("Load bad = %v, want error naming the file", err)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte(" 90s ")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("Duration = %v", d.Duration)
	}
	text, _ := d.MarshalText()
	if string(text) != "1m30s" {
		t.Fatalf("MarshalText = %q", text)
	}
}
