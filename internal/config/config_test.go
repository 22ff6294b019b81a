package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/heading.report/internal/serialmux"
	"github.com/banshee-data/heading.report/internal/telemetry"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Port != "" {
		t.Errorf("Port = %q, want empty", cfg.Port)
	}
	if got := cfg.PortOptions().String(); got != "115200 8N1" {
		t.Errorf("PortOptions() = %q, want 115200 8N1", got)
	}
	rt, idle, err := cfg.Durations()
	if err != nil {
		t.Fatalf("Durations() error = %v", err)
	}
	if rt != telemetry.DefaultReadTimeout || idle != telemetry.DefaultIdleInterval {
		t.Errorf("Durations() = %v, %v", rt, idle)
	}
}

func TestLoad_Overlay(t *testing.T) {
	path := writeConfig(t, "headingd.json", `{
		"port": "COM3",
		"baud_rate": 9600,
		"read_timeout": "250ms",
		"record_raw": true
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.Port = "COM3"
	want.BaudRate = 9600
	want.ReadTimeout = "250ms"
	want.RecordRaw = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	rt, _, err := cfg.Durations()
	if err != nil {
		t.Fatalf("Durations() error = %v", err)
	}
	if rt != 250*time.Millisecond {
		t.Errorf("read timeout = %v, want 250ms", rt)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "headingd.yaml", `{}`, ".json extension"},
		{"unknown field", "a.json", `{"baud": 9600}`, "unknown field"},
		{"malformed", "a.json", `{"port":`, "failed to parse"},
		{"bad baud", "a.json", `{"baud_rate": 12345}`, "baud"},
		{"bad duration", "a.json", `{"idle_interval": "soon"}`, "idle_interval"},
		{"zero duration", "a.json", `{"read_timeout": "0s"}`, "must be positive"},
		{"negative history", "a.json", `{"history_length": -1}`, "history_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestLoad_TooLarge(t *testing.T) {
	body := `{"port": "` + strings.Repeat("x", maxFileSize) + `"}`
	_, err := Load(writeConfig(t, "big.json", body))
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("Load() error = %v, want too large", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Parity = "X"
	cfg.ReadTimeout = "-1s"
	cfg.HistoryLength = -5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	msg := err.Error()
	for _, want := range []string{"parity", "read_timeout", "history_length"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validate() error missing %q: %v", want, msg)
		}
	}
}

func TestDurations_EmptyUsesDefaults(t *testing.T) {
	cfg := &Config{}
	rt, idle, err := cfg.Durations()
	if err != nil {
		t.Fatalf("Durations() error = %v", err)
	}
	if rt != telemetry.DefaultReadTimeout || idle != telemetry.DefaultIdleInterval {
		t.Errorf("Durations() = %v, %v", rt, idle)
	}
}

func TestPortOptions(t *testing.T) {
	cfg := &Config{BaudRate: 57600, DataBits: 7, StopBits: 2, Parity: "E"}
	want := serialmux.PortOptions{BaudRate: 57600, DataBits: 7, StopBits: 2, Parity: "E"}
	if diff := cmp.Diff(want, cfg.PortOptions()); diff != "" {
		t.Errorf("PortOptions() mismatch (-want +got):\n%s", diff)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	path := filepath.Join("..", "..", ExampleConfigPath)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("example config not found: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", path, err)
	}
	if cfg.Port == "" {
		t.Error("example config should name a port")
	}
}
