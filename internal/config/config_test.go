package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PollInterval != "250ms" || cfg.ResizeDebounce != "150ms" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Shell == "" {
		t.Fatalf("default shell empty")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
shell: "bash -l"
poll_interval: 100ms
history_kb: 64
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Shell != "bash -l" || cfg.HistoryKB != 64 {
		t.Fatalf("overrides lost: %+v", cfg)
	}
	if cfg.ResizeDebounce != "150ms" {
		t.Fatalf("unset field lost its default: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("nested logging block lost: %+v", cfg.Logging)
	}
	d, err := cfg.PollIntervalDuration()
	if err != nil || d != 100*time.Millisecond {
		t.Fatalf("PollIntervalDuration() = %v, %v", d, err)
	}
}

func TestDurationValidation(t *testing.T) {
	cfg := Config{PollInterval: "not-a-duration"}
	if _, err := cfg.PollIntervalDuration(); err == nil {
		t.Fatalf("invalid duration accepted")
	}
	cfg = Config{ResizeDebounce: "-10ms"}
	if _, err := cfg.ResizeDebounceDuration(); err == nil {
		t.Fatalf("negative duration accepted")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("shell: [unclosed"), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed config accepted")
	}
}
