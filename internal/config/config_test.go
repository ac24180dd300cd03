package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Provider.Type != "openai" {
		t.Errorf("provider type = %q", cfg.Provider.Type)
	}
	if cfg.Selector.Budget != 16000 {
		t.Errorf("budget = %d", cfg.Selector.Budget)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Errorf("workers = %d", cfg.Scheduler.Workers)
	}
	if !cfg.Analysis.ImageSubsumesText {
		t.Error("image subsumption should default on")
	}
	if cfg.Analysis.ConfidenceThreshold != 7 {
		t.Errorf("confidence threshold = %d", cfg.Analysis.ConfidenceThreshold)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("FOLIO_TEST_KEY", "secret123")

	tests := []struct {
		in   string
		want string
	}{
		{"${FOLIO_TEST_KEY}", "secret123"},
		{"prefix-${FOLIO_TEST_KEY}-suffix", "prefix-secret123-suffix"},
		{"no-vars", "no-vars"},
		{"", ""},
		{"${UNSET_FOLIO_VAR}", ""},
	}
	for _, tt := range tests {
		if got := ResolveEnvVars(tt.in); got != tt.want {
			t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("OPENAI_TEST_KEY_XYZ", "sk-test")
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "${OPENAI_TEST_KEY_XYZ}"
	if got := cfg.APIKey(); got != "sk-test" {
		t.Errorf("APIKey() = %q", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	text := string(data)
	for _, want := range []string{"# folio configuration", "provider:", "selector:", "${OPENAI_API_KEY}"} {
		if !strings.Contains(text, want) {
			t.Errorf("written config missing %q", want)
		}
	}
}
