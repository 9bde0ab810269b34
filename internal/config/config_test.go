package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if cfg.DB != "cuecard.db" || cfg.Addr != ":8080" || cfg.LogLevel != "info" || cfg.ReposDir != "repos" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Quiz.Options != 4 || cfg.Quiz.AdvanceDelay != 1500*time.Millisecond {
		t.Errorf("Unexpected quiz defaults: %+v", cfg.Quiz)
	}
	p := cfg.Scheduler.Params()
	if p.HardFactor != 1.2 || p.FirstEasy != 2 || p.EaseStep != 0.04 {
		t.Errorf("Unexpected scheduler defaults: %+v", p)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cuecard.yaml")
	content := `
db: from-file.db
addr: ":9000"
log-level: debug
quiz:
  options: 5
  advance-delay: 2s
scheduler:
  first-easy: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CUECARD_ADDR", ":9100")
	t.Setenv("CUECARD_QUIZ__OPTIONS", "6")
	t.Setenv("CUECARD_REPOS_DIR", "/tmp/repos")

	cfg, err := Load(newFlags(t, "--config", path, "--addr", ":9200"))
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}

	testCases := []struct {
		name     string
		got      any
		expected any
	}{
		{"file only", cfg.DB, "from-file.db"},
		{"flag beats env and file", cfg.Addr, ":9200"},
		{"env beats file", cfg.Quiz.Options, 6},
		{"env with dash", cfg.ReposDir, "/tmp/repos"},
		{"file duration", cfg.Quiz.AdvanceDelay, 2 * time.Second},
		{"nested file key", cfg.Scheduler.FirstEasy, 3},
		{"untouched default", cfg.Scheduler.FirstPerfect, 4},
		{"file log level", cfg.LogLevel, "debug"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, tc.got)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("bad log level", func(t *testing.T) {
		_, err := Load(newFlags(t, "--log-level", "loud"))
		if err == nil || !strings.Contains(err.Error(), "LogLevel") {
			t.Errorf("Expected a LogLevel validation error, got %v", err)
		}
	})

	t.Run("too few options", func(t *testing.T) {
		t.Setenv("CUECARD_QUIZ__OPTIONS", "1")
		_, err := Load(newFlags(t))
		if err == nil || !strings.Contains(err.Error(), "Options") {
			t.Errorf("Expected an Options validation error, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "none.yaml"))); err == nil {
			t.Error("Expected an error for a missing config file")
		}
	})
}

func TestEnvKey(t *testing.T) {
	testCases := map[string]string{
		"CUECARD_DB":                   "db",
		"CUECARD_LOG_LEVEL":            "log-level",
		"CUECARD_SCHEDULER__EASE_BASE": "scheduler.ease-base",
	}
	for in, expected := range testCases {
		if got := envKey(in); got != expected {
			t.Errorf("envKey(%q) = %q, want %q", in, got, expected)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn"}
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Expected only warn output, got %q", buf.String())
	}
}
