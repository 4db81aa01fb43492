package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimsynth/internal/model"
)

func TestParseSchedule(t *testing.T) {
	from := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	sched, err := parseSchedule("@every 6h")
	if err != nil {
		t.Fatalf("parseSchedule failed: %v", err)
	}
	if got := sched.Next(from); !got.Equal(from.Add(6 * time.Hour)) {
		t.Errorf("Expected next run in 6h, got %v", got)
	}

	sched, err = parseSchedule("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("parseSchedule failed: %v", err)
	}
	// 2025-01-01 is a Wednesday
	if got := sched.Next(from); !got.Equal(time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected next run %v", got)
	}

	if _, err := parseSchedule("every now and then"); err == nil {
		t.Error("Expected error for an invalid spec")
	}
}

func TestRegisterDefaults_EnvOverride(t *testing.T) {
	v := viper.New()
	if err := registerDefaults(v, model.DefaultConfig()); err != nil {
		t.Fatalf("registerDefaults failed: %v", err)
	}
	v.SetEnvPrefix("CLAIMSYNTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	t.Setenv("CLAIMSYNTH_LLM_PROVIDER", "anthropic")
	t.Setenv("CLAIMSYNTH_MATCHING_MUST_HAVE_WEIGHT", "0.6")
	t.Setenv("CLAIMSYNTH_LLM_API_KEY", "sk-test")

	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("Expected provider from env, got %q", cfg.LLM.Provider)
	}
	if cfg.Matching.MustHaveWeight != 0.6 {
		t.Errorf("Expected weight 0.6, got %v", cfg.Matching.MustHaveWeight)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("Expected api key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Synthesis.BatchSize != 10 || cfg.Schedule.Cron != "@every 6h" {
		t.Errorf("Expected untouched defaults, got %+v / %+v", cfg.Synthesis, cfg.Schedule)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Written config does not parse: %v", err)
	}
	if cfg.Store.Driver != "sqlite3" || cfg.Evaluation.SampleSize != 20 {
		t.Errorf("Unexpected written defaults: %+v", cfg)
	}

	if err := writeDefaultConfig(path); err == nil {
		t.Error("Expected an existing config to be left alone")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Kubernetes", 20); got != "Kubernetes" {
		t.Errorf("Unexpected %q", got)
	}
	if got := truncate("Kubernetes", 5); got != "Kube…" {
		t.Errorf("Unexpected %q", got)
	}
}
