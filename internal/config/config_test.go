package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != "8080" || cfg.DraftDebounce != 2*time.Second || cfg.DraftMaxAge != 24*time.Hour {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.ScanDedupeWindow != 300*time.Millisecond || cfg.NegativeCacheTTL != 5*time.Minute {
		t.Fatalf("engine defaults = %+v", cfg)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("redis should be off by default, got %q", cfg.RedisAddr)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("DRAFT_DEBOUNCE", "500ms")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DraftDebounce != 500*time.Millisecond || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsWeakSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"missing", ""},
		{"short", "corto"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", tt.secret)
			if _, err := load(viper.New()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadRejectsNonPositiveDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SCAN_DEDUPE_WINDOW", "0s")

	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected an error for a zero dedupe window")
	}
}

func TestParseStrategies(t *testing.T) {
	got, err := parseStrategies(" PROV-01 = Model, PROV-02=batch ,")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["PROV-01"] != "model" || got["PROV-02"] != "batch" {
		t.Fatalf("strategies = %v", got)
	}

	for _, raw := range []string{"PROV-01", "=model", "PROV-01=fancy"} {
		if _, err := parseStrategies(raw); err == nil {
			t.Errorf("parseStrategies(%q) should fail", raw)
		}
	}
}
