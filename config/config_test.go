package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.StoreBackend != BackendRedis {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RatePerMin != 5 || cfg.RatePerHour != 50 || cfg.RateSubnetPerMin != 30 || cfg.RateSubnetPerHour != 200 {
		t.Fatalf("expected default caps, got %d/%d %d/%d", cfg.RatePerMin, cfg.RatePerHour, cfg.RateSubnetPerMin, cfg.RateSubnetPerHour)
	}
	if len(cfg.BackoffTiers) != 4 || cfg.BackoffTiers[0].Block != 5*time.Minute {
		t.Fatalf("expected default backoff tiers, got %+v", cfg.BackoffTiers)
	}
	if cfg.KillSwitchCooldown != 15*time.Minute || cfg.MinTrustScore != 20 {
		t.Fatalf("unexpected kill switch / trust defaults: %+v", cfg)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "abc")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("BACKOFF_TIERS", "nonsense")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RatePerMin != 5 || cfg.CacheTTL != 30*time.Second || len(cfg.BackoffTiers) != 4 {
		t.Fatalf("expected defaults for invalid values, got %+v", cfg)
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/short")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestParseBackoffTiers(t *testing.T) {
	tiers, err := ParseBackoffTiers("10:1h, 3:5m,6:30m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tiers) != 3 || tiers[0].Violations != 3 || tiers[2].Block != time.Hour {
		t.Fatalf("expected sorted tiers, got %+v", tiers)
	}
	for _, bad := range []string{"", "3", "0:5m", "3:-1m", "x:5m"} {
		if _, err := ParseBackoffTiers(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
