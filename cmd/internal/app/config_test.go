package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.AccessTokenTTL != 900*time.Second {
		t.Fatalf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if cfg.ProofTokenTTL != 60*time.Second {
		t.Fatalf("ProofTokenTTL = %v", cfg.ProofTokenTTL)
	}
	if cfg.ChallengeTTL != 120*time.Second {
		t.Fatalf("ChallengeTTL = %v", cfg.ChallengeTTL)
	}
	if cfg.TTLMax != 8*time.Hour {
		t.Fatalf("TTLMax = %v", cfg.TTLMax)
	}
	if cfg.TTLStepDefault != 15*time.Minute {
		t.Fatalf("TTLStepDefault = %v", cfg.TTLStepDefault)
	}
	if cfg.QuarantineDuration != 180*time.Second {
		t.Fatalf("QuarantineDuration = %v", cfg.QuarantineDuration)
	}
	if cfg.NetworkCIDR != "10.0.0.0/24" {
		t.Fatalf("NetworkCIDR = %q", cfg.NetworkCIDR)
	}
	if cfg.RevokerInterval != 30*time.Second || cfg.ReleaserInterval != 10*time.Second {
		t.Fatalf("intervals = %v, %v", cfg.RevokerInterval, cfg.ReleaserInterval)
	}
	if cfg.AllowMultipleActiveSessions {
		t.Fatal("AllowMultipleActiveSessions should default to false")
	}
	if cfg.SeedDefaultUser {
		t.Fatal("SeedDefaultUser should default to false")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WG_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("WG_TTL_MAX_SECONDS", "3600")
	t.Setenv("WG_TTL_STEP_DEFAULT_SECONDS", "120")
	t.Setenv("WG_ALLOW_MULTIPLE_ACTIVE_SESSIONS", "true")
	t.Setenv("WG_RESERVED_IPS", "10.0.0.1, 10.0.0.2,")
	t.Setenv("WG_DB_MAX_CONNS", "25")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.TTLMax != time.Hour {
		t.Fatalf("TTLMax = %v", cfg.TTLMax)
	}
	if cfg.TTLStepDefault != 2*time.Minute {
		t.Fatalf("TTLStepDefault = %v", cfg.TTLStepDefault)
	}
	if !cfg.AllowMultipleActiveSessions {
		t.Fatal("AllowMultipleActiveSessions should be true")
	}
	if len(cfg.ReservedIPs) != 2 || cfg.ReservedIPs[0] != "10.0.0.1" || cfg.ReservedIPs[1] != "10.0.0.2" {
		t.Fatalf("ReservedIPs = %v", cfg.ReservedIPs)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("DBMaxConns = %d", cfg.DBMaxConns)
	}
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("WG_TTL_MAX_SECONDS", "not-a-number")
	t.Setenv("WG_ALLOW_MULTIPLE_ACTIVE_SESSIONS", "maybe")

	cfg := LoadConfig()

	if cfg.TTLMax != 8*time.Hour {
		t.Fatalf("TTLMax = %v, want default", cfg.TTLMax)
	}
	if cfg.AllowMultipleActiveSessions {
		t.Fatal("unparseable bool should fall back to default")
	}
}
