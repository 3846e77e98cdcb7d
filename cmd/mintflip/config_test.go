package main

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "mint")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "mintflip")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("JWT_EXPIRES_IN", "1h")
	t.Setenv("MINT_EDITION_SIZE", "25")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("DB_MAX_CONNS", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.DatabaseURL != "postgresql://mint:pw@db:5432/mintflip?sslmode=disable" {
		t.Fatalf("unexpected DSN %q", cfg.DatabaseURL)
	}
	if cfg.DBMaxConns != defaultDBMaxConns {
		t.Fatalf("unexpected pool size %d", cfg.DBMaxConns)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.JWTExpiry != time.Hour || cfg.EditionSize != 25 {
		t.Fatalf("unexpected expiry %v or edition %d", cfg.JWTExpiry, cfg.EditionSize)
	}
	if cfg.MintingEnabled() {
		t.Fatal("minting should be disabled without IPFS and chain settings")
	}
}

func TestLoadConfigAggregatesProblems(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("PORT", "")

	_, err := loadConfig()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "JWT_SECRET", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}
