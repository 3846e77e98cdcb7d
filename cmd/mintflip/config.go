package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"mintflip/internal/auth"
	"mintflip/internal/ipfs"
	"mintflip/internal/mint"
)

const defaultDBMaxConns = 20

// Config contains application-wide settings sourced from the environment.
type Config struct {
	DatabaseURL    string
	DBMaxConns     int
	Addr           string
	AllowedOrigins []string
	SeedDemoData   bool

	JWTSecret string
	JWTExpiry time.Duration

	LogLevel  string
	LogFormat string

	IPFSAPIURL  string
	IPFSAPIKey  string
	IPFSGateway string

	ChainRPCURL     string
	ContractAddress string
	MinterAddress   string
	EditionSize     int64
}

// MintingEnabled reports whether both storage and chain settings are present.
func (c Config) MintingEnabled() bool {
	return c.IPFSAPIKey != "" && c.ChainRPCURL != "" && c.ContractAddress != "" && c.MinterAddress != ""
}

func loadConfig() (Config, error) {
	_ = godotenv.Load("config/local.env")
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:     databaseURL(),
		DBMaxConns:      defaultDBMaxConns,
		AllowedOrigins:  parseAllowedOrigins(envOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		SeedDemoData:    envBool("SEED_DEMO_DATA"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTExpiry:       auth.DefaultTokenExpiry,
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		IPFSAPIURL:      envOrDefault("IPFS_API_URL", ipfs.DefaultAPIURL),
		IPFSAPIKey:      os.Getenv("IPFS_API_KEY"),
		IPFSGateway:     envOrDefault("IPFS_GATEWAY_URL", ipfs.DefaultGateway),
		ChainRPCURL:     os.Getenv("CHAIN_RPC_URL"),
		ContractAddress: os.Getenv("CHAIN_CONTRACT_ADDRESS"),
		MinterAddress:   os.Getenv("CHAIN_MINTER_ADDRESS"),
		EditionSize:     mint.DefaultEditionSize,
	}

	var problems []string

	port, err := strconv.Atoi(envOrDefault("PORT", "8080"))
	if err != nil || port < 1 || port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}
	cfg.Addr = fmt.Sprintf(":%d", port)

	if raw := os.Getenv("DB_MAX_CONNS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			problems = append(problems, "DB_MAX_CONNS must be a positive integer")
		} else {
			cfg.DBMaxConns = n
		}
	}

	if raw := os.Getenv("JWT_EXPIRES_IN"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, "JWT_EXPIRES_IN must be a positive duration such as 168h")
		} else {
			cfg.JWTExpiry = d
		}
	}

	if raw := os.Getenv("MINT_EDITION_SIZE"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			problems = append(problems, "MINT_EDITION_SIZE must be a positive integer")
		} else {
			cfg.EditionSize = n
		}
	}

	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return cfg, nil
}

func (c Config) validate() []string {
	var problems []string

	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}
	if len(c.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		problems = append(problems, "LOG_FORMAT must be one of: json, text")
	}

	chainSet := c.ChainRPCURL != "" || c.ContractAddress != "" || c.MinterAddress != ""
	chainComplete := c.ChainRPCURL != "" && c.ContractAddress != "" && c.MinterAddress != ""
	if chainSet && !chainComplete && c.IPFSAPIKey != "" {
		problems = append(problems, "minting needs CHAIN_RPC_URL, CHAIN_CONTRACT_ADDRESS and CHAIN_MINTER_ADDRESS together")
	}

	return problems
}

// databaseURL prefers DATABASE_URL and falls back to the DB_* parts.
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	host := envOrDefault("DB_HOST", "localhost")
	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		user,
		os.Getenv("DB_PASSWORD"),
		host,
		envOrDefault("DB_PORT", "5432"),
		name,
		envOrDefault("DB_SSLMODE", "disable"),
	)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func parseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	var origins []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
