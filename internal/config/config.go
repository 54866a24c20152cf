package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	APIToken        string
	DiscordBotToken string
	StartupMigrate  bool
	AuditEvery      time.Duration
	AuditRunOnce    bool
}

type CLIConfig struct {
	APIBaseURL string
	APIToken   string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TALLY_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIToken:        strings.TrimSpace(os.Getenv("TALLY_API_TOKEN")),
		DiscordBotToken: strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		StartupMigrate:  envBoolDefault("TALLY_STARTUP_MIGRATE", true),
		AuditEvery:      envDurationDefault("TALLY_AUDIT_EVERY", 10*time.Minute),
		AuditRunOnce:    envBoolDefault("TALLY_AUDIT_RUN_ONCE", false),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TALLY_API_BASE_URL", "http://localhost:8080"), "/"),
		APIToken:   strings.TrimSpace(os.Getenv("TALLY_API_TOKEN")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
