package main

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the server settings. Everything has a workable default so a
// bare `go run ./cmd/server` comes up locally.
type Config struct {
	Environment string `env:"VAULT_ENV"              envDefault:"development"`
	Address     string `env:"VAULT_SERVER_ADDRESS"   envDefault:":5000"`
	DatabaseDSN string `env:"VAULT_DATABASE_DSN"     envDefault:"file:data/vault.db?cache=shared"`
	SigningKey  string `env:"VAULT_SIGNING_KEY"      envDefault:"your-secret-key"`
	TokenHours  int    `env:"VAULT_TOKEN_HOURS"      envDefault:"24"`
	StaticDir   string `env:"VAULT_STATIC_DIR"       envDefault:"frontend/dist"`
	LogDir      string `env:"VAULT_LOG_DIR"          envDefault:"logs"`
	LogLevel    string `env:"VAULT_LOG_LEVEL"        envDefault:"info"`
	LogBackups  int    `env:"VAULT_LOG_BACKUPS"      envDefault:"7"`
	LogMaxSize  int    `env:"VAULT_LOG_MAX_SIZE_MB"  envDefault:"50"`
}

// LoadConfig reads .env when present, then the process environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
