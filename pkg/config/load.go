package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load applies the first env file found among envFilePath, searched from
// the working directory upwards, falling back to ./.env. Variables already
// set in the process win over file values. App is then filled by envconfig.
func Load(envFilePath ...string) (*App, error) {
	logger := slog.Default()
	if file := firstEnvFile(envFilePath); file != "" {
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		logger.Info("Loaded environment file", "path", file)
	} else if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file, using process environment only")
	}
	return loadFromEnv()
}

func firstEnvFile(candidates []string) string {
	for _, name := range candidates {
		if path, err := FindEnvFile(name); err == nil {
			return path
		}
	}
	return ""
}

func loadFromEnv() (*App, error) {
	var cfg App
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	slog.Default().Info("App config loaded",
		"env", cfg.Env,
		"db_driver", cfg.DB.Driver,
		"db", maskValue(cfg.DB.Url),
		"event_bus", cfg.EventBus.Driver,
		"provider", cfg.Provider.Driver,
		"webhook_secret", maskValue(cfg.Provider.WebhookSecret),
		"iban_key", maskValue(cfg.Crypto.IBANKey),
		"outbox_max_attempts", cfg.Payout.MaxAttempts,
		"platform_tenant", cfg.Tenant.PlatformID,
	)
	return &cfg, nil
}

func maskValue(key string) string {
	if len(key) <= 6 {
		return "****"
	}
	return key[:2] + "****" + key[len(key)-4:]
}
