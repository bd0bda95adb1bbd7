package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	Database    DatabaseConfig    `koanf:"database"`
	GitHub      GitHubConfig      `koanf:"github"`
	Convergence ConvergenceConfig `koanf:"convergence"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// URL may be left empty in the file and supplied via DATABASE_URL.
	URL string `koanf:"url"`
}

type GitHubConfig struct {
	AppID          int64  `koanf:"app_id"`
	PrivateKeyPath string `koanf:"private_key_path"`
	// WebhookSecret may be left empty in the file and supplied via
	// GITHUB_WEBHOOK_SECRET.
	WebhookSecret string `koanf:"webhook_secret"`
	CheckName     string `koanf:"check_name"`
}

type ConvergenceConfig struct {
	// MaxConcurrent bounds how many PRs one convergence run reconciles at
	// a time.
	MaxConcurrent int `koanf:"max_concurrent"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.GitHub.WebhookSecret == "" {
		cfg.GitHub.WebhookSecret = os.Getenv("GITHUB_WEBHOOK_SECRET")
	}
	if cfg.GitHub.PrivateKeyPath == "" {
		cfg.GitHub.PrivateKeyPath = os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH")
	}
	if cfg.GitHub.CheckName == "" {
		cfg.GitHub.CheckName = "cla/compliance"
	}
	if cfg.Convergence.MaxConcurrent <= 0 {
		cfg.Convergence.MaxConcurrent = 8
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (config database.url or DATABASE_URL)")
	}
	if cfg.GitHub.WebhookSecret == "" {
		return nil, fmt.Errorf("github webhook secret is required (config github.webhook_secret or GITHUB_WEBHOOK_SECRET)")
	}
	return cfg, nil
}

// DeterminePath resolves the config file location: explicit argument first,
// then CLABOT_CONFIG, then conventional candidates.
func DeterminePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv("CLABOT_CONFIG"); p != "" {
		return p, nil
	}
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		"/etc/cla-bot/config.yaml",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config file not found; use --config or CLABOT_CONFIG")
}
