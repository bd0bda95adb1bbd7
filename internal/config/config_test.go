package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/clabot
github:
  app_id: 12345
  private_key_path: /keys/app.pem
  webhook_secret: s3cret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.ShutdownTimeout != 15*time.Second {
		t.Fatalf("http defaults = %q/%v", cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout)
	}
	if cfg.GitHub.CheckName != "cla/compliance" {
		t.Fatalf("check name = %q", cfg.GitHub.CheckName)
	}
	if cfg.Convergence.MaxConcurrent != 8 {
		t.Fatalf("max concurrent = %d", cfg.Convergence.MaxConcurrent)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/clabot")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "env-secret")
	t.Setenv("GITHUB_APP_PRIVATE_KEY_PATH", "/env/app.pem")

	path := writeConfig(t, `
github:
  app_id: 12345
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Database.URL != "postgres://env/clabot" {
		t.Fatalf("database url = %q", cfg.Database.URL)
	}
	if cfg.GitHub.WebhookSecret != "env-secret" {
		t.Fatalf("webhook secret = %q", cfg.GitHub.WebhookSecret)
	}
	if cfg.GitHub.PrivateKeyPath != "/env/app.pem" {
		t.Fatalf("private key path = %q", cfg.GitHub.PrivateKeyPath)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GITHUB_WEBHOOK_SECRET", "")

	path := writeConfig(t, `
github:
  app_id: 12345
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected missing database url to fail")
	}

	path = writeConfig(t, `
database:
  url: postgres://localhost/clabot
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected missing webhook secret to fail")
	}
}
