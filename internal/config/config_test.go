package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_DB", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("AUTH_TOKEN_TTL_MINUTES", "")
	t.Setenv("STORAGE_MAX_UPLOAD_BYTES", "")
	t.Setenv("MAIL_SUBJECT_PREFIX", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if got := cfg.Auth.TokenTTL(); got != 30*24*time.Hour {
		t.Errorf("token ttl = %v", got)
	}
	if cfg.Storage.MaxUploadBytes != 5<<20 {
		t.Errorf("max upload = %d", cfg.Storage.MaxUploadBytes)
	}
	if cfg.Mail.SubjectPrefix != "[TaskPilot]" {
		t.Errorf("subject prefix = %q", cfg.Mail.SubjectPrefix)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "DB_DRIVER=sqlite\nHTTP_REQUEST_TIMEOUT_SECONDS=7\nNOTIFY_APP_URL=https://tracker.example.com/\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"DB_DRIVER", "HTTP_REQUEST_TIMEOUT_SECONDS", "NOTIFY_APP_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.HTTP.RequestTimeout() != 7*time.Second {
		t.Errorf("timeout = %v", cfg.HTTP.RequestTimeout())
	}
	if cfg.Notification.AppURL != "https://tracker.example.com" {
		t.Errorf("app url = %q", cfg.Notification.AppURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"REDIS_DB":  "zero",
		"DB_DRIVER": "mongo",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(filepath.Join(t.TempDir(), "none.env")); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("MAIL_RETRY_ATTEMPTS", "many")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mail.RetryAttempts != 3 {
		t.Fatalf("retry attempts = %d", cfg.Mail.RetryAttempts)
	}
}
