package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Queue.Concurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Queue.MaxAttempts)
	}
	if cfg.Queue.BackoffBase != 2*time.Second {
		t.Errorf("expected backoff base 2s, got %s", cfg.Queue.BackoffBase)
	}
	if cfg.Queue.ProbeTimeout != 1500*time.Millisecond {
		t.Errorf("expected probe timeout 1.5s, got %s", cfg.Queue.ProbeTimeout)
	}
	if cfg.Render.MinVisibleChars != 20 {
		t.Errorf("expected min visible chars 20, got %d", cfg.Render.MinVisibleChars)
	}
	if cfg.Storage.PublicPrefix != "/pdfs" {
		t.Errorf("expected public prefix /pdfs, got %q", cfg.Storage.PublicPrefix)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUEUE_CONCURRENCY", "5")
	t.Setenv("QUEUE_BACKOFF_BASE", "250ms")
	t.Setenv("STORAGE_PROVIDER", "s3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Queue.Concurrency != 5 {
		t.Errorf("expected concurrency 5, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Queue.BackoffBase != 250*time.Millisecond {
		t.Errorf("expected backoff 250ms, got %s", cfg.Queue.BackoffBase)
	}
	if cfg.Storage.Provider != "s3" {
		t.Errorf("expected provider s3, got %q", cfg.Storage.Provider)
	}
}

func TestReadSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_FILE", path)
	readSecret("JWT_SECRET")

	if got := os.Getenv("JWT_SECRET"); got != "s3cr3t" {
		t.Errorf("expected secret from file, got %q", got)
	}
}
