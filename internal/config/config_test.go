package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "QR_SIZE", "SAVE_INTERVAL"} {
		// Setenv restores the original value on cleanup.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.QRSize != 400 {
		t.Errorf("QRSize = %d, want 400", cfg.QRSize)
	}
	if cfg.SaveInterval != 30*time.Second {
		t.Errorf("SaveInterval = %v, want 30s", cfg.SaveInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SAVE_INTERVAL", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.SaveInterval != 5*time.Second {
		t.Errorf("SaveInterval = %v, want 5s", cfg.SaveInterval)
	}
}

func TestOrigins(t *testing.T) {
	cfg := &Config{AllowedOrigins: " http://localhost:5173 , https://certs.example.com,,"}

	if got, want := cfg.Origins(), []string{"http://localhost:5173", "https://certs.example.com"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Origins() = %v, want %v", got, want)
	}
	if got, want := cfg.OriginPatterns(), []string{"localhost:5173", "certs.example.com"}; !reflect.DeepEqual(got, want) {
		t.Errorf("OriginPatterns() = %v, want %v", got, want)
	}
}
