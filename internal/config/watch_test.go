package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validKeyHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	base := `
registry:
  secret_key_hex: "` + validKeyHex + `"
logging:
  level: info
`
	if err := os.WriteFile(path, []byte(base), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan *Config, 1)
	stop, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	updated := `
registry:
  secret_key_hex: "` + validKeyHex + `"
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config reload not observed")
	}
}

func TestWatch_SkipsInvalidSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	base := `
registry:
  secret_key_hex: "` + validKeyHex + `"
`
	if err := os.WriteFile(path, []byte(base), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reloaded := make(chan *Config, 4)
	stop, err := Watch(path, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	// Invalid port fails validation and must not reach the callback.
	bad := `
server:
  port: -1
registry:
  secret_key_hex: "` + validKeyHex + `"
`
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-reloaded:
		t.Error("invalid config reached the reload callback")
	case <-time.After(500 * time.Millisecond):
	}
}
