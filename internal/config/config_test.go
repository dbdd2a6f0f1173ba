package config

import (
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN / GetReplicaDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "registry",
				Password: "secret",
				Name:     "consumer_registry",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=registry password=secret dbname=consumer_registry sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "user",
				Name:    "dbname",
				SSLMode: "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetReplicaDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "primary", Port: 5432, User: "registry", Password: "s",
		Name: "consumer_registry", SSLMode: "require",
	}
	if got := cfg.GetReplicaDSN(); got != "" {
		t.Errorf("GetReplicaDSN() with no replica = %q, want empty", got)
	}

	cfg.ReplicaHost = "replica"
	cfg.ReplicaPort = 5433
	want := "host=replica port=5433 user=registry password=s dbname=consumer_registry sslmode=require"
	if got := cfg.GetReplicaDSN(); got != want {
		t.Errorf("GetReplicaDSN() = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "consumer_registry",
			User: "registry",
		},
		Registry: RegistryConfig{
			KeyPrefix:    "ocr",
			SecretKeyHex: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("missing base_url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.BaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty base_url, got nil")
		}
	})

	t.Run("missing database host", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database host, got nil")
		}
	})

	t.Run("missing database name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Name = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database name, got nil")
		}
	})

	t.Run("missing key_prefix", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Registry.KeyPrefix = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty key_prefix, got nil")
		}
	})

	t.Run("negative proposal_retention", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Registry.ProposalRetention = -time.Hour
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for negative retention, got nil")
		}
	})

	t.Run("no registry key material", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Registry.SecretKeyHex = ""
		cfg.Registry.SecretPassphrase = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing key material, got nil")
		}
	})

	t.Run("passphrase with short salt", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Registry.SecretKeyHex = ""
		cfg.Registry.SecretPassphrase = "correct horse battery staple"
		cfg.Registry.SecretSalt = "short"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for short salt, got nil")
		}
	})

	t.Run("passphrase with adequate salt passes", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Registry.SecretKeyHex = ""
		cfg.Registry.SecretPassphrase = "correct horse battery staple"
		cfg.Registry.SecretSalt = "a-sixteen-byte-salt"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("tls enabled missing cert_file", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Security.TLS = TLSConfig{Enabled: true, KeyFile: "key.pem"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing tls cert_file, got nil")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log level, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})

	t.Run("webhook shipper missing url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "webhook", Webhook: &AuditWebhookConfig{}}}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for webhook shipper without url, got nil")
		}
	})

	t.Run("disabled shipper is not validated", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []AuditShipperConfig{{Enabled: false, Type: "webhook"}}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("unknown shipper type", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "carrier-pigeon"}}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for unknown shipper type, got nil")
		}
	})
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		if got := expandEnv("no-vars-here"); got != "no-vars-here" {
			t.Errorf("expandEnv() = %q", got)
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
registry:
  secret_key_hex: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("Database.Name = %q, want testdb", cfg.Database.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
server:
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "consumer_registry"
  user: "registry"
registry:
  secret_key_hex: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("default Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if cfg.Registry.KeyPrefix != "ocr" {
		t.Errorf("default Registry.KeyPrefix = %q, want ocr", cfg.Registry.KeyPrefix)
	}
	if cfg.Registry.ProposalRetention != 720*time.Hour {
		t.Errorf("default Registry.ProposalRetention = %v, want 720h", cfg.Registry.ProposalRetention)
	}
	if cfg.Auth.JWTExpiry != 24*time.Hour {
		t.Errorf("default Auth.JWTExpiry = %v, want 24h", cfg.Auth.JWTExpiry)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
server:
  port: 8080
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "consumer_registry"
  user: "registry"
  password: "${TEST_DB_PASS}"
registry:
  secret_key_hex: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}
