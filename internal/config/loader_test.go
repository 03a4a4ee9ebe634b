package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mode != "prod" {
		t.Errorf("expected default mode prod, got %q", cfg.Mode)
	}
	if cfg.Storage.Driver != "json" {
		t.Errorf("expected default storage driver json, got %q", cfg.Storage.Driver)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("expected default cache driver memory, got %q", cfg.Cache.Driver)
	}
	if cfg.OutboundHTTP.SSRFMode != "strict" {
		t.Errorf("expected strict SSRF mode in prod, got %q", cfg.OutboundHTTP.SSRFMode)
	}
	if cfg.Access.CodeTTLHours != 24 {
		t.Errorf("expected 24h code ttl, got %d", cfg.Access.CodeTTLHours)
	}
	if cfg.TLS.Mode != "selfsigned" {
		t.Errorf("expected selfsigned TLS in prod, got %q", cfg.TLS.Mode)
	}
}

func TestLoad_DevModePreset(t *testing.T) {
	cfg, err := Load(LoaderOptions{ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OutboundHTTP.SSRFMode != "off" {
		t.Errorf("expected SSRF off in dev, got %q", cfg.OutboundHTTP.SSRFMode)
	}
	if !cfg.OutboundHTTP.InsecureSkipVerify {
		t.Error("expected InsecureSkipVerify in dev")
	}
	if cfg.TLS.Mode != "off" {
		t.Errorf("expected TLS off in dev, got %q", cfg.TLS.Mode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging in dev, got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	_, err := Load(LoaderOptions{ModeFlag: "staging"})
	if err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	path := writeConfigFile(t, `
mode = "dev"
listen_addr = ":8100"

[storage]
driver = "sqlite"
data_dir = "/var/lib/storebot"

[telegram]
token = "123:abc"
operator_ids = ["900001", "900002"]

[access]
code_ttl_hours = 48

[cache]
driver = "valkey"

[cache.drivers.valkey]
address = "localhost:6379"
`)

	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mode != "dev" {
		t.Errorf("expected mode dev from file, got %q", cfg.Mode)
	}
	if cfg.ListenAddr != ":8100" {
		t.Errorf("expected listen addr :8100, got %q", cfg.ListenAddr)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DataDir != "/var/lib/storebot" {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("expected telegram token from file, got %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OperatorIDs) != 2 {
		t.Errorf("expected 2 operator ids, got %v", cfg.Telegram.OperatorIDs)
	}
	if cfg.Access.CodeTTLHours != 48 {
		t.Errorf("expected 48h code ttl, got %d", cfg.Access.CodeTTLHours)
	}
	if cfg.Cache.Driver != "valkey" {
		t.Errorf("expected valkey cache driver, got %q", cfg.Cache.Driver)
	}
	if _, ok := cfg.Cache.Drivers["valkey"]; !ok {
		t.Error("expected per-driver valkey config preserved")
	}
}

func TestLoad_FlagOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr = ":8100"

[storage]
driver = "sqlite"
`)

	listen := ":8200"
	driver := "json"
	cfg, err := Load(LoaderOptions{
		ConfigPath: path,
		FlagOverrides: FlagOverrides{
			ListenAddr:    &listen,
			StorageDriver: &driver,
		},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":8200" {
		t.Errorf("expected flag to win over file, got %q", cfg.ListenAddr)
	}
	if cfg.Storage.Driver != "json" {
		t.Errorf("expected flag storage driver json, got %q", cfg.Storage.Driver)
	}
}

func TestLoad_ModeFlagWinsOverFile(t *testing.T) {
	path := writeConfigFile(t, `mode = "prod"`)

	cfg, err := Load(LoaderOptions{ConfigPath: path, ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != "dev" {
		t.Errorf("expected mode flag to win, got %q", cfg.Mode)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(LoaderOptions{ConfigPath: "/nonexistent/config.toml"})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := writeConfigFile(t, `listen_addr = [ broken`)
	_, err := Load(LoaderOptions{ConfigPath: path})
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_InvalidEnums(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad storage driver", "[storage]\ndriver = \"postgres\""},
		{"bad cache driver", "[cache]\ndriver = \"redis2\""},
		{"bad tls mode", "[tls]\nmode = \"maybe\""},
		{"bad ssrf mode", "[outbound_http]\nssrf_mode = \"sometimes\""},
		{"bad log level", "[logging]\nlevel = \"trace0\""},
		{"negative code ttl", "[access]\ncode_ttl_hours = -1"},
		{"static tls without certs", "[tls]\nmode = \"static\""},
		{"acme without email", "[tls]\nmode = \"acme\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := Load(LoaderOptions{ConfigPath: path}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := ProdConfig()
	cfg.Telegram.Token = "123:very-secret"
	cfg.Server.BootstrapAdmin.Username = "admin"
	cfg.Server.BootstrapAdmin.Password = "hunter2"

	redacted := cfg.Redacted()

	if strings.Contains(redacted, "very-secret") {
		t.Error("redacted output leaks telegram token")
	}
	if strings.Contains(redacted, "hunter2") {
		t.Error("redacted output leaks admin password")
	}
	if !strings.Contains(redacted, "admin") {
		t.Error("redacted output should keep admin username")
	}
	if !strings.Contains(redacted, "[REDACTED]") {
		t.Error("redacted output should mark redacted fields")
	}
}
