// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
)

// Config holds the service configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address the admin API listens on.
	// Example: ":9300"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging"`

	// Storage configuration.
	Storage StorageConfig `toml:"storage"`

	// Cache configuration.
	Cache CacheConfig `toml:"cache"`

	// Telegram transport configuration.
	Telegram TelegramConfig `toml:"telegram"`

	// Access code configuration.
	Access AccessConfig `toml:"access"`

	// TLS configuration.
	TLS TLSConfig `toml:"tls"`

	// OutboundHTTP configuration.
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies are CIDRs whose X-Forwarded-For headers are honored.
	TrustedProxies []string `toml:"trusted_proxies"`

	// BootstrapAdmin are credentials for the admin API login.
	BootstrapAdmin BootstrapAdmin `toml:"bootstrap_admin"`
}

// BootstrapAdmin holds admin API credentials.
type BootstrapAdmin struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, codes).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Driver is the storage driver name: json (default) or sqlite.
	Driver string `toml:"driver"`

	// DataDir is the directory holding data files.
	DataDir string `toml:"data_dir"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: memory (default) or valkey.
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.valkey] address = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// TelegramConfig holds chat transport settings.
type TelegramConfig struct {
	// Token is the bot API token.
	Token string `toml:"token"`

	// APIBaseURL overrides the Bot API endpoint, mainly for tests.
	// Default: "https://api.telegram.org"
	APIBaseURL string `toml:"api_base_url"`

	// OperatorIDs are the chat ids allowed to perform admin operations.
	OperatorIDs []string `toml:"operator_ids"`
}

// AccessConfig holds access code settings.
type AccessConfig struct {
	// CodeTTLHours is the lifetime of a generated access code in hours.
	CodeTTLHours int `toml:"code_ttl_hours"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// HTTPPort for HTTP listener (used for ACME challenges and redirects)
	HTTPPort int `toml:"http_port"`

	// HTTPSPort for HTTPS listener
	HTTPSPort int `toml:"https_port"`

	// SelfSignedDir is where generated self-signed certs are kept.
	SelfSignedDir string `toml:"selfsigned_dir"`

	// ACME settings for acme mode.
	ACME ACMEConfig `toml:"acme"`
}

// ACMEConfig holds ACME certificate settings.
type ACMEConfig struct {
	Email      string `toml:"email"`
	Domain     string `toml:"domain"`
	Directory  string `toml:"directory"`
	StorageDir string `toml:"storage_dir"`
	UseStaging bool   `toml:"use_staging"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects int `toml:"max_redirects"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString("  Server: {\n")
	sb.WriteString(fmt.Sprintf("    TrustedProxies: %v,\n", c.Server.TrustedProxies))
	sb.WriteString("    BootstrapAdmin: {\n")
	sb.WriteString(fmt.Sprintf("      Username: %q,\n", c.Server.BootstrapAdmin.Username))
	sb.WriteString("      Password: [REDACTED],\n")
	sb.WriteString("    },\n")
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString(fmt.Sprintf("    AllowSensitive: %v,\n", c.Logging.AllowSensitive))
	sb.WriteString("  },\n")
	sb.WriteString("  Storage: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Storage.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Storage.DataDir))
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString("  },\n")
	sb.WriteString("  Telegram: {\n")
	sb.WriteString("    Token: [REDACTED],\n")
	sb.WriteString(fmt.Sprintf("    APIBaseURL: %q,\n", c.Telegram.APIBaseURL))
	sb.WriteString(fmt.Sprintf("    OperatorIDs: %v,\n", c.Telegram.OperatorIDs))
	sb.WriteString("  },\n")
	sb.WriteString("  Access: {\n")
	sb.WriteString(fmt.Sprintf("    CodeTTLHours: %d,\n", c.Access.CodeTTLHours))
	sb.WriteString("  },\n")
	sb.WriteString("  TLS: {\n")
	sb.WriteString(fmt.Sprintf("    Mode: %q,\n", c.TLS.Mode))
	sb.WriteString(fmt.Sprintf("    CertFile: %q,\n", c.TLS.CertFile))
	sb.WriteString(fmt.Sprintf("    KeyFile: %q,\n", c.TLS.KeyFile))
	sb.WriteString(fmt.Sprintf("    HTTPPort: %d,\n", c.TLS.HTTPPort))
	sb.WriteString(fmt.Sprintf("    HTTPSPort: %d,\n", c.TLS.HTTPSPort))
	sb.WriteString(fmt.Sprintf("    SelfSignedDir: %q,\n", c.TLS.SelfSignedDir))
	sb.WriteString("  },\n")
	sb.WriteString("  OutboundHTTP: {\n")
	sb.WriteString(fmt.Sprintf("    SSRFMode: %q,\n", c.OutboundHTTP.SSRFMode))
	sb.WriteString(fmt.Sprintf("    TimeoutMS: %d,\n", c.OutboundHTTP.TimeoutMS))
	sb.WriteString(fmt.Sprintf("    MaxRedirects: %d,\n", c.OutboundHTTP.MaxRedirects))
	sb.WriteString(fmt.Sprintf("    MaxResponseBytes: %d,\n", c.OutboundHTTP.MaxResponseBytes))
	sb.WriteString(fmt.Sprintf("    InsecureSkipVerify: %v,\n", c.OutboundHTTP.InsecureSkipVerify))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}
