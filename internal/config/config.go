package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Backup   BackupConfig    `yaml:"backup"`
	Scanner  ScannerConfig   `yaml:"scanner"`
	Upstream UpstreamConfig  `yaml:"upstream"`
	Proxy    ProxyConfig     `yaml:"proxy"`
	Auth     AuthConfig      `yaml:"auth"`
	Metadata MetadataConfig  `yaml:"metadata"`
	AppLinks AppLinksConfig  `yaml:"applinks"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	BasePath       string `yaml:"base_path"`
	PublicDir      string `yaml:"public_dir"`
	PublicURL      string `yaml:"public_url"`
	MaxConnections int    `yaml:"max_connections"`
	TLSCertFile    string `yaml:"tls_cert_file"`
	TLSKeyFile     string `yaml:"tls_key_file"`
	HTTP3          bool   `yaml:"http3"`
}

// TLSEnabled reports whether both halves of a TLS key pair are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path                string        `yaml:"path"`
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
	// AuditRetention bounds the camera change history; zero keeps it all.
	AuditRetention      time.Duration `yaml:"audit_retention"`
}

// BackupConfig controls scheduled database snapshots. An empty Dir puts
// them next to the database; a zero Interval disables the schedule.
type BackupConfig struct {
	Dir       string        `yaml:"dir"`
	Interval  time.Duration `yaml:"interval"`
	Retention int           `yaml:"retention"`
	MaxAge    time.Duration `yaml:"max_age"`
}

// ScannerConfig controls the fleet sweep.
type ScannerConfig struct {
	UpdateInterval   time.Duration `yaml:"update_interval"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	ScanTimeout      time.Duration `yaml:"scan_timeout"`
	ConcurrencyLimit int           `yaml:"concurrency_limit"`
	CodeStart        int           `yaml:"code_start"`
	CodeEnd          int           `yaml:"code_end"`
}

// UpstreamConfig describes the camera image provider.
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ImagePath      string        `yaml:"image_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MinImageSizeKB int           `yaml:"min_image_size_kb"`
	MaxProbeBytes  int64         `yaml:"max_probe_bytes"`
	MaxRPS         float64       `yaml:"max_rps"`
	UserAgent      string        `yaml:"user_agent"`
}

// ProxyConfig holds live image relay settings.
// A RatePerSecond of zero disables per-client throttling.
type ProxyConfig struct {
	PlaceholderPath string        `yaml:"placeholder_path"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBytes        int64         `yaml:"max_bytes"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
	RateBurst       int           `yaml:"rate_burst"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	AdminEmails     []string            `yaml:"admin_emails"`
	OIDCIssuer      string              `yaml:"oidc_issuer"`
	OIDCAudience    string              `yaml:"oidc_audience"`
	OIDCJWKSURL     string              `yaml:"oidc_jwks_url"`
	FirebaseProject string              `yaml:"firebase_project"`
	StaticTokens    []StaticTokenConfig `yaml:"static_tokens"`
}

// StaticTokenConfig is a bcrypt-hashed service token.
type StaticTokenConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Hash  string `yaml:"hash"`
	Admin bool   `yaml:"admin"`
}

// OIDCEnabled reports whether an ID token issuer is configured.
func (a AuthConfig) OIDCEnabled() bool {
	return a.OIDCIssuer != ""
}

// MetadataConfig points at an optional legacy JSON seed file.
// Seed imports leave rows edited through the API alone unless SeedOverwrite
// is set.
type MetadataConfig struct {
	SeedPath      string `yaml:"seed_path"`
	WatchSeed     bool   `yaml:"watch_seed"`
	SeedOverwrite bool   `yaml:"seed_overwrite"`
}

// AppLinksConfig holds mobile deep-link association settings.
type AppLinksConfig struct {
	AndroidPackage      string   `yaml:"android_package"`
	AndroidFingerprints []string `yaml:"android_fingerprints"`
	AppleTeamID         string   `yaml:"apple_team_id"`
	IOSBundleID         string   `yaml:"ios_bundle_id"`
}

// WebhookConfig is an outbound notification target.
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Type   string   `yaml:"type"`
	Events []string `yaml:"events"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      3001,
			BasePath:  "/",
			PublicDir: "public",
			PublicURL: "https://www.olhovivorb.com.br",
		},
		Database: DatabaseConfig{
			Path:                "/data/camwatch.db",
			MaintenanceInterval: 24 * time.Hour,
		},
		Backup: BackupConfig{
			Interval:  24 * time.Hour,
			Retention: 7,
		},
		Scanner: ScannerConfig{
			UpdateInterval:   60 * time.Second,
			RetryDelay:       120 * time.Second,
			ScanTimeout:      300 * time.Second,
			ConcurrencyLimit: 15,
			CodeStart:        1000,
			CodeEnd:          1500,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://cameras.riobranco.ac.gov.br",
			ImagePath:      "/api/camera",
			RequestTimeout: 8 * time.Second,
			MinImageSizeKB: 22,
			MaxProbeBytes:  4 << 20,
			UserAgent:      "camwatch/1.0",
		},
		Proxy: ProxyConfig{
			Timeout:       8 * time.Second,
			MaxBytes:      10 << 20,
			RatePerSecond: 5,
			RateBurst:     20,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			FileMaxSizeMB:  100,
			FileMaxFiles:   3,
			FileMaxAgeDays: 30,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Server.Port},
		{"CONCURRENCY_LIMIT", &c.Scanner.ConcurrencyLimit},
		{"CAMERA_CODE_START", &c.Scanner.CodeStart},
		{"CAMERA_CODE_END", &c.Scanner.CodeEnd},
		{"MIN_IMAGE_SIZE_KB", &c.Upstream.MinImageSizeKB},
		{"CW_MAX_CONNECTIONS", &c.Server.MaxConnections},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	// Durations from the environment are expressed in milliseconds.
	millis := []struct {
		key string
		dst *time.Duration
	}{
		{"UPDATE_INTERVAL_MS", &c.Scanner.UpdateInterval},
		{"SCAN_TIMEOUT_MS", &c.Scanner.ScanTimeout},
		{"SCAN_RETRY_DELAY_MS", &c.Scanner.RetryDelay},
		{"REQUEST_TIMEOUT", &c.Upstream.RequestTimeout},
		{"CW_PROXY_TIMEOUT_MS", &c.Proxy.Timeout},
	}
	for _, e := range millis {
		if err := envMillis(e.key, e.dst); err != nil {
			return err
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"CW_BASE_PATH", &c.Server.BasePath},
		{"CW_PUBLIC_DIR", &c.Server.PublicDir},
		{"CW_PUBLIC_URL", &c.Server.PublicURL},
		{"CW_TLS_CERT_FILE", &c.Server.TLSCertFile},
		{"CW_TLS_KEY_FILE", &c.Server.TLSKeyFile},
		{"CW_DB_PATH", &c.Database.Path},
		{"CW_BACKUP_DIR", &c.Backup.Dir},
		{"CW_UPSTREAM_URL", &c.Upstream.BaseURL},
		{"CW_PLACEHOLDER_PATH", &c.Proxy.PlaceholderPath},
		{"CW_OIDC_ISSUER", &c.Auth.OIDCIssuer},
		{"CW_OIDC_AUDIENCE", &c.Auth.OIDCAudience},
		{"CW_OIDC_JWKS_URL", &c.Auth.OIDCJWKSURL},
		{"FIREBASE_PROJECT_ID", &c.Auth.FirebaseProject},
		{"CW_METADATA_SEED", &c.Metadata.SeedPath},
		{"ANDROID_PACKAGE", &c.AppLinks.AndroidPackage},
		{"APPLE_TEAM_ID", &c.AppLinks.AppleTeamID},
		{"IOS_BUNDLE_ID", &c.AppLinks.IOSBundleID},
		{"CW_LOG_LEVEL", &c.Logging.Level},
		{"CW_LOG_FORMAT", &c.Logging.Format},
		{"CW_LOG_FILE", &c.Logging.FilePath},
	}
	for _, e := range strs {
		if v := os.Getenv(e.key); v != "" {
			*e.dst = v
		}
	}

	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		c.Auth.AdminEmails = splitList(v)
	}
	if v := os.Getenv("ANDROID_SHA256_FINGERPRINTS"); v != "" {
		c.AppLinks.AndroidFingerprints = splitList(v)
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{"CW_HTTP3", &c.Server.HTTP3},
		{"CW_METADATA_SEED_OVERWRITE", &c.Metadata.SeedOverwrite},
	}
	for _, e := range bools {
		if v := os.Getenv(e.key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", e.key, err)
			}
			*e.dst = b
		}
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envMillis(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(n) * time.Millisecond
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	s := c.Scanner
	if s.CodeStart < 0 || s.CodeEnd > 999999 || s.CodeStart > s.CodeEnd {
		return fmt.Errorf("invalid camera code range: %d..%d", s.CodeStart, s.CodeEnd)
	}
	if s.ConcurrencyLimit < 1 {
		return fmt.Errorf("concurrency limit must be at least 1, got %d", s.ConcurrencyLimit)
	}
	if s.UpdateInterval <= 0 || s.RetryDelay <= 0 || s.ScanTimeout <= 0 {
		return fmt.Errorf("scanner intervals must be positive")
	}

	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("upstream request timeout must be positive")
	}
	if c.Upstream.MinImageSizeKB < 0 {
		return fmt.Errorf("min image size must not be negative")
	}
	if floor := int64(c.Upstream.MinImageSizeKB) * 1024; c.Upstream.MaxProbeBytes <= floor {
		return fmt.Errorf("upstream max_probe_bytes (%d) must exceed min_image_size_kb (%d bytes)",
			c.Upstream.MaxProbeBytes, floor)
	}
	if _, err := url.ParseRequestURI(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("invalid upstream base url %q: %w", c.Upstream.BaseURL, err)
	}
	if c.Proxy.MaxBytes <= 0 {
		return fmt.Errorf("proxy max bytes must be positive")
	}
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("proxy timeout must be positive")
	}
	if c.Proxy.RatePerSecond < 0 || c.Proxy.RateBurst < 0 {
		return fmt.Errorf("proxy rate limit must not be negative")
	}

	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
	}

	if c.Auth.OIDCIssuer == "" && c.Auth.FirebaseProject != "" {
		c.Auth.OIDCIssuer = "https://securetoken.google.com/" + c.Auth.FirebaseProject
		if c.Auth.OIDCJWKSURL == "" {
			c.Auth.OIDCJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
		}
	}
	if c.Auth.OIDCAudience == "" {
		c.Auth.OIDCAudience = c.Auth.FirebaseProject
	}
	for i, e := range c.Auth.AdminEmails {
		c.Auth.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = filepath.Join(filepath.Dir(c.Database.Path), "backups")
	}
	if c.Database.AuditRetention < 0 {
		return fmt.Errorf("database audit_retention must not be negative")
	}
	if c.Backup.Retention < 1 {
		return fmt.Errorf("backup retention must be at least 1, got %d", c.Backup.Retention)
	}

	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	c.Server.PublicURL = strings.TrimRight(c.Server.PublicURL, "/")
	return nil
}
