package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("port = %d, want 3001", cfg.Server.Port)
	}
	if cfg.Scanner.ConcurrencyLimit != 15 {
		t.Errorf("concurrency = %d, want 15", cfg.Scanner.ConcurrencyLimit)
	}
	if cfg.Scanner.CodeStart != 1000 || cfg.Scanner.CodeEnd != 1500 {
		t.Errorf("range = %d..%d, want 1000..1500", cfg.Scanner.CodeStart, cfg.Scanner.CodeEnd)
	}
	if cfg.Scanner.ScanTimeout != 5*time.Minute {
		t.Errorf("scan timeout = %v, want 5m", cfg.Scanner.ScanTimeout)
	}
	if cfg.Upstream.RequestTimeout != 8*time.Second {
		t.Errorf("request timeout = %v, want 8s", cfg.Upstream.RequestTimeout)
	}
	if cfg.Server.BasePath != "" {
		t.Errorf("base path = %q, want empty after trim", cfg.Server.BasePath)
	}
	if cfg.Backup.Dir != "/data/backups" || cfg.Backup.Retention != 7 {
		t.Errorf("backup = %+v, want /data/backups with retention 7", cfg.Backup)
	}
	if cfg.Proxy.Timeout != 8*time.Second {
		t.Errorf("proxy timeout = %v, want 8s", cfg.Proxy.Timeout)
	}
	if cfg.Metadata.SeedOverwrite {
		t.Error("seed overwrite should be off by default")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9000
database:
  path: /srv/cams/camwatch.db
  audit_retention: 720h
backup:
  retention: 3
  max_age: 168h
scanner:
  update_interval: 30s
  concurrency_limit: 4
  code_start: 10
  code_end: 20
auth:
  admin_emails: ["Admin@Example.com"]
  firebase_project: my-project
webhooks:
  - name: ops
    url: http://hooks.local/x
    events: [scan.timed_out]
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Scanner.UpdateInterval != 30*time.Second {
		t.Errorf("interval = %v", cfg.Scanner.UpdateInterval)
	}
	if cfg.Scanner.ConcurrencyLimit != 4 {
		t.Errorf("concurrency = %d", cfg.Scanner.ConcurrencyLimit)
	}
	if got := cfg.Auth.AdminEmails[0]; got != "admin@example.com" {
		t.Errorf("admin email = %q, want lowercased", got)
	}
	if cfg.Auth.OIDCIssuer != "https://securetoken.google.com/my-project" {
		t.Errorf("issuer = %q", cfg.Auth.OIDCIssuer)
	}
	if cfg.Auth.OIDCAudience != "my-project" {
		t.Errorf("audience = %q", cfg.Auth.OIDCAudience)
	}
	if cfg.Database.AuditRetention != 720*time.Hour {
		t.Errorf("audit retention = %v", cfg.Database.AuditRetention)
	}
	if cfg.Backup.Dir != "/srv/cams/backups" || cfg.Backup.Retention != 3 || cfg.Backup.MaxAge != 168*time.Hour {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "scan.timed_out" {
		t.Errorf("webhooks = %+v", cfg.Webhooks)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("UPDATE_INTERVAL_MS", "1500")
	t.Setenv("SCAN_TIMEOUT_MS", "2000")
	t.Setenv("SCAN_RETRY_DELAY_MS", "500")
	t.Setenv("REQUEST_TIMEOUT", "250")
	t.Setenv("CONCURRENCY_LIMIT", "3")
	t.Setenv("CAMERA_CODE_START", "1")
	t.Setenv("CAMERA_CODE_END", "9")
	t.Setenv("MIN_IMAGE_SIZE_KB", "1")
	t.Setenv("ADMIN_EMAIL", "a@x.com, b@x.com")
	t.Setenv("CW_PROXY_TIMEOUT_MS", "3000")
	t.Setenv("CW_METADATA_SEED_OVERWRITE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Scanner.UpdateInterval != 1500*time.Millisecond {
		t.Errorf("interval = %v", cfg.Scanner.UpdateInterval)
	}
	if cfg.Scanner.ScanTimeout != 2*time.Second {
		t.Errorf("scan timeout = %v", cfg.Scanner.ScanTimeout)
	}
	if cfg.Scanner.RetryDelay != 500*time.Millisecond {
		t.Errorf("retry = %v", cfg.Scanner.RetryDelay)
	}
	if cfg.Upstream.RequestTimeout != 250*time.Millisecond {
		t.Errorf("request timeout = %v", cfg.Upstream.RequestTimeout)
	}
	if cfg.Scanner.CodeStart != 1 || cfg.Scanner.CodeEnd != 9 {
		t.Errorf("range = %d..%d", cfg.Scanner.CodeStart, cfg.Scanner.CodeEnd)
	}
	if len(cfg.Auth.AdminEmails) != 2 || cfg.Auth.AdminEmails[1] != "b@x.com" {
		t.Errorf("admins = %v", cfg.Auth.AdminEmails)
	}
	if cfg.Proxy.Timeout != 3*time.Second {
		t.Errorf("proxy timeout = %v, want 3s", cfg.Proxy.Timeout)
	}
	if cfg.Upstream.RequestTimeout == cfg.Proxy.Timeout {
		t.Error("proxy timeout should be independent of the probe timeout")
	}
	if !cfg.Metadata.SeedOverwrite {
		t.Error("seed overwrite = false, want true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "0"}},
		{"non-numeric port", map[string]string{"PORT": "abc"}},
		{"inverted range", map[string]string{"CAMERA_CODE_START": "20", "CAMERA_CODE_END": "10"}},
		{"range too wide", map[string]string{"CAMERA_CODE_END": "1000000"}},
		{"zero concurrency", map[string]string{"CONCURRENCY_LIMIT": "0"}},
		{"zero interval", map[string]string{"UPDATE_INTERVAL_MS": "0"}},
		{"bad upstream", map[string]string{"CW_UPSTREAM_URL": "not a url"}},
		{"probe cap not above image threshold", map[string]string{"MIN_IMAGE_SIZE_KB": "4096"}},
		{"zero proxy timeout", map[string]string{"CW_PROXY_TIMEOUT_MS": "0"}},
		{"bad seed overwrite", map[string]string{"CW_METADATA_SEED_OVERWRITE": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_ProxyAndProbeLimits(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"zero disables", "proxy:\n  rate_per_second: 0\n", false},
		{"negative rate", "proxy:\n  rate_per_second: -1\n", true},
		{"negative burst", "proxy:\n  rate_burst: -5\n", true},
		{"probe cap at threshold", "upstream:\n  min_image_size_kb: 22\n  max_probe_bytes: 22528\n", true},
		{"probe cap above threshold", "upstream:\n  min_image_size_kb: 22\n  max_probe_bytes: 22529\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
