package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvConfig, EnvPath, EnvLockPath, EnvLogLevel, EnvCipher, EnvAudit} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.HasSuffix(c.Vault.Path, filepath.Join(".secretvault", "vault.svlt")) {
		t.Fatalf("unexpected default vault path %s", c.Vault.Path)
	}
	if c.Vault.Cipher != "aes-256-gcm" {
		t.Fatalf("expected default cipher aes-256-gcm, got %s", c.Vault.Cipher)
	}
	if c.LockFile() != c.Vault.Path+".lock" {
		t.Fatalf("lock file should sit next to the vault, got %s", c.LockFile())
	}
	if c.AuditFile() != c.Vault.Path+".audit.db" {
		t.Fatalf("audit file should sit next to the vault, got %s", c.AuditFile())
	}
	if c.Argon2Params().MemoryMB != 64 {
		t.Fatalf("expected 64 MiB default, got %d", c.Argon2Params().MemoryMB)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPath, "/tmp/sv/test.svlt")
	t.Setenv(EnvLockPath, "/tmp/sv/other.lock")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvCipher, "xchacha20-poly1305")
	t.Setenv(EnvAudit, "false")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Vault.Path != "/tmp/sv/test.svlt" || c.LockFile() != "/tmp/sv/other.lock" {
		t.Fatalf("path overrides failed: %+v", c.Vault)
	}
	if c.Logging.Level != "debug" {
		t.Fatalf("env override failed for log level, got %s", c.Logging.Level)
	}
	if c.Suite() != "xchacha20-poly1305" {
		t.Fatalf("env override failed for cipher, got %s", c.Suite())
	}
	if c.Vault.Audit {
		t.Fatalf("expected audit disabled")
	}
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "secretvault.yaml")
	yml := `
vault:
  path: /srv/vault.svlt
  cipher: xchacha20-poly1305
kdf:
  memory_mb: 128
  time: 4
  parallelism: 2
policy:
  min_score: 3
  require_complexity: true
logging:
  level: info
  pretty: false
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvLogLevel, "error")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Vault.Path != "/srv/vault.svlt" || c.Suite() != "xchacha20-poly1305" {
		t.Fatalf("file values not applied: %+v", c.Vault)
	}
	if p := c.Argon2Params(); p.MemoryMB != 128 || p.Time != 4 || p.Parallelism != 2 {
		t.Fatalf("kdf values not applied: %+v", p)
	}
	if c.Policy.MinScore != 3 || !c.Policy.RequireComplexity {
		t.Fatalf("policy not applied: %+v", c.Policy)
	}
	if !c.Vault.Audit {
		t.Fatalf("unset keys should keep defaults")
	}
	if c.Logging.Level != "error" {
		t.Fatalf("env should win over file, got %s", c.Logging.Level)
	}
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvCipher, "rot13")
	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown cipher to be rejected")
	}

	clearEnv(t)
	t.Setenv(EnvConfig, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing config file to be an error")
	}

	clearEnv(t)
	t.Setenv(EnvAudit, "maybe")
	if _, err := Load(); err == nil {
		t.Fatalf("expected bad boolean to be rejected")
	}
}
