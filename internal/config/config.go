// Package config loads SecretVault settings from an optional YAML file and
// SECRETVAULT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Hussein-Mazeh/secretvault/auth"
	"github.com/Hussein-Mazeh/secretvault/krypto"
)

// Environment variables read by Load.
const (
	EnvConfig     = "SECRETVAULT_CONFIG"
	EnvPath       = "SECRETVAULT_PATH"
	EnvLockPath   = "SECRETVAULT_LOCK_PATH"
	EnvLogLevel   = "SECRETVAULT_LOG_LEVEL"
	EnvCipher     = "SECRETVAULT_CIPHER"
	EnvAudit      = "SECRETVAULT_AUDIT"
	EnvPassphrase = "SECRETVAULT_PASSPHRASE"
)

type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Vault struct {
		Path          string `yaml:"path"`
		LockPath      string `yaml:"lock_path"`
		AuditPath     string `yaml:"audit_path"`
		Cipher        string `yaml:"cipher"`
		Audit         bool   `yaml:"audit"`
		RollbackGuard bool   `yaml:"rollback_guard"`
	} `yaml:"vault"`
	KDF struct {
		MemoryMB    uint32 `yaml:"memory_mb"`
		Time        uint32 `yaml:"time"`
		Parallelism uint8  `yaml:"parallelism"`
	} `yaml:"kdf"`
	Policy  auth.Policy `yaml:"policy"`
	Logging Logging     `yaml:"logging"`
}

// Default returns the built-in settings.
func Default() Config {
	var c Config
	c.Vault.Path = defaultVaultPath()
	c.Vault.Cipher = string(krypto.DefaultSuite)
	c.Vault.Audit = true
	c.Vault.RollbackGuard = true
	p := krypto.DefaultArgon2Params()
	c.KDF.MemoryMB = p.MemoryMB
	c.KDF.Time = p.Time
	c.KDF.Parallelism = p.Parallelism
	c.Policy = auth.DefaultPolicy()
	c.Logging.Level = "warn"
	c.Logging.Pretty = true
	return c
}

func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".secretvault", "vault.svlt")
	}
	return filepath.Join(home, ".secretvault", "vault.svlt")
}

// Load applies the config file named by SECRETVAULT_CONFIG (if any) and then
// environment overrides to the defaults.
func Load() (Config, error) {
	c := Default()
	if path := os.Getenv(EnvConfig); path != "" {
		if err := c.mergeFile(path); err != nil {
			return c, err
		}
	}
	if v := os.Getenv(EnvPath); v != "" {
		c.Vault.Path = v
	}
	if v := os.Getenv(EnvLockPath); v != "" {
		c.Vault.LockPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvCipher); v != "" {
		c.Vault.Cipher = v
	}
	if v := os.Getenv(EnvAudit); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, fmt.Errorf("%s: %w", EnvAudit, err)
		}
		c.Vault.Audit = b
	}
	return c, c.Validate()
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the engine cannot use.
func (c Config) Validate() error {
	if c.Vault.Path == "" {
		return errors.New("vault path is empty")
	}
	if _, err := krypto.ParseSuite(c.Vault.Cipher); err != nil {
		return fmt.Errorf("vault.cipher: %w", err)
	}
	if err := krypto.ValidateParams(c.Argon2Params()); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	if c.Policy.MinScore < 0 || c.Policy.MinScore > 4 {
		return fmt.Errorf("policy.min_score must be between 0 and 4, got %d", c.Policy.MinScore)
	}
	return nil
}

// Suite returns the configured cipher suite.
func (c Config) Suite() krypto.Suite {
	s, err := krypto.ParseSuite(c.Vault.Cipher)
	if err != nil {
		return krypto.DefaultSuite
	}
	return s
}

// Argon2Params returns the KDF parameters for new vaults.
func (c Config) Argon2Params() krypto.Argon2Params {
	return krypto.Argon2Params{
		MemoryMB:    c.KDF.MemoryMB,
		Time:        c.KDF.Time,
		Parallelism: c.KDF.Parallelism,
		KeyLen:      krypto.KeyLengthBytes,
	}
}

// LockFile is the advisory lock path, next to the vault unless set.
func (c Config) LockFile() string {
	if c.Vault.LockPath != "" {
		return c.Vault.LockPath
	}
	return c.Vault.Path + ".lock"
}

// AuditFile is the audit database path, next to the vault unless set.
func (c Config) AuditFile() string {
	if c.Vault.AuditPath != "" {
		return c.Vault.AuditPath
	}
	return c.Vault.Path + ".audit.db"
}
