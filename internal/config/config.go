package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for lsky-uploader.
type Config struct {
	// Lsky Pro server base URL, e.g. https://img.example.com/api/v1.
	ServerURL string `env:"LSKY_SERVER_URL"`

	// Lsky Pro account credentials.
	Email    string `env:"LSKY_EMAIL"`
	Password string `env:"LSKY_PASSWORD"`

	// Storage strategy passed with every upload. Lsky defaults to 1.
	StrategyID int `env:"LSKY_STRATEGY_ID" envDefault:"1"`

	// Vault directory containing the markdown notes.
	VaultDir string `env:"VAULT_DIR"`

	// Folder name conventionally holding note attachments. Used by the
	// path resolver when generating candidate locations for a reference.
	AttachmentFolder string `env:"ATTACHMENT_FOLDER" envDefault:"attachments"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Endpoint URLs are built by string concatenation, so a trailing
	// slash would produce double slashes in every request path.
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve VaultDir to an absolute path at startup. Downstream code
	// uses it for path traversal checks, which rely on string prefix
	// comparison and only work reliably with absolute paths.
	absDir, err := filepath.Abs(cfg.VaultDir)
	if err != nil {
		return nil, fmt.Errorf("resolving vault dir to absolute path: %w", err)
	}

	cfg.VaultDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("LSKY_SERVER_URL is required")
	}

	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("LSKY_SERVER_URL must start with http:// or https://")
	}

	if c.Email == "" {
		return fmt.Errorf("LSKY_EMAIL is required")
	}

	if c.Password == "" {
		return fmt.Errorf("LSKY_PASSWORD is required")
	}

	if c.VaultDir == "" {
		return fmt.Errorf("VAULT_DIR is required")
	}

	if c.StrategyID <= 0 {
		return fmt.Errorf("LSKY_STRATEGY_ID must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
