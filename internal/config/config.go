package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
	SocketPath string `toml:"socket_path"`
}

// Primary contains settings for the primary image host.
type Primary struct {
	BaseURL     string `toml:"base_url"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ThumbSize   int    `toml:"thumb_size"`
	ContentType int    `toml:"content_type"`
}

// AuthKind enumerates the authentication schemes a secondary host may use.
type AuthKind string

const (
	AuthAPIKey  AuthKind = "api_key"
	AuthToken   AuthKind = "token"
	AuthSession AuthKind = "session"
)

// Host contains per-secondary-host settings.
type Host struct {
	Name     string   `toml:"name"`
	Enabled  bool     `toml:"enabled"`
	BaseURL  string   `toml:"base_url"`
	Auth     AuthKind `toml:"auth"`
	APIKey   string   `toml:"api_key"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	// MultiStep selects the init/upload/poll wire shape instead of a
	// single-request upload.
	MultiStep bool `toml:"multi_step"`
	// Trigger predicate: galleries qualify when they have at least
	// MinImages files and the display name contains NameContains.
	MinImages    int    `toml:"min_images"`
	NameContains string `toml:"name_contains"`
}

// Upload contains primary-upload engine settings.
type Upload struct {
	Concurrency       int `toml:"concurrency"`
	RetryAttempts     int `toml:"retry_attempts"`
	RetryBaseDelay    int `toml:"retry_base_delay"`    // seconds
	ProgressInterval  int `toml:"progress_interval"`   // milliseconds between progress callbacks
	RequestTimeout    int `toml:"request_timeout"`     // seconds per HTTP request
	TokenRefreshSlack int `toml:"token_refresh_slack"` // seconds of TTL left that forces a refresh
}

// Rename contains settings for the background rename worker.
type Rename struct {
	ReauthInterval int `toml:"reauth_interval"` // minimum seconds between re-logins
}

// HookMode selects how hooks for the same event are scheduled.
type HookMode string

const (
	HookParallel   HookMode = "parallel"
	HookSequential HookMode = "sequential"
)

// Hook describes one user-configured external program.
type Hook struct {
	Event    string   `toml:"event"`
	Command  string   `toml:"command"`
	Timeout  int      `toml:"timeout"` // seconds
	Mode     HookMode `toml:"mode"`
	Required bool     `toml:"required"`
	// ExtMap maps JSON keys from the hook's stdout onto gallery ext
	// fields, e.g. "ext1" = "download_url".
	ExtMap map[string]string `toml:"ext_map"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for imxup.
//
// Configuration sections by subsystem:
//   - Paths: data/log/staging directories and IPC socket
//   - Primary: primary image host credentials and upload defaults
//   - Hosts: secondary file hosts the archive is mirrored to
//   - Upload: engine concurrency, retry policy, progress cadence
//   - Rename: rename worker re-authentication rate limit
//   - Hooks: post-upload external programs
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Primary Primary `toml:"primary"`
	Hosts   []Host  `toml:"hosts"`
	Upload  Upload  `toml:"upload"`
	Rename  Rename  `toml:"rename"`
	Hooks   []Hook  `toml:"hooks"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imxup/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	// Sealed credentials are opened in memory only; the file keeps the
	// envelopes.
	if err := cfg.openCredentials(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o600)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HostByName returns the host block matching name, nil when absent.
func (c *Config) HostByName(name string) *Host {
	for i := range c.Hosts {
		if strings.EqualFold(c.Hosts[i].Name, name) {
			return &c.Hosts[i]
		}
	}
	return nil
}

// PrimaryHost adapts the primary-host section into a Host block so the
// protocol client can drive it like any other host. The primary host
// authenticates with a session login.
func (c *Config) PrimaryHost() Host {
	return Host{
		Name:     "primary",
		Enabled:  true,
		BaseURL:  c.Primary.BaseURL,
		Auth:     AuthSession,
		Username: c.Primary.Username,
		Password: c.Primary.Password,
	}
}

// EnabledHosts returns the hosts that should run a worker.
func (c *Config) EnabledHosts() []Host {
	var out []Host
	for _, host := range c.Hosts {
		if host.Enabled {
			out = append(out, host)
		}
	}
	return out
}
