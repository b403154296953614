package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePrimary()
	c.normalizeHosts()
	c.normalizeUpload()
	c.normalizeRename()
	c.normalizeHooks()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePrimary() {
	c.Primary.BaseURL = strings.TrimRight(strings.TrimSpace(c.Primary.BaseURL), "/")
	if c.Primary.BaseURL == "" {
		c.Primary.BaseURL = defaultPrimaryBaseURL
	}
	if c.Primary.Username == "" {
		if value, ok := os.LookupEnv("IMXUP_USERNAME"); ok {
			c.Primary.Username = value
		}
	}
	if c.Primary.Password == "" {
		if value, ok := os.LookupEnv("IMXUP_PASSWORD"); ok {
			c.Primary.Password = value
		}
	}
	if c.Primary.ThumbSize < 1 || c.Primary.ThumbSize > 6 {
		c.Primary.ThumbSize = defaultThumbSize
	}
	if c.Primary.ContentType != 0 && c.Primary.ContentType != 1 {
		c.Primary.ContentType = defaultContentType
	}
}

func (c *Config) normalizeHosts() {
	for i := range c.Hosts {
		host := &c.Hosts[i]
		host.Name = strings.ToLower(strings.TrimSpace(host.Name))
		host.BaseURL = strings.TrimRight(strings.TrimSpace(host.BaseURL), "/")
		if host.Auth == "" {
			host.Auth = AuthAPIKey
		}
		if host.MinImages < 0 {
			host.MinImages = 0
		}
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.Concurrency <= 0 {
		c.Upload.Concurrency = defaultUploadConcurrency
	}
	if c.Upload.RetryAttempts <= 0 {
		c.Upload.RetryAttempts = defaultRetryAttempts
	}
	if c.Upload.RetryBaseDelay <= 0 {
		c.Upload.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.Upload.ProgressInterval <= 0 {
		c.Upload.ProgressInterval = defaultProgressIntervalMs
	}
	if c.Upload.RequestTimeout <= 0 {
		c.Upload.RequestTimeout = defaultRequestTimeout
	}
	if c.Upload.TokenRefreshSlack <= 0 {
		c.Upload.TokenRefreshSlack = defaultTokenRefreshSlack
	}
}

func (c *Config) normalizeRename() {
	if c.Rename.ReauthInterval <= 0 {
		c.Rename.ReauthInterval = defaultRenameReauthInterval
	}
}

func (c *Config) normalizeHooks() {
	for i := range c.Hooks {
		hook := &c.Hooks[i]
		hook.Event = strings.ToLower(strings.TrimSpace(hook.Event))
		if hook.Event == "" {
			hook.Event = "completed"
		}
		if hook.Timeout <= 0 {
			hook.Timeout = defaultHookTimeout
		}
		if hook.Mode != HookSequential {
			hook.Mode = HookParallel
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// ExpandPath resolves ~ prefixes and makes the path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
