package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePrimary(); err != nil {
		return err
	}
	if err := c.validateHosts(); err != nil {
		return err
	}
	if err := c.validateHooks(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePrimary() error {
	if c.Primary.BaseURL == "" {
		return errors.New("primary.base_url must be set")
	}
	if c.Primary.ThumbSize < 1 || c.Primary.ThumbSize > 6 {
		return errors.New("primary.thumb_size must be between 1 and 6")
	}
	return nil
}

func (c *Config) validateHosts() error {
	seen := make(map[string]struct{}, len(c.Hosts))
	for _, host := range c.Hosts {
		if host.Name == "" {
			return errors.New("hosts entries require a name")
		}
		if _, dup := seen[host.Name]; dup {
			return fmt.Errorf("duplicate host name %q", host.Name)
		}
		seen[host.Name] = struct{}{}

		switch host.Auth {
		case AuthAPIKey, AuthToken, AuthSession:
		default:
			return fmt.Errorf("host %s: unknown auth kind %q", host.Name, host.Auth)
		}
		if !host.Enabled {
			continue
		}
		if host.BaseURL == "" {
			return fmt.Errorf("host %s: base_url must be set when enabled", host.Name)
		}
		switch host.Auth {
		case AuthAPIKey:
			if strings.TrimSpace(host.APIKey) == "" {
				return fmt.Errorf("host %s: api_key required for api_key auth", host.Name)
			}
		case AuthToken, AuthSession:
			if strings.TrimSpace(host.Username) == "" || strings.TrimSpace(host.Password) == "" {
				return fmt.Errorf("host %s: username and password required for %s auth", host.Name, host.Auth)
			}
		}
	}
	return nil
}

func (c *Config) validateHooks() error {
	for i, hook := range c.Hooks {
		if strings.TrimSpace(hook.Command) == "" {
			return fmt.Errorf("hooks[%d]: command must be set", i)
		}
		for field := range hook.ExtMap {
			switch field {
			case "ext1", "ext2", "ext3", "ext4":
			default:
				return fmt.Errorf("hooks[%d]: ext_map key %q is not an ext field", i, field)
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
