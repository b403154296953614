// Package config loads, normalizes, and validates imxup's TOML configuration.
package config
