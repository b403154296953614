package testsupport

import (
	"path/filepath"
	"testing"

	"imxup/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.SocketPath = filepath.Join(base, "imxup.sock")
	cfg.Primary.Username = "tester"
	cfg.Primary.Password = "secret"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithHosts replaces the secondary host list on the test config.
func WithHosts(hosts ...config.Host) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Hosts = hosts
	}
}

// WithHooks replaces the hook list on the test config.
func WithHooks(hooks ...config.Hook) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Hooks = hooks
	}
}
