package config

const (
	defaultDataDir    = "~/.local/share/imxup"
	defaultLogDir     = "~/.local/share/imxup/logs"
	defaultStagingDir = "~/.local/share/imxup/staging"
	defaultSocketPath = "~/.local/share/imxup/imxup.sock"

	defaultPrimaryBaseURL = "https://imx.to"
	defaultThumbSize      = 3
	defaultContentType    = 0

	defaultUploadConcurrency  = 4
	defaultRetryAttempts      = 3
	defaultRetryBaseDelay     = 1
	defaultProgressIntervalMs = 500
	defaultRequestTimeout     = 120
	defaultTokenRefreshSlack  = 60

	defaultRenameReauthInterval = 5

	defaultHookTimeout = 60

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			StagingDir: defaultStagingDir,
			SocketPath: defaultSocketPath,
		},
		Primary: Primary{
			BaseURL:     defaultPrimaryBaseURL,
			ThumbSize:   defaultThumbSize,
			ContentType: defaultContentType,
		},
		Upload: Upload{
			Concurrency:       defaultUploadConcurrency,
			RetryAttempts:     defaultRetryAttempts,
			RetryBaseDelay:    defaultRetryBaseDelay,
			ProgressInterval:  defaultProgressIntervalMs,
			RequestTimeout:    defaultRequestTimeout,
			TokenRefreshSlack: defaultTokenRefreshSlack,
		},
		Rename: Rename{
			ReauthInterval: defaultRenameReauthInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
