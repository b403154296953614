// Package hostclient drives one authenticated upload operation against one
// file host. It abstracts the standard single-request wire shape and the
// multi-step init/upload/poll shape, retries transient failures with
// bounded exponential backoff, and refreshes credentials both reactively
// (on an auth failure) and proactively (remaining TTL under the refresh
// slack before a transfer starts).
package hostclient

import (
	"log/slog"
	"net/http"
	"time"

	"imxup/internal/config"
	"imxup/internal/logging"
	"imxup/internal/tokens"
)

// FailureKind classifies why an upload call failed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureNetwork   FailureKind = "network"
	FailureAuth      FailureKind = "auth"
	FailureQuota     FailureKind = "quota"
	FailureRejected  FailureKind = "rejected"
	FailureCancelled FailureKind = "cancelled"
)

// Outcome is the structured result of one upload call.
type Outcome struct {
	OK bool
	// FileID and URL are the host-assigned identifiers on success.
	FileID string
	URL    string
	Kind   FailureKind
	Err    error
}

func success(fileID, url string) Outcome {
	return Outcome{OK: true, FileID: fileID, URL: url}
}

func failure(kind FailureKind, err error) Outcome {
	return Outcome{Kind: kind, Err: err}
}

// Progress receives aggregated byte counts at a bounded cadence, never
// per-byte.
type Progress func(done, total int64)

// ShouldStop is polled at the progress cadence; returning true cancels the
// transfer cooperatively.
type ShouldStop func() bool

// UploadRequest describes one file to push to the host.
type UploadRequest struct {
	Path       string
	Name       string
	Size       int64
	Progress   Progress
	ShouldStop ShouldStop
}

// Client performs upload operations against a single host. It is stateless
// per call: credentials live in the token cache, not on the client.
type Client struct {
	host   config.Host
	http   *http.Client
	tokens *tokens.Cache
	logger *slog.Logger

	retryAttempts    int
	retryBaseDelay   time.Duration
	refreshSlack     time.Duration
	progressInterval time.Duration

	pollInterval    time.Duration
	pollMaxAttempts int

	now   func() time.Time
	sleep func(d time.Duration) <-chan time.Time
}

// New builds a client for one host using the upload policy from cfg.
func New(cfg *config.Config, host config.Host, cache *tokens.Cache, logger *slog.Logger) *Client {
	return &Client{
		host:             host,
		http:             &http.Client{Timeout: time.Duration(cfg.Upload.RequestTimeout) * time.Second},
		tokens:           cache,
		logger:           logging.NewComponentLogger(logger, "hostclient-"+host.Name),
		retryAttempts:    cfg.Upload.RetryAttempts,
		retryBaseDelay:   time.Duration(cfg.Upload.RetryBaseDelay) * time.Second,
		refreshSlack:     time.Duration(cfg.Upload.TokenRefreshSlack) * time.Second,
		progressInterval: time.Duration(cfg.Upload.ProgressInterval) * time.Millisecond,
		pollInterval:     2 * time.Second,
		pollMaxAttempts:  90,
		now:              time.Now,
		sleep:            time.After,
	}
}

// Host returns the host name this client talks to.
func (c *Client) Host() string {
	return c.host.Name
}
