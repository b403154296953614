package services

import (
	"errors"
	"fmt"
	"strings"

	"imxup/internal/queue"
)

var (
	// ErrNetwork covers timeouts, connection failures and 5xx responses.
	// Callers retry these with bounded backoff before giving up.
	ErrNetwork = errors.New("network error")
	// ErrAuth covers 401/403 responses and failed logins. Surfaced distinctly
	// so the UI can prompt for credentials instead of suggesting a retry.
	ErrAuth = errors.New("authentication error")
	// ErrQuota indicates the host rejected an upload for lack of storage.
	ErrQuota = errors.New("quota exceeded")
	// ErrRejected covers permanent 4xx rejections that must not be retried.
	ErrRejected = errors.New("rejected by host")
	// ErrValidation covers bad local input: missing folder, zero images.
	ErrValidation = errors.New("validation error")
	// ErrCancelled marks a cooperative stop. Not a failure.
	ErrCancelled = errors.New("cancelled")
	// ErrChallenge marks an anti-bot challenge page returned in place of a
	// normal response. Distinct from ErrAuth: re-authenticating does not
	// clear it and callers must back off instead.
	ErrChallenge = errors.New("anti-bot challenge")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps an upload error to the gallery state the workflow
// manager should persist after the work fails. Cancellation maps to Paused,
// validation failures keep the gallery in Validating via Failed-fast
// semantics handled by the caller, and anything else is a plain failure.
func FailureStatus(err error, partialProgress bool) queue.State {
	switch {
	case errors.Is(err, ErrCancelled):
		return queue.StatePaused
	case partialProgress:
		return queue.StateIncomplete
	default:
		return queue.StateFailed
	}
}

// IsRetryable reports whether an error is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
