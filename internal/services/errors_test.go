package services

import (
	"errors"
	"testing"

	"imxup/internal/queue"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrAuth, "hostclient", "login", "primary", errors.New("401"))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("wrapped error lost its marker: %v", err)
	}
	if errors.Is(err, ErrNetwork) {
		t.Fatalf("wrapped error matches the wrong marker: %v", err)
	}
}

func TestFailureStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		partial bool
		want    queue.State
	}{
		{"cancelled", Wrap(ErrCancelled, "uploader", "run", "", nil), false, queue.StatePaused},
		{"auth with progress", Wrap(ErrAuth, "hostclient", "upload", "", nil), true, queue.StateIncomplete},
		{"auth without progress", Wrap(ErrAuth, "hostclient", "upload", "", nil), false, queue.StateFailed},
		{"nil with progress", nil, true, queue.StateIncomplete},
	}
	for _, tc := range cases {
		if got := FailureStatus(tc.err, tc.partial); got != tc.want {
			t.Fatalf("%s: FailureStatus = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Wrap(ErrNetwork, "hostclient", "upload", "timeout", nil)) {
		t.Fatal("network errors should be retryable")
	}
	for _, err := range []error{
		Wrap(ErrAuth, "hostclient", "upload", "", nil),
		Wrap(ErrQuota, "hostclient", "upload", "", nil),
		Wrap(ErrRejected, "hostclient", "upload", "", nil),
		ErrCancelled,
	} {
		if IsRetryable(err) {
			t.Fatalf("error should not be retryable: %v", err)
		}
	}
}
