package hostclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"imxup/internal/config"
	"imxup/internal/logging"
	"imxup/internal/tokens"
)

func newTestClient(t *testing.T, host config.Host) *Client {
	t.Helper()
	cache, err := tokens.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open token cache: %v", err)
	}
	return &Client{
		host:             host,
		http:             &http.Client{Timeout: 5 * time.Second},
		tokens:           cache,
		logger:           logging.NewNop(),
		retryAttempts:    3,
		retryBaseDelay:   time.Millisecond,
		refreshSlack:     time.Minute,
		progressInterval: 0,
		pollInterval:     time.Millisecond,
		pollMaxAttempts:  10,
		now:              time.Now,
		sleep: func(d time.Duration) <-chan time.Time {
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			return ch
		},
	}
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img1.jpg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func uploadRequest(t *testing.T, content string) UploadRequest {
	path := writeTestFile(t, content)
	return UploadRequest{Path: path, Name: "img1.jpg", Size: int64(len(content))}
}

func TestStandardUploadSuccess(t *testing.T) {
	var sawKey atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") == "k-123" {
			sawKey.Store(true)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(uploadResponse{FileID: "f-1", URL: "https://host/f-1"})
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k-123"})
	outcome := client.Upload(context.Background(), uploadRequest(t, "payload"))
	if !outcome.OK {
		t.Fatalf("upload failed: %v", outcome.Err)
	}
	if outcome.FileID != "f-1" || outcome.URL != "https://host/f-1" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !sawKey.Load() {
		t.Fatal("API key header not sent")
	}
}

func TestTransientFailureRetriedWithBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(uploadResponse{FileID: "f-2"})
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k"})
	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if !outcome.OK {
		t.Fatalf("expected success after retries, got %+v", outcome)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestTransientFailureExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k"})
	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if outcome.OK || outcome.Kind != FailureNetwork {
		t.Fatalf("expected network failure, got %+v", outcome)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestPermanentRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k"})
	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if outcome.OK || outcome.Kind != FailureRejected {
		t.Fatalf("expected rejection, got %+v", outcome)
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent failure retried: %d calls", calls.Load())
	}
}

func TestQuotaFailureNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "full", http.StatusInsufficientStorage)
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k"})
	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if outcome.OK || outcome.Kind != FailureQuota {
		t.Fatalf("expected quota failure, got %+v", outcome)
	}
}

func TestAuthFailureTriggersSingleReauth(t *testing.T) {
	var logins, uploads atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		json.NewEncoder(w).Encode(loginResponse{Token: "fresh", ExpiresIn: 3600})
	})
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" || uploads.Load() == 1 {
			http.Error(w, "denied", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(uploadResponse{FileID: "f-3"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, config.Host{
		Name: "h", BaseURL: server.URL, Auth: config.AuthToken, Username: "u", Password: "p",
	})
	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if !outcome.OK {
		t.Fatalf("expected success after re-auth, got %+v", outcome)
	}
	if uploads.Load() != 2 {
		t.Fatalf("expected 2 upload attempts, got %d", uploads.Load())
	}
}

func TestRepeatedAuthFailureSurfacesAuthError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loginResponse{Token: "t", ExpiresIn: 3600})
	})
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, config.Host{
		Name: "h", BaseURL: server.URL, Auth: config.AuthToken, Username: "u", Password: "p",
	})
	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if outcome.OK || outcome.Kind != FailureAuth {
		t.Fatalf("expected auth failure, got %+v", outcome)
	}
}

func TestShouldStopCancelsTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(uploadResponse{FileID: "never"})
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k"})
	req := uploadRequest(t, "some gallery image data")
	req.ShouldStop = func() bool { return true }

	outcome := client.Upload(context.Background(), req)
	if outcome.OK || outcome.Kind != FailureCancelled {
		t.Fatalf("expected cancellation, got %+v", outcome)
	}
}

func TestMultiStepUploadFlow(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload/init", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(initResponse{UploadID: "u-9"})
	})
	mux.HandleFunc("/api/upload/data", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "u-9" {
			http.Error(w, "wrong id", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/upload/poll", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			json.NewEncoder(w).Encode(pollResponse{Status: "pending"})
			return
		}
		json.NewEncoder(w).Encode(pollResponse{Status: "complete", FileID: "f-9", URL: "https://host/f-9"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, config.Host{
		Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k", MultiStep: true,
	})
	outcome := client.Upload(context.Background(), uploadRequest(t, "big archive bytes"))
	if !outcome.OK {
		t.Fatalf("multi-step upload failed: %+v", outcome)
	}
	if outcome.FileID != "f-9" {
		t.Fatalf("unexpected file id %q", outcome.FileID)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
}

func TestProactiveRefreshBeforeTransfer(t *testing.T) {
	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		json.NewEncoder(w).Encode(loginResponse{Token: "renewed", ExpiresIn: 3600})
	})
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(uploadResponse{FileID: "f-4"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, config.Host{
		Name: "h", BaseURL: server.URL, Auth: config.AuthToken, Username: "u", Password: "p",
	})
	// Token expires within the refresh slack: must be renewed before upload.
	if err := client.tokens.Put("h", "stale", 10*time.Second); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	outcome := client.Upload(context.Background(), uploadRequest(t, "abc"))
	if !outcome.OK {
		t.Fatalf("upload failed: %+v", outcome)
	}
	if logins.Load() != 1 {
		t.Fatalf("expected proactive login, got %d logins", logins.Load())
	}
}

func TestQuotaLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/quota" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(quotaResponse{UsedBytes: 25, TotalBytes: 100})
	}))
	defer server.Close()

	client := newTestClient(t, config.Host{Name: "h", BaseURL: server.URL, Auth: config.AuthAPIKey, APIKey: "k"})
	used, total, err := client.Quota(context.Background())
	if err != nil {
		t.Fatalf("Quota failed: %v", err)
	}
	if used != 25 || total != 100 {
		t.Fatalf("unexpected quota %d/%d", used, total)
	}
}
