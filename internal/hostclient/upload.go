package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"imxup/internal/logging"
	"imxup/internal/services"
)

type uploadResponse struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

// Upload pushes one file to the host and returns a structured outcome.
// Transient failures are retried with bounded exponential backoff up to the
// configured attempt ceiling; an authentication failure triggers exactly one
// re-authentication before the call fails; all other 4xx responses are
// permanent. The call honors req.ShouldStop at the progress cadence.
func (c *Client) Upload(ctx context.Context, req UploadRequest) Outcome {
	var reauthed bool
	delay := c.retryBaseDelay

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		outcome := c.attempt(ctx, req)
		if outcome.OK {
			return outcome
		}

		switch outcome.Kind {
		case FailureAuth:
			if reauthed {
				return outcome
			}
			reauthed = true
			c.invalidate()
			c.logger.Warn("credential rejected, re-authenticating",
				logging.String(logging.FieldHost, c.host.Name))
			// The single re-auth retry does not consume a transient attempt.
			attempt--
			continue
		default:
			if !services.IsRetryable(outcome.Err) || attempt == c.retryAttempts-1 {
				return outcome
			}
			c.logger.Warn("transient upload failure, backing off",
				logging.String(logging.FieldHost, c.host.Name),
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
				logging.Error(outcome.Err))
			select {
			case <-c.sleep(delay):
			case <-ctx.Done():
				return failure(FailureCancelled, services.ErrCancelled)
			}
			delay *= 2
		}
	}
	return failure(FailureNetwork, services.Wrap(services.ErrNetwork, "hostclient", "upload", "attempts exhausted", nil))
}

func (c *Client) attempt(ctx context.Context, req UploadRequest) Outcome {
	credential, err := c.credential(ctx)
	if err != nil {
		return classifyError(err)
	}
	if c.host.MultiStep {
		return c.multiStepUpload(ctx, credential, req)
	}
	return c.standardUpload(ctx, credential, req)
}

// standardUpload completes the transfer with a single multipart request.
func (c *Client) standardUpload(ctx context.Context, credential string, req UploadRequest) Outcome {
	file, err := os.Open(req.Path)
	if err != nil {
		return failure(FailureRejected, services.Wrap(services.ErrValidation, "hostclient", "upload", req.Path, err))
	}
	defer file.Close()

	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("file", req.Name)
		if err != nil {
			writer.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, c.newProgressReader(file, req)); err != nil {
			writer.CloseWithError(err)
			return
		}
		writer.CloseWithError(form.Close())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host.BaseURL+"/api/upload", reader)
	if err != nil {
		return failure(FailureRejected, fmt.Errorf("build upload request: %w", err))
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(httpReq, credential)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, services.ErrCancelled) {
			return failure(FailureCancelled, services.ErrCancelled)
		}
		return failure(FailureNetwork, services.Wrap(services.ErrNetwork, "hostclient", "upload", c.host.Name, err))
	}
	defer resp.Body.Close()

	return c.parseUploadResponse(resp)
}

type initResponse struct {
	UploadID string `json:"upload_id"`
	Error    string `json:"error"`
}

type pollResponse struct {
	Status string `json:"status"`
	FileID string `json:"file_id"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

// multiStepUpload drives the init/data/poll wire shape: the init call
// returns an upload handle, the data call streams the bytes, and poll calls
// repeat until the host reports completion, bounded by a max-attempts and
// per-request timeout pair.
func (c *Client) multiStepUpload(ctx context.Context, credential string, req UploadRequest) Outcome {
	uploadID, outcome := c.initUpload(ctx, credential, req)
	if !outcome.OK {
		return outcome
	}
	if outcome = c.uploadData(ctx, credential, uploadID, req); !outcome.OK {
		return outcome
	}
	return c.pollUpload(ctx, credential, uploadID, req.ShouldStop)
}

func (c *Client) initUpload(ctx context.Context, credential string, req UploadRequest) (string, Outcome) {
	payload, err := json.Marshal(map[string]any{"name": req.Name, "size": req.Size})
	if err != nil {
		return "", failure(FailureRejected, fmt.Errorf("encode init payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host.BaseURL+"/api/upload/init", bytes.NewReader(payload))
	if err != nil {
		return "", failure(FailureRejected, fmt.Errorf("build init request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq, credential)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", failure(FailureNetwork, services.Wrap(services.ErrNetwork, "hostclient", "upload init", c.host.Name, err))
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != FailureNone {
		return "", failure(kind, statusError("upload init", c.host.Name, resp.StatusCode))
	}

	var parsed initResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", failure(FailureRejected, services.Wrap(services.ErrRejected, "hostclient", "upload init", "malformed response", err))
	}
	if parsed.UploadID == "" {
		return "", failure(FailureRejected, services.Wrap(services.ErrRejected, "hostclient", "upload init", "missing upload id", nil))
	}
	return parsed.UploadID, success(parsed.UploadID, "")
}

func (c *Client) uploadData(ctx context.Context, credential, uploadID string, req UploadRequest) Outcome {
	file, err := os.Open(req.Path)
	if err != nil {
		return failure(FailureRejected, services.Wrap(services.ErrValidation, "hostclient", "upload", req.Path, err))
	}
	defer file.Close()

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.host.BaseURL+"/api/upload/data?id="+uploadID,
		c.newProgressReader(file, req),
	)
	if err != nil {
		return failure(FailureRejected, fmt.Errorf("build data request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	httpReq.ContentLength = req.Size
	c.authorize(httpReq, credential)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, services.ErrCancelled) {
			return failure(FailureCancelled, services.ErrCancelled)
		}
		return failure(FailureNetwork, services.Wrap(services.ErrNetwork, "hostclient", "upload data", c.host.Name, err))
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != FailureNone {
		return failure(kind, statusError("upload data", c.host.Name, resp.StatusCode))
	}
	return success(uploadID, "")
}

func (c *Client) pollUpload(ctx context.Context, credential, uploadID string, shouldStop ShouldStop) Outcome {
	for attempt := 0; attempt < c.pollMaxAttempts; attempt++ {
		if shouldStop != nil && shouldStop() {
			return failure(FailureCancelled, services.ErrCancelled)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host.BaseURL+"/api/upload/poll?id="+uploadID, nil)
		if err != nil {
			return failure(FailureRejected, fmt.Errorf("build poll request: %w", err))
		}
		c.authorize(httpReq, credential)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return failure(FailureNetwork, services.Wrap(services.ErrNetwork, "hostclient", "upload poll", c.host.Name, err))
		}
		kind := classifyStatus(resp.StatusCode)
		if kind != FailureNone {
			resp.Body.Close()
			return failure(kind, statusError("upload poll", c.host.Name, resp.StatusCode))
		}

		var parsed pollResponse
		err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return failure(FailureRejected, services.Wrap(services.ErrRejected, "hostclient", "upload poll", "malformed response", err))
		}

		switch parsed.Status {
		case "complete":
			return success(parsed.FileID, parsed.URL)
		case "error":
			return failure(FailureRejected, services.Wrap(services.ErrRejected, "hostclient", "upload poll", parsed.Error, nil))
		}

		select {
		case <-c.sleep(c.pollInterval):
		case <-ctx.Done():
			return failure(FailureCancelled, services.ErrCancelled)
		}
	}
	return failure(FailureNetwork, services.Wrap(services.ErrNetwork, "hostclient", "upload poll",
		fmt.Sprintf("host did not finish after %d polls", c.pollMaxAttempts), nil))
}

func (c *Client) parseUploadResponse(resp *http.Response) Outcome {
	if kind := classifyStatus(resp.StatusCode); kind != FailureNone {
		return failure(kind, statusError("upload", c.host.Name, resp.StatusCode))
	}

	var parsed uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return failure(FailureRejected, services.Wrap(services.ErrRejected, "hostclient", "upload", "malformed response", err))
	}
	if parsed.Error != "" {
		return failure(FailureRejected, services.Wrap(services.ErrRejected, "hostclient", "upload", parsed.Error, nil))
	}
	return success(parsed.FileID, parsed.URL)
}

// classifyStatus maps an HTTP status to a failure kind. FailureNone means
// the response is a success and should be parsed.
func classifyStatus(code int) FailureKind {
	switch {
	case code >= 200 && code < 300:
		return FailureNone
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return FailureAuth
	case code == http.StatusRequestEntityTooLarge || code == http.StatusInsufficientStorage:
		return FailureQuota
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return FailureNetwork
	default:
		return FailureRejected
	}
}

func classifyError(err error) Outcome {
	switch {
	case errors.Is(err, services.ErrCancelled):
		return failure(FailureCancelled, err)
	case errors.Is(err, services.ErrAuth):
		return failure(FailureAuth, err)
	case errors.Is(err, services.ErrQuota):
		return failure(FailureQuota, err)
	case errors.Is(err, services.ErrRejected), errors.Is(err, services.ErrValidation):
		return failure(FailureRejected, err)
	default:
		return failure(FailureNetwork, err)
	}
}

func statusError(operation, host string, code int) error {
	marker := services.ErrNetwork
	switch classifyStatus(code) {
	case FailureAuth:
		marker = services.ErrAuth
	case FailureQuota:
		marker = services.ErrQuota
	case FailureRejected:
		marker = services.ErrRejected
	}
	return services.Wrap(marker, "hostclient", operation, fmt.Sprintf("%s returned %d", host, code), nil)
}
