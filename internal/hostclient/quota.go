package hostclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"imxup/internal/services"
)

type quotaResponse struct {
	UsedBytes  int64 `json:"used_bytes"`
	TotalBytes int64 `json:"total_bytes"`
}

// Quota fetches the host's storage quota. Workers cache the result in the
// status table; this call is not retried since a stale snapshot is an
// acceptable fallback.
func (c *Client) Quota(ctx context.Context) (used, total int64, err error) {
	credential, err := c.credential(ctx)
	if err != nil {
		return 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host.BaseURL+"/api/quota", nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build quota request: %w", err)
	}
	c.authorize(req, credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, 0, services.Wrap(services.ErrNetwork, "hostclient", "quota", c.host.Name, err)
	}
	defer resp.Body.Close()

	if kind := classifyStatus(resp.StatusCode); kind != FailureNone {
		return 0, 0, statusError("quota", c.host.Name, resp.StatusCode)
	}

	var parsed quotaResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return 0, 0, services.Wrap(services.ErrRejected, "hostclient", "quota", "malformed response", err)
	}
	return parsed.UsedBytes, parsed.TotalBytes, nil
}
