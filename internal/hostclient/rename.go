package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"imxup/internal/services"
)

// challengeMarkers are substrings of an anti-bot interstitial page. A
// response carrying one is a challenge, not a credential problem.
var challengeMarkers = []string{"captcha", "challenge", "are you human"}

// Rename asks the host to change a gallery's display name. Auth failures
// surface as services.ErrAuth so the caller can re-authenticate on its own
// schedule; a detected anti-bot challenge surfaces as services.ErrChallenge.
func (c *Client) Rename(ctx context.Context, hostGalleryID, name string) error {
	credential, err := c.credential(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"id": hostGalleryID, "name": name})
	if err != nil {
		return fmt.Errorf("encode rename payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host.BaseURL+"/api/gallery/rename", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rename request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNetwork, "hostclient", "rename", c.host.Name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if isChallenge(resp, body) {
		return services.Wrap(services.ErrChallenge, "hostclient", "rename", c.host.Name, nil)
	}
	if kind := classifyStatus(resp.StatusCode); kind != FailureNone {
		return statusError("rename", c.host.Name, resp.StatusCode)
	}
	return nil
}

// InvalidateCredential drops the cached token so the next call logs in
// again. Used by the rename worker after a permission-denied response.
func (c *Client) InvalidateCredential() {
	c.invalidate()
}

func isChallenge(resp *http.Response, body []byte) bool {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	lowered := strings.ToLower(string(body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
