package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"imxup/internal/config"
	"imxup/internal/services"
)

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// credential resolves the value to authenticate the next request with,
// logging in when the cached token is absent, expired, or inside the
// proactive refresh slack.
func (c *Client) credential(ctx context.Context) (string, error) {
	switch c.host.Auth {
	case config.AuthAPIKey:
		return c.host.APIKey, nil
	case config.AuthToken, config.AuthSession:
		if !c.tokens.NeedsRefresh(c.host.Name, c.refreshSlack) {
			if token, ok := c.tokens.Get(c.host.Name); ok {
				return token.Value, nil
			}
		}
		return c.login(ctx)
	default:
		return "", services.Wrap(services.ErrAuth, "hostclient", "credential",
			fmt.Sprintf("unknown auth kind %q", c.host.Auth), nil)
	}
}

// login authenticates against the host and stores the resulting token.
func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": c.host.Username,
		"password": c.host.Password,
	})
	if err != nil {
		return "", fmt.Errorf("encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host.BaseURL+"/api/login", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "hostclient", "login", c.host.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", services.Wrap(services.ErrNetwork, "hostclient", "login", "read response", err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", services.Wrap(services.ErrAuth, "hostclient", "login",
			fmt.Sprintf("%s rejected credentials (%d)", c.host.Name, resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return "", services.Wrap(services.ErrNetwork, "hostclient", "login",
			fmt.Sprintf("%s returned %d", c.host.Name, resp.StatusCode), nil)
	default:
		return "", services.Wrap(services.ErrRejected, "hostclient", "login",
			fmt.Sprintf("%s returned %d", c.host.Name, resp.StatusCode), nil)
	}

	var parsed loginResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", services.Wrap(services.ErrRejected, "hostclient", "login", "malformed response", err)
	}
	if parsed.Token == "" {
		return "", services.Wrap(services.ErrAuth, "hostclient", "login", "empty token in response", nil)
	}

	ttl := time.Duration(parsed.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := c.tokens.Put(c.host.Name, parsed.Token, ttl); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return parsed.Token, nil
}

// invalidate drops the cached credential after the host rejected it.
func (c *Client) invalidate() {
	switch c.host.Auth {
	case config.AuthToken, config.AuthSession:
		_ = c.tokens.Invalidate(c.host.Name)
	}
}

// authorize attaches the credential to a request per the host's scheme.
func (c *Client) authorize(req *http.Request, credential string) {
	switch c.host.Auth {
	case config.AuthAPIKey:
		req.Header.Set("X-API-Key", credential)
	case config.AuthToken:
		req.Header.Set("Authorization", "Bearer "+credential)
	case config.AuthSession:
		req.AddCookie(&http.Cookie{Name: "session", Value: credential})
	}
}
