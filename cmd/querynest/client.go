package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/config"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/identity"
)

var serverURL string

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// newAPIClient builds a client for a running server. When email is set the
// client carries a credential for it, signed with the configured secret.
var newAPIClient = func(email string) (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	c := &apiClient{
		baseURL:    serverURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if c.baseURL == "" {
		c.baseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if email != "" {
		if err := cfg.RequireSecret(); err != nil {
			return nil, err
		}
		v, err := identity.NewVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return nil, err
		}
		if c.token, _, err = v.Issue(map[string]any{"email": email}); err != nil {
			return nil, fmt.Errorf("issuing credential: %w", err)
		}
	}
	return c, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is querynest running? (%w)", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &msg) == nil && msg.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
