package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"uptimeboard/internal/models"
)

// TokenSource supplies the current bearer credential
type TokenSource interface {
	AccessToken() string
}

// APIClient talks to the monitoring backend's REST API
type APIClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewAPIClient creates a REST client. tokens may be nil for
// unauthenticated use.
func NewAPIClient(baseURL string, tokens TokenSource, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// request performs one call and decodes the envelope's data into result
func (c *APIClient) request(ctx context.Context, method, path string, body any, result any, bearer bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer && c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var env models.Envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if decodeErr != nil {
		if decodeErr == io.EOF && result == nil {
			return nil
		}
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// Login exchanges credentials for tokens
func (c *APIClient) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	var res models.AuthResult
	if err := c.request(ctx, http.MethodPost, "/api/auth/login", models.LoginRequest{Email: email, Password: password}, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

// Signup registers a new account
func (c *APIClient) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResult, error) {
	var res models.AuthResult
	if err := c.request(ctx, http.MethodPost, "/api/auth/signup", req, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout invalidates the session on the backend
func (c *APIClient) Logout(ctx context.Context) error {
	return c.request(ctx, http.MethodPost, "/api/auth/logout", struct{}{}, nil, true)
}

// ChangePassword updates the account password
func (c *APIClient) ChangePassword(ctx context.Context, current, next string) error {
	return c.request(ctx, http.MethodPost, "/api/auth/change-password", models.ChangePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	}, nil, true)
}

// RefreshToken trades a refresh token for a new access token. It is sent
// without the bearer header since the access token is usually expired.
func (c *APIClient) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthResult, error) {
	var res models.AuthResult
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.request(ctx, http.MethodPost, "/api/auth/refresh-token", body, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

// AddWebsiteMonitor registers a website monitor
func (c *APIClient) AddWebsiteMonitor(ctx context.Context, req models.MonitorRequest) (*models.Monitor, error) {
	var m models.Monitor
	if err := c.request(ctx, http.MethodPost, "/api/monitor/add/website", req, &m, true); err != nil {
		return nil, err
	}
	return &m, nil
}

// AddAPIMonitor registers an API endpoint monitor
func (c *APIClient) AddAPIMonitor(ctx context.Context, req models.MonitorRequest) (*models.Monitor, error) {
	var m models.Monitor
	if err := c.request(ctx, http.MethodPost, "/api/monitor/add/api", req, &m, true); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMonitor removes a monitor on the backend
func (c *APIClient) DeleteMonitor(ctx context.Context, id string) error {
	return c.request(ctx, http.MethodDelete, "/api/monitor/delete/"+url.PathEscape(id), nil, nil, true)
}

// UpdateMonitor edits a monitor
func (c *APIClient) UpdateMonitor(ctx context.Context, id string, req models.MonitorRequest) error {
	return c.request(ctx, http.MethodPut, "/api/monitor/update/"+url.PathEscape(id), req, nil, true)
}

// UpdateMonitorStatus pauses or resumes a monitor
func (c *APIClient) UpdateMonitorStatus(ctx context.Context, id string, status models.MonitorStatus) error {
	body := map[string]models.MonitorStatus{"status": status}
	return c.request(ctx, http.MethodPatch, "/api/monitor/status/"+url.PathEscape(id), body, nil, true)
}

// GetMonitorStats fetches the response log of one monitor
func (c *APIClient) GetMonitorStats(ctx context.Context, id string) (*models.MonitorStats, error) {
	var stats models.MonitorStats
	if err := c.request(ctx, http.MethodGet, "/api/monitor/stats/"+url.PathEscape(id), nil, &stats, true); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetAllAnalytics fetches the aggregate snapshot
func (c *APIClient) GetAllAnalytics(ctx context.Context) (*models.AggregateSnapshot, error) {
	var snap models.AggregateSnapshot
	if err := c.request(ctx, http.MethodGet, "/api/monitor/analytics/all", nil, &snap, true); err != nil {
		return nil, err
	}
	return &snap, nil
}
