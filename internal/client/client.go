// Package client talks to a running daemon's admin API. The CLI and the
// MCP server use it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/flemzord/daybook/internal/backup"
	"github.com/flemzord/daybook/internal/config"
	"github.com/flemzord/daybook/internal/cron"
	"github.com/flemzord/daybook/internal/gateway"
	"github.com/flemzord/daybook/internal/records"
)

const defaultTimeout = 30 * time.Second

// ErrNoAuth is returned by FromConfig when the admin API is not enabled.
var ErrNoAuth = errors.New("client: gateway.auth is not configured, the admin API is disabled")

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Config configures a Client.
type Config struct {
	// BaseURL is the gateway root, e.g. "http://127.0.0.1:8080".
	BaseURL    string
	Auth       config.AuthConfig
	HTTPClient *http.Client
}

// Client is an admin API client.
type Client struct {
	base *url.URL
	auth config.AuthConfig
	http *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{base: base, auth: cfg.Auth, http: cfg.HTTPClient}, nil
}

// FromConfig builds a Client for the daemon described by cfg. A wildcard
// bind address is dialed on loopback.
func FromConfig(cfg *config.Config) (*Client, error) {
	if !cfg.Gateway.Auth.IsConfigured() {
		return nil, ErrNoAuth
	}
	host, port, err := net.SplitHostPort(cfg.Gateway.Bind)
	if err != nil {
		return nil, fmt.Errorf("client: gateway.bind: %w", err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return New(Config{
		BaseURL: "http://" + net.JoinHostPort(host, port),
		Auth:    cfg.Gateway.Auth,
	})
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (gateway.StatusResponse, error) {
	var out gateway.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// Jobs lists every job record.
func (c *Client) Jobs(ctx context.Context) ([]cron.Record, error) {
	var out []cron.Record
	err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &out)
	return out, err
}

// Job returns one job record.
func (c *Client) Job(ctx context.Context, key string) (cron.Record, error) {
	var out cron.Record
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(key), nil, &out)
	return out, err
}

// CancelJob cancels a live job and returns its record.
func (c *Client) CancelJob(ctx context.Context, key string) (cron.Record, error) {
	var out cron.Record
	err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(key), nil, &out)
	return out, err
}

// RefreshWidgets queues an immediate widget refresh.
func (c *Client) RefreshWidgets(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/widgets/refresh", nil, nil)
}

// SetWidgetMode changes the widget refresh mode and returns the mode in
// effect.
func (c *Client) SetWidgetMode(ctx context.Context, mode string) (string, error) {
	var out gateway.ModeRequest
	err := c.do(ctx, http.MethodPut, "/api/widgets/mode", gateway.ModeRequest{Mode: mode}, &out)
	return out.Mode, err
}

// ExternalEvent reports an external trigger such as a device unlock.
func (c *Client) ExternalEvent(ctx context.Context, source string) error {
	return c.do(ctx, http.MethodPost, "/api/events/external", gateway.ExternalEventRequest{Source: source}, nil)
}

// Backup takes a backup now and returns the artifact.
func (c *Client) Backup(ctx context.Context) (backup.Artifact, error) {
	var out backup.Artifact
	err := c.do(ctx, http.MethodPost, "/api/backups", nil, &out)
	return out, err
}

// Backups lists the retained backup artifacts, oldest first.
func (c *Client) Backups(ctx context.Context) ([]backup.Artifact, error) {
	var out []backup.Artifact
	err := c.do(ctx, http.MethodGet, "/api/backups", nil, &out)
	return out, err
}

// PutTask creates or replaces a task.
func (c *Client) PutTask(ctx context.Context, t records.Task) (records.Task, error) {
	var out records.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(t.ID), t, &out)
	return out, err
}

// SetTaskCompletion marks a task done or not done.
func (c *Client) SetTaskCompletion(ctx context.Context, id string, done bool) (records.Task, error) {
	var out records.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id)+"/completion", gateway.CompletionRequest{Completed: done}, &out)
	return out, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr gateway.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := string(bytes.TrimSpace(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.auth.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.auth.BearerToken)
	case c.auth.BasicUser != "":
		req.SetBasicAuth(c.auth.BasicUser, c.auth.BasicPass)
	}
}
