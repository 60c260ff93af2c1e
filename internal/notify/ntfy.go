package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const userAgent = "daybook/1"

// NtfyConfig configures an ntfy publisher.
type NtfyConfig struct {
	URL     string
	Topic   string
	Token   string
	Timeout time.Duration
}

// Ntfy publishes notifications to an ntfy topic over HTTP.
type Ntfy struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewNtfy returns an ntfy publisher for cfg.
func NewNtfy(cfg NtfyConfig) *Ntfy {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/" + strings.TrimLeft(cfg.Topic, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
	}
}

var _ Sink = (*Ntfy)(nil)

// Notify implements Sink.
func (n *Ntfy) Notify(ctx context.Context, msg Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("notify: build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Tags", "daybook")
	req.Header.Set("X-Daybook-Id", strconv.Itoa(msg.ID))
	if msg.Title != "" {
		req.Header.Set("Title", msg.Title)
	}
	if msg.Action != "" {
		req.Header.Set("X-Daybook-Action", msg.Action)
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send ntfy notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("notify: ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
