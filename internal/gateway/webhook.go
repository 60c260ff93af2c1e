package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// SignatureHeader carries the HMAC-SHA256 of the request body, formatted
// "sha256=<hex>".
const SignatureHeader = "X-Signature-256"

// WebhookHandler is called for a request whose signature checked out.
type WebhookHandler func(source string) error

type webhookEntry struct {
	handler WebhookHandler
	secret  string
}

// WebhookDispatcher routes signed webhooks, such as a phone automation
// reporting a device unlock, to the handler registered for their source.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]webhookEntry
	logger   *slog.Logger
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]webhookEntry),
		logger:   logger,
	}
}

// Register adds a handler for source. Requests must be signed with secret.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = webhookEntry{handler: h, secret: secret}
}

// ServeHTTP reads the source from the chi URL param, validates the
// signature and dispatches.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	d.mu.RLock()
	entry, ok := d.handlers[source]
	d.mu.RUnlock()
	if !ok {
		d.logger.Warn("webhook received for unknown source", "source", source)
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !validateHMAC(body, r.Header.Get(SignatureHeader), entry.secret) {
		d.logger.Warn("webhook signature mismatch", "source", source)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := entry.handler(source); err != nil {
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		writeError(w, http.StatusServiceUnavailable, "event not accepted")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// Sign returns the SignatureHeader value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// validateHMAC checks the signature in constant time. An empty secret
// never validates.
func validateHMAC(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Sign(body, secret)), []byte(signature)) == 1
}
