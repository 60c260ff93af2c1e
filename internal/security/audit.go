package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// EventType categorizes audit events.
type EventType string

// Audit event types for admin operations.
const (
	EventAuthSuccess  EventType = "auth_success"
	EventAuthFailure  EventType = "auth_failure"
	EventRateLimited  EventType = "rate_limited"
	EventJobCancel    EventType = "job_cancel"
	EventModeChange   EventType = "widget_mode_change"
	EventManualBackup EventType = "manual_backup"
	EventTaskWrite    EventType = "task_write"
	EventConfigReload EventType = "config_reload"
)

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Actor     string            `json:"actor,omitempty"`
	Target    string            `json:"target,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures an AuditLogger.
type AuditLoggerConfig struct {
	// Writer receives one JSON object per line. Nil discards output.
	Writer io.Writer
	// Redactor, if set, is applied to Detail and Metadata values.
	Redactor *Redactor
	// OnEvent, if set, sees every event after redaction.
	OnEvent func(AuditEvent)
	Now     func() time.Time
}

// AuditLogger writes audit events as JSON lines. A nil *AuditLogger
// discards events.
type AuditLogger struct {
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	now      func() time.Time
	mu       sync.Mutex
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuditLogger{writer: cfg.Writer, redactor: cfg.Redactor, onEvent: cfg.OnEvent, now: cfg.Now}
}

// Log stamps and writes event. The caller's Metadata map is not modified.
func (l *AuditLogger) Log(event AuditEvent) {
	if l == nil {
		return
	}
	event.Timestamp = l.now().UTC()
	event.Metadata = maps.Clone(event.Metadata)

	if l.redactor != nil {
		event.Detail = l.redactor.Redact(event.Detail)
		for k, v := range event.Metadata {
			event.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.onEvent != nil {
		l.onEvent(event)
	}
	if l.writer != nil {
		_ = json.NewEncoder(l.writer).Encode(event)
	}
}
