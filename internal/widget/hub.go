package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/daybook/internal/notify"
)

const (
	defaultSendBuffer   = 16
	defaultWriteTimeout = 10 * time.Second
)

// Frame types sent to subscribers.
const (
	FrameWidget       = "widget"
	FrameNotification = "notification"
)

// WidgetFrame carries the content of one widget. Content is null for the
// empty state.
type WidgetFrame struct {
	Type     string    `json:"type"`
	WidgetID string    `json:"widget_id"`
	Content  *Content  `json:"content"`
	Empty    bool      `json:"empty"`
	At       time.Time `json:"at"`
}

// NotificationFrame relays a notification to subscribers.
type NotificationFrame struct {
	Type         string              `json:"type"`
	Notification notify.Notification `json:"notification"`
	At           time.Time           `json:"at"`
}

// HubConfig configures a Hub.
type HubConfig struct {
	Logger *slog.Logger
	// OriginPatterns lists extra origins allowed to connect.
	OriginPatterns []string
	SendBuffer     int
	WriteTimeout   time.Duration
}

// Hub pushes widget content and notifications to websocket subscribers.
// The last frame of every widget is replayed to new subscribers. A
// subscriber whose buffer fills up is disconnected.
type Hub struct {
	logger       *slog.Logger
	accept       *websocket.AcceptOptions
	buffer       int
	writeTimeout time.Duration

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	last   map[string][]byte
	closed bool
}

type subscriber struct {
	send        chan []byte
	closeCode   websocket.StatusCode
	closeReason string
}

var (
	_ RenderTarget = (*Hub)(nil)
	_ notify.Sink  = (*Hub)(nil)
)

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Hub{
		logger:       cfg.Logger.With("component", "widget.hub"),
		accept:       &websocket.AcceptOptions{OriginPatterns: cfg.OriginPatterns},
		buffer:       cfg.SendBuffer,
		writeTimeout: cfg.WriteTimeout,
		subs:         make(map[*subscriber]struct{}),
		last:         make(map[string][]byte),
	}
}

// ServeHTTP upgrades the request and streams frames until the client
// disconnects or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Warn("widget: websocket accept failed", "error", err)
		return
	}

	sub := &subscriber{send: make(chan []byte, h.buffer)}
	if !h.add(sub) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.remove(sub)
	h.logger.Debug("widget: subscriber connected", "remote", r.RemoteAddr)

	// Subscribers never send; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg, ok := <-sub.send:
			if !ok {
				_ = conn.Close(sub.closeCode, sub.closeReason)
				return
			}
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug("widget: write to subscriber failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (h *Hub) add(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.subs[sub] = struct{}{}

	ids := make([]string, 0, len(h.last))
	for id := range h.last {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		select {
		case sub.send <- h.last[id]:
		default:
		}
	}
	return true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub, websocket.StatusNormalClosure, "")
}

func (h *Hub) dropLocked(sub *subscriber, code websocket.StatusCode, reason string) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.closeCode = code
	sub.closeReason = reason
	close(sub.send)
}

func (h *Hub) broadcastLocked(msg []byte) {
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			h.logger.Warn("widget: subscriber too slow, disconnecting")
			h.dropLocked(sub, websocket.StatusPolicyViolation, "too slow")
		}
	}
}

// PushWidgetContent implements RenderTarget.
func (h *Hub) PushWidgetContent(_ context.Context, widgetID string, c Content) error {
	frame := WidgetFrame{Type: FrameWidget, WidgetID: widgetID, Empty: c.Empty(), At: time.Now().UTC()}
	if !frame.Empty {
		frame.Content = &c
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("widget: encoding frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[widgetID] = msg
	h.broadcastLocked(msg)
	return nil
}

// Notify implements notify.Sink. Notifications are not replayed.
func (h *Hub) Notify(_ context.Context, n notify.Notification) error {
	msg, err := json.Marshal(NotificationFrame{Type: FrameNotification, Notification: n, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("widget: encoding notification: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(msg)
	return nil
}

// Last returns the last frame pushed for widgetID.
func (h *Hub) Last(widgetID string) (WidgetFrame, bool) {
	h.mu.Lock()
	msg, ok := h.last[widgetID]
	h.mu.Unlock()
	if !ok {
		return WidgetFrame{}, false
	}
	var f WidgetFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		return WidgetFrame{}, false
	}
	return f, true
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stop disconnects every subscriber and refuses new ones.
func (h *Hub) Stop(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for sub := range h.subs {
		h.dropLocked(sub, websocket.StatusGoingAway, "server shutting down")
	}
	h.logger.Info("widget: hub stopped")
	return nil
}
