package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowentxo/agentinbox/pkg/models"
)

const (
	hubWriteWait      = 10 * time.Second
	hubPongWait       = 45 * time.Second
	hubPingInterval   = 15 * time.Second
	hubSendBuffer     = 64
	hubMaxPayloadSize = 1 << 20
)

// hubFrame is the wire format for pushed events.
type hubFrame struct {
	Event    string `json:"event"`
	ThreadID string `json:"thread_id,omitempty"`
	Payload  any    `json:"payload,omitempty"`
}

// Hub is a websocket Notifier: it upgrades client connections and pushes
// every event to all of them. Slow clients are disconnected rather than
// allowed to block the hub.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*hubConn]struct{}
}

type hubConn struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		conns: map[*hubConn]struct{}{},
	}
}

// ServeHTTP upgrades the request to a websocket and keeps the connection
// registered until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubConn{conn: ws, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *hubConn) {
	defer h.drop(c)

	c.conn.SetReadLimit(hubMaxPayloadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	// Clients only listen; discard anything they send.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubConn) {
	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()
	defer h.drop(c)

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(c *hubConn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// broadcast pushes a frame to every connection, dropping clients whose
// send buffer is full. Sends happen under the read lock while drop
// closes the channel under the write lock, so a send can never race a
// close from a disconnecting client.
func (h *Hub) broadcast(frame hubFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to encode event frame", "event", frame.Event, "error", err)
		return
	}

	var slow []*hubConn
	h.mu.RLock()
	for c := range h.conns {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client")
		h.drop(c)
	}
}

func (h *Hub) Typing(threadID, agentID string) {
	h.broadcast(hubFrame{Event: "typing", ThreadID: threadID, Payload: map[string]string{"agent_id": agentID}})
}

func (h *Hub) TextDelta(threadID, messageID, delta string) {
	h.broadcast(hubFrame{Event: "text_delta", ThreadID: threadID, Payload: map[string]string{
		"message_id": messageID,
		"delta":      delta,
	}})
}

func (h *Hub) MessageComplete(threadID string, msg *models.Message) {
	h.broadcast(hubFrame{Event: "message_complete", ThreadID: threadID, Payload: msg})
}

func (h *Hub) ToolCall(threadID string, event *models.ToolCallEvent) {
	h.broadcast(hubFrame{Event: "tool_call", ThreadID: threadID, Payload: event})
}

func (h *Hub) ThreadUpdated(thread *models.Thread) {
	h.broadcast(hubFrame{Event: "thread_updated", ThreadID: thread.ID, Payload: thread})
}

func (h *Hub) RoutingChanged(threadID string, decision *models.RoutingDecision) {
	h.broadcast(hubFrame{Event: "routing_changed", ThreadID: threadID, Payload: decision})
}

func (h *Hub) ApprovalRequested(approval *models.Approval) {
	h.broadcast(hubFrame{Event: "approval_requested", ThreadID: approval.ThreadID, Payload: approval})
}

func (h *Hub) ApprovalResolved(approval *models.Approval) {
	h.broadcast(hubFrame{Event: "approval_resolved", ThreadID: approval.ThreadID, Payload: approval})
}
