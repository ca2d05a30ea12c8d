package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ProgressUpdate is one pipeline progress event fanned out to
// subscribed clients.
type ProgressUpdate struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Phase     string    `json:"phase"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client is one websocket subscriber, optionally filtered to a task.
type Client struct {
	conn   *websocket.Conn
	send   chan ProgressUpdate
	taskID string
}

// Hub fans pipeline progress out to websocket subscribers. The
// polling endpoint stays authoritative; the hub is advisory.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.WithField("component", "ws_hub"),
	}
}

// Serve upgrades the connection and streams updates for taskID (or
// all tasks when empty) until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, taskID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	client := &Client{conn: conn, send: make(chan ProgressUpdate, 64), taskID: taskID}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

// Broadcast delivers an update to every matching subscriber, dropping
// slow clients rather than blocking the pipeline.
func (h *Hub) Broadcast(update ProgressUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.taskID != "" && client.taskID != update.TaskID {
			continue
		}
		select {
		case client.send <- update:
		default:
		}
	}
}

func (h *Hub) writePump(client *Client) {
	defer client.conn.Close()
	for update := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteJSON(update); err != nil {
			return
		}
	}
}

func (h *Hub) readPump(client *Client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		close(client.send)
		client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
