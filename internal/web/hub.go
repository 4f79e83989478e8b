package web

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"camstation/internal/debug"
	"camstation/internal/hw/camera"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// The control UI is served from the same origin; no cross-site use.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PreviewHub fans live preview frames out to websocket clients.
type PreviewHub struct {
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
}

// NewPreviewHub creates an empty hub.
func NewPreviewHub() *PreviewHub {
	return &PreviewHub{clients: make(map[string]*websocket.Conn)}
}

// Pump forwards frames from the session stream to all clients until
// the source channel is drained. Run it on its own goroutine.
func (h *PreviewHub) Pump(frames <-chan camera.Frame) {
	for f := range frames {
		h.broadcast(f.Data)
	}
}

func (h *PreviewHub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			debug.Verbose("Preview client %s dropped: %v", id, err)
			conn.Close()
			delete(h.clients, id)
		}
	}
}

// ClientCount returns the number of connected preview clients.
func (h *PreviewHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the connection and registers the client. The read
// loop only watches for disconnect; clients never send frames.
func (h *PreviewHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("Preview upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = conn
	total := len(h.clients)
	h.mu.Unlock()
	debug.Info("Preview client connected. Total: %d", total)

	go func() {
		defer func() {
			h.mu.Lock()
			if _, ok := h.clients[id]; ok {
				delete(h.clients, id)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			debug.Info("Preview client disconnected. Total: %d", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
