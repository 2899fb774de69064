// Package stream pushes live simulation frames to WebSocket clients.
//
// Each client receives a JSON text message per frame report and a binary
// PNG message per published snapshot. Slow clients drop messages rather
// than stall the simulation.
package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gogpu/gravsim"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendQueue      = 16
)

// ErrClosed is returned by Hub methods after Close.
var ErrClosed = errors.New("stream: hub closed")

type message struct {
	kind int
	data []byte
	json any
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan message
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	dropped uint64
}

// NewHub creates an empty hub. Origins are not checked: the stream is
// read-only.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gravsim.Logger().Warn("stream: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan message, sendQueue)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	gravsim.Logger().Info("stream: client connected", "remote", r.RemoteAddr, "clients", n)

	go c.writePump()
	go c.readPump()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// BroadcastJSON queues v as a JSON text message to every client.
func (h *Hub) BroadcastJSON(v any) error {
	return h.broadcast(message{kind: websocket.TextMessage, json: v})
}

// BroadcastBinary queues data as a binary message to every client.
func (h *Hub) BroadcastBinary(data []byte) error {
	return h.broadcast(message{kind: websocket.BinaryMessage, data: data})
}

func (h *Hub) broadcast(m message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
			h.dropped++
		}
	}
	return nil
}

// Close disconnects every client. It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// remove unregisters c. The send channel is closed exactly once, by
// whichever of remove and Close gets there first.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client input and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				gravsim.Logger().Debug("stream: client read failed", "err", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case m, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			var err error
			if m.json != nil {
				err = c.conn.WriteJSON(m.json)
			} else {
				err = c.conn.WriteMessage(m.kind, m.data)
			}
			if err != nil {
				gravsim.Logger().Debug("stream: client write failed", "err", err)
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}
