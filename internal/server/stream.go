// Copyright 2026 The Frenum Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terry-li-hm/frenum/internal/audit"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
	streamSendBuffer = 64
)

// Hub fans decision events out to connected websocket clients. A
// client that cannot keep up is dropped rather than allowed to stall
// the broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[*streamClient]bool
	closed  bool
	logger  *slog.Logger
}

// NewHub creates an empty decision-stream hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*streamClient]bool),
		logger:  logger,
	}
}

// Broadcast sends one decision event to every connected client.
func (h *Hub) Broadcast(event audit.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Send buffer full; disconnect in the background.
			go h.remove(client)
		}
	}
}

// Shutdown disconnects every client and rejects future broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected stream clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = true
	h.logger.Debug("server: stream client connected", "clients", len(h.clients))
	return true
}

func (h *Hub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.close()
	h.logger.Debug("server: stream client disconnected", "clients", len(h.clients))
}

type streamClient struct {
	conn *websocket.Conn
	send chan audit.Event

	closeOnce sync.Once
}

func (c *streamClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// readPump drains inbound frames so pings and close frames are
// processed; the stream is write-only from the client's view.
func (c *streamClient) readPump(h *Hub) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Token auth gates the endpoint; origin is not the control.
		return true
	},
}

// handleStream upgrades the connection and joins the decision stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("server: websocket upgrade failed", "error", err)
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan audit.Event, streamSendBuffer),
	}
	if !s.hub.add(client) {
		client.close()
		return
	}

	go client.writePump()
	go client.readPump(s.hub)
}
