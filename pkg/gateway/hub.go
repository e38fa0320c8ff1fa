// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chapo-dev/chapo/pkg/dispatch"
	"github.com/chapo-dev/chapo/pkg/projection"
)

// MessageHandler receives one inbound frame from a session's client.
type MessageHandler func(ctx context.Context, sessionID string, raw []byte)

// Config configures a Hub.
type Config struct {
	Logger    *zap.Logger
	OnMessage MessageHandler
}

// Hub tracks connected clients per session and fans outbound frames to
// them. It implements the stream projection's sender and the dispatcher's
// terminal response sender.
type Hub struct {
	logger    *zap.Logger
	onMessage MessageHandler
	upgrader  websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]map[*Client]bool
}

// NewHub creates a hub.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Hub{
		logger:    cfg.Logger,
		onMessage: cfg.OnMessage,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sessions: make(map[string]map[*Client]bool),
	}
}

// ServeHTTP upgrades the request and runs the client's pumps. The session is
// taken from the `session` query parameter; a missing one gets a fresh id.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), sessionID, conn, h, h.logger)
	h.register(client)

	go client.writePump()
	go client.readPump()
}

// SendEvent implements projection.StreamSender.
func (h *Hub) SendEvent(sessionID string, event projection.StreamEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode stream event",
			zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	h.push(sessionID, raw)
}

// SendResponse delivers a terminal response frame. Shaped as a stream event
// with category "response" so clients consume one envelope format.
func (h *Hub) SendResponse(sessionID string, resp dispatch.TerminalResponse) {
	h.SendEvent(sessionID, projection.StreamEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Category:  projection.StreamResponse,
		SessionID: sessionID,
		RequestID: resp.RequestID,
		Payload:   resp,
	})
}

// ClientCount reports the connected clients for a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[*Client]bool)
	}
	h.sessions[c.SessionID][c] = true
	h.logger.Debug("client connected",
		zap.String("client_id", c.ID), zap.String("session_id", c.SessionID))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[c.SessionID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, c.SessionID)
	}
	close(c.send)
	h.logger.Debug("client disconnected",
		zap.String("client_id", c.ID), zap.String("session_id", c.SessionID))
}

// push enqueues a frame for every client of the session. A client with a
// full send buffer is dropped rather than blocking the caller.
func (h *Hub) push(sessionID string, raw []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.sessions[sessionID] {
		select {
		case client.send <- raw:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("dropping slow websocket client", zap.String("client_id", client.ID))
		h.unregister(client)
		client.conn.Close()
	}
}

func (h *Hub) handleInbound(c *Client, raw []byte) {
	if h.onMessage == nil {
		return
	}
	h.onMessage(context.Background(), c.SessionID, raw)
}
