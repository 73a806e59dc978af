// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketServer serves task events over a single-purpose WebSocket
// connection (one event stream per connection, scoped by the upgrade
// request), backed by the same EventSource as SSEServer.
type WebSocketServer struct {
	source   EventSource
	upgrader websocket.Upgrader
}

// NewWebSocketServer creates a new WebSocket server backed by source.
func NewWebSocketServer(source EventSource) *WebSocketServer {
	return &WebSocketServer{
		source: source,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// StreamMessage represents a message sent over WebSocket
type StreamMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// HandleWebSocket handles WebSocket connections
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Printf("websocket close error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := ws.source(ctx, r)
	if err != nil {
		ws.sendError(conn, "failed to start task stream: "+err.Error())
		return
	}

	go ws.discardIncoming(ctx, conn, cancel)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				ws.sendMessage(conn, StreamMessage{Type: "stream_closed", Timestamp: time.Now()})
				return
			}
			ws.sendMessage(conn, StreamMessage{Type: "event", Data: event, Timestamp: time.Now()})
		}
	}
}

// discardIncoming drains client messages (pings, close frames) so control
// frames get processed, cancelling ctx once the client goes away.
func (ws *WebSocketServer) discardIncoming(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
		}
	}
}

// sendMessage sends a message over the WebSocket
func (ws *WebSocketServer) sendMessage(conn *websocket.Conn, msg StreamMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

// sendError sends an error message
func (ws *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	ws.sendMessage(conn, StreamMessage{Type: "error", Error: message, Timestamp: time.Now()})
}
