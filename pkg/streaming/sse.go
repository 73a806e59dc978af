// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package streaming exposes task-lifecycle events over Server-Sent Events
// and WebSocket, wrapping pkg/watch's polling-based TaskPoller.
//
// Collapsed from sse.go/websocket.go's job/node/partition multi-stream
// protocol: the scheduler only ever streams one kind of event (task state
// changes), so there's no stream-type switch to dispatch on.
package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kristinsson/tcsched/pkg/watch"
)

// EventSource opens a task-event stream for the incoming request — e.g.
// scoped to one job for GET /api/job/{id}/watch, or unscoped for the
// supplemented GET /api/watch.
type EventSource func(ctx context.Context, r *http.Request) (<-chan watch.TaskEvent, error)

// SSEServer serves task events as Server-Sent Events.
type SSEServer struct {
	source EventSource
}

// NewSSEServer creates a new Server-Sent Events server backed by source.
func NewSSEServer(source EventSource) *SSEServer {
	return &SSEServer{source: source}
}

// SSEEvent represents a Server-Sent Event
type SSEEvent struct {
	ID    string      `json:"id,omitempty"`
	Event string      `json:"event,omitempty"`
	Data  interface{} `json:"data"`
	Retry int         `json:"retry,omitempty"`
}

// HandleSSE handles Server-Sent Events connections
func (sse *SSEServer) HandleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := sse.source(ctx, r)
	if err != nil {
		sse.writeSSEEvent(w, flusher, SSEEvent{
			Event: "error",
			Data:  map[string]string{"error": "failed to start task stream: " + err.Error()},
		})
		return
	}

	sse.writeSSEEvent(w, flusher, SSEEvent{
		Event: "connected",
		Data:  map[string]string{"status": "connected"},
	})

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				sse.writeSSEEvent(w, flusher, SSEEvent{
					Event: "stream_closed",
					Data:  map[string]string{"status": "closed"},
				})
				return
			}

			sse.writeSSEEvent(w, flusher, SSEEvent{
				ID:    fmt.Sprintf("task-%d", time.Now().UnixNano()),
				Event: event.EventType,
				Data:  event,
			})
		}
	}
}

// writeSSEEvent writes an SSE event to the response
func (sse *SSEServer) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event SSEEvent) {
	if event.ID != "" {
		fmt.Fprintf(w, "id: %s\n", event.ID)
	}
	if event.Event != "" {
		fmt.Fprintf(w, "event: %s\n", event.Event)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		fmt.Fprintf(w, "data: {\"error\": \"failed to marshal data\"}\n")
	} else {
		fmt.Fprintf(w, "data: %s\n", string(data))
	}

	if event.Retry > 0 {
		fmt.Fprintf(w, "retry: %d\n", event.Retry)
	}

	fmt.Fprintf(w, "\n")
	flusher.Flush()
}
