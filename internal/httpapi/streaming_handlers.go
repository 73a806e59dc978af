// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	schedcontext "github.com/kristinsson/tcsched/pkg/context"
	"github.com/kristinsson/tcsched/pkg/streaming"
)

// handleJobWatchSSE streams one job's task-state transitions as
// Server-Sent Events. Watch connections carry no timeout: they run until
// the client disconnects. Deleting the job does not end the stream; it
// stays open and emits no further events.
func (s *Server) handleJobWatchSSE(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWatch, nil)
	defer cancel()
	streaming.NewSSEServer(s.jobWatchSource).HandleSSE(w, r.WithContext(ctx))
}

// handleAllWatchWS streams every authorized job's task-state transitions
// over a single WebSocket connection.
func (s *Server) handleAllWatchWS(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWatch, nil)
	defer cancel()
	streaming.NewWebSocketServer(s.allWatchSource).HandleWebSocket(w, r.WithContext(ctx))
}
