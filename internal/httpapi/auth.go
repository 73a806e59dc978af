// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"crypto/subtle"
	"net/http"

	schederrors "github.com/kristinsson/tcsched/pkg/errors"
	"github.com/kristinsson/tcsched/pkg/middleware"
)

// handleLogin checks the `credentials` header against the server's shared
// secret and, on success, mints a fresh bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := requiredHeader(r, "credentials")
	if err != nil {
		writeError(w, err)
		return
	}
	if subtle.ConstantTimeCompare([]byte(creds), []byte(s.loginSecret)) != 1 {
		writeError(w, schederrors.Unauthorized("invalid credentials"))
		return
	}

	token := s.authenticator.NewToken()
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(token))
}

// handleLogout invalidates the caller's bearer token; the token persists
// until this explicit invalidation or until the process restarts.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		writeError(w, schederrors.Unauthorized("missing or invalid bearer token"))
		return
	}
	s.authenticator.DeleteToken(token)
	w.WriteHeader(http.StatusNoContent)
}
