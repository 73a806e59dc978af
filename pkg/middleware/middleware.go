// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package middleware provides HTTP server middleware for the scheduler's
// API: logging, panic recovery, bearer-token authentication and metrics,
// composed with a Chain-of-functions helper over http.Handler.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kristinsson/tcsched/pkg/auth"
	"github.com/kristinsson/tcsched/pkg/logging"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so the first one runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// statusRecorder captures the status code written by the wrapped handler
// so logging/metrics middleware can observe it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// WithLogging logs every request's method, path, status and duration.
func WithLogging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			reqLogger := logging.LogAPICall(logger, r.Method, r.URL.Path)
			next.ServeHTTP(rec, r)

			reqLogger.Info("request completed",
				"status_code", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// WithRecovery turns a panic in the wrapped handler into a 500 response
// instead of crashing the server.
func WithRecovery(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// tokenContextKey is the context key the bearer token is stored under.
type tokenContextKey struct{}

// TokenFromContext returns the bearer token WithBearerAuth stashed on the
// request context, if any.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok
}

// WithRequestID stamps every request with a fresh correlation id, echoed
// back as the X-Request-ID response header.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-ID", uuid.New().String())
			next.ServeHTTP(w, r)
		})
	}
}

// WithBearerAuth rejects requests without a valid `Authorization: Bearer
// <token>` header, and stashes the token in the request context for
// downstream per-object membership checks. GET /api/version and GET
// /api/login are expected to be routed outside this middleware's scope.
func WithBearerAuth(authenticator auth.Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || !authenticator.Valid(token) {
				http.Error(w, "missing or invalid bearer token", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), tokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// MetricsCollector is the interface WithMetrics records against.
type MetricsCollector interface {
	RecordRequest(method, path string)
	RecordResponse(method, path string, statusCode int, duration time.Duration)
	RecordError(method, path string, err error)
}

// WithMetrics records request/response counters via collector.
func WithMetrics(collector MetricsCollector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			collector.RecordRequest(r.Method, r.URL.Path)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			collector.RecordResponse(r.Method, r.URL.Path, rec.status, time.Since(start))
		})
	}
}
