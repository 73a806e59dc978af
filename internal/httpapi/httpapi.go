// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package httpapi implements the scheduler's HTTP surface: the gorilla/mux
// router, request handlers, and the middleware chain that wraps every
// route.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kristinsson/tcsched/internal/jobmanager"
	"github.com/kristinsson/tcsched/pkg/auth"
	"github.com/kristinsson/tcsched/pkg/logging"
	"github.com/kristinsson/tcsched/pkg/metrics"
	"github.com/kristinsson/tcsched/pkg/middleware"
	"github.com/kristinsson/tcsched/pkg/pool"
)

// Server holds the dependencies every handler needs.
type Server struct {
	jobs          *jobmanager.Manager
	authenticator auth.Authenticator
	loginSecret   string
	version       string
	logger        logging.Logger
	metrics       metrics.Collector
	openapi       *openAPIDoc
	bufferPool    *pool.BufferPool
}

// Config configures a Server.
type Config struct {
	Jobs          *jobmanager.Manager
	Authenticator auth.Authenticator
	LoginSecret   string
	Version       string
	Logger        logging.Logger
	Metrics       metrics.Collector
}

// NewServer constructs a Server from cfg, defaulting to a no-op logger and
// metrics collector when none are supplied.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		jobs:          cfg.Jobs,
		authenticator: cfg.Authenticator,
		loginSecret:   cfg.LoginSecret,
		version:       version,
		logger:        logger,
		metrics:       collector,
		openapi:       loadOpenAPIDoc(logger),
		bufferPool:    pool.NewBufferPool(nil, logger),
	}
}

// NewRouter builds the full route table: unauthenticated routes (version,
// login, the OpenAPI document), bearer-protected job/task/watch routes, and
// the router-wide middleware chain wrapping both.
func (s *Server) NewRouter() http.Handler {
	router := mux.NewRouter().StrictSlash(false)

	chain := middleware.Chain(
		middleware.WithRequestID(),
		middleware.WithRecovery(s.logger),
		middleware.WithLogging(s.logger),
		middleware.WithMetrics(s.metrics),
	)
	router.Use(func(next http.Handler) http.Handler { return chain(next) })

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet)
	api.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.WithBearerAuth(s.authenticator))

	protected.HandleFunc("/login", s.handleLogout).Methods(http.MethodDelete)
	protected.HandleFunc("/job", s.handleCreateJob).Methods(http.MethodPost)
	protected.HandleFunc("/job", s.handleListJobs).Methods(http.MethodGet)
	protected.HandleFunc("/job/{job_id}", s.handleDeleteJob).Methods(http.MethodDelete)
	protected.HandleFunc("/job/{job_id}/output", s.handleJobOutput).Methods(http.MethodGet)
	protected.HandleFunc("/job/{job_id}/watch", s.handleJobWatchSSE).Methods(http.MethodGet)
	protected.HandleFunc("/job/{job_id}/task/{task_id}/output", s.handleTaskOutput).Methods(http.MethodGet)
	protected.HandleFunc("/job/{job_id}/task/{task_id}/output", s.handleSubmitTaskOutput).Methods(http.MethodPost)
	protected.HandleFunc("/job/{job_id}/task/{task_id}/input/{idx}", s.handleTaskInput).Methods(http.MethodGet)
	protected.HandleFunc("/job/{job_id}/task/{task_id}", s.handleCancelTask).Methods(http.MethodDelete)
	protected.HandleFunc("/allocate_task", s.handleAllocateTask).Methods(http.MethodGet)
	protected.HandleFunc("/watch", s.handleAllWatchWS)

	return router
}
