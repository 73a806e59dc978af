// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package sweeper reclaims tasks stuck in Allocated state because the
// worker that took them never submitted output or went away. It runs a
// ctx/cancel-plus-WaitGroup goroutine driven by a single time.Ticker.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/kristinsson/tcsched/internal/jobmanager"
	"github.com/kristinsson/tcsched/pkg/logging"
)

// Sweeper periodically reclaims expired task allocations.
type Sweeper struct {
	jobs     *jobmanager.Manager
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Sweeper that reclaims allocations older than timeout,
// checking every interval.
func New(jobs *jobmanager.Manager, interval, timeout time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		jobs:     jobs,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.jobs.SweepExpiredAllocations(s.timeout)
		case <-s.ctx.Done():
			return
		}
	}
}
