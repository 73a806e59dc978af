// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pool provides pooled reusable byte buffers for the blob store's
// write path. The scheduler makes no outbound HTTP calls of its own, so
// unlike the original connection pool this manages in-process resources
// (staging buffers for blob uploads) rather than network connections.
package pool

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kristinsson/tcsched/pkg/logging"
)

// BufferPool manages a pool of reusable staging buffers, grouped by size
// class, to reduce allocation churn on the blob store's write path.
type BufferPool struct {
	mu      sync.RWMutex
	buffers map[string]*pooledBuffer
	config  *PoolConfig
	logger  logging.Logger
}

// pooledBuffer wraps a staging buffer with usage statistics
type pooledBuffer struct {
	buf         *bytes.Buffer
	created     time.Time
	lastUsed    time.Time
	useCount    int64
	activeUsers int32
}

// PoolConfig holds configuration for the buffer pool
type PoolConfig struct {
	// InitialCapacity is the starting capacity for freshly allocated buffers
	InitialCapacity int

	// MaxCapacity is the buffer size above which a buffer is discarded
	// instead of returned to the pool, to avoid unbounded memory retention
	// after a single large upload.
	MaxCapacity int
}

// DefaultPoolConfig returns a pool configuration suited to typical video
// segment upload sizes.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		InitialCapacity: 64 * 1024,
		MaxCapacity:     64 * 1024 * 1024,
	}
}

// NewBufferPool creates a new staging buffer pool
func NewBufferPool(config *PoolConfig, logger logging.Logger) *BufferPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &BufferPool{
		buffers: make(map[string]*pooledBuffer),
		config:  config,
		logger:  logger,
	}
}

// GetBuffer returns a reset, reusable buffer for the given size class (e.g.
// "analysis", "transcode-segment", "merge-output").
func (p *BufferPool) GetBuffer(class string) *bytes.Buffer {
	p.mu.RLock()
	pb, exists := p.buffers[class]
	p.mu.RUnlock()

	if exists {
		p.mu.Lock()
		pb.lastUsed = time.Now()
		pb.useCount++
		p.mu.Unlock()

		pb.buf.Reset()
		return pb.buf
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pb, exists := p.buffers[class]; exists {
		pb.lastUsed = time.Now()
		pb.useCount++
		pb.buf.Reset()
		return pb.buf
	}

	buf := bytes.NewBuffer(make([]byte, 0, p.config.InitialCapacity))
	pb = &pooledBuffer{
		buf:      buf,
		created:  time.Now(),
		lastUsed: time.Now(),
		useCount: 1,
	}

	p.buffers[class] = pb
	p.logger.Info("created new staging buffer", "class", class)

	return buf
}

// Release returns class's buffer to the pool, discarding it instead if it
// grew past MaxCapacity.
func (p *BufferPool) Release(class string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pb, exists := p.buffers[class]
	if !exists {
		return
	}
	if pb.buf.Cap() > p.config.MaxCapacity {
		delete(p.buffers, class)
		p.logger.Info("discarded oversized staging buffer", "class", class, "capacity", pb.buf.Cap())
	}
}

// Stats returns statistics about the buffer pool
func (p *BufferPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{
		TotalBuffers: len(p.buffers),
		BufferStats:  make(map[string]BufferStats),
	}

	for class, pb := range p.buffers {
		stats.BufferStats[class] = BufferStats{
			Created:     pb.created,
			LastUsed:    pb.lastUsed,
			UseCount:    pb.useCount,
			ActiveUsers: pb.activeUsers,
		}
	}

	return stats
}

// CleanupIdleBuffers removes buffers that haven't been used recently
func (p *BufferPool) CleanupIdleBuffers(maxIdleTime time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxIdleTime)

	for class, pb := range p.buffers {
		if pb.lastUsed.Before(cutoff) && pb.activeUsers == 0 {
			delete(p.buffers, class)
			removed++

			p.logger.Info("removed idle staging buffer",
				"class", class,
				"idle_duration", time.Since(pb.lastUsed),
			)
		}
	}

	return removed
}

// Close discards all buffers in the pool
func (p *BufferPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for class := range p.buffers {
		delete(p.buffers, class)
	}

	p.logger.Info("closed buffer pool")
	return nil
}

// PoolStats contains statistics about the buffer pool
type PoolStats struct {
	TotalBuffers int
	BufferStats  map[string]BufferStats
}

// BufferStats contains statistics for a single size class
type BufferStats struct {
	Created     time.Time
	LastUsed    time.Time
	UseCount    int64
	ActiveUsers int32
}

// BufferManager manages pooled-buffer lifecycle and periodic cleanup
type BufferManager struct {
	pool            *BufferPool
	validateFunc    ValidateFunc
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          logging.Logger
}

// ValidateFunc checks that class's buffer is in a usable state.
type ValidateFunc func(ctx context.Context, class string, buf *bytes.Buffer) error

// NewBufferManager creates a new buffer manager
func NewBufferManager(pool *BufferPool, validate ValidateFunc, logger logging.Logger) *BufferManager {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &BufferManager{
		pool:            pool,
		validateFunc:    validate,
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     15 * time.Minute,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}
}

// Start begins the buffer management routines
func (bm *BufferManager) Start() {
	bm.wg.Add(1)
	go bm.cleanupRoutine()
}

// Stop stops the buffer management routines
func (bm *BufferManager) Stop() {
	bm.cancel()
	bm.wg.Wait()
}

// cleanupRoutine periodically cleans up idle buffers
func (bm *BufferManager) cleanupRoutine() {
	defer bm.wg.Done()

	ticker := time.NewTicker(bm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := bm.pool.CleanupIdleBuffers(bm.maxIdleTime)
			if removed > 0 {
				bm.logger.Info("cleaned up idle buffers", "removed", removed)
			}
		case <-bm.ctx.Done():
			return
		}
	}
}

// GetValidatedBuffer returns a usable buffer for class, after an optional
// validation pass.
func (bm *BufferManager) GetValidatedBuffer(ctx context.Context, class string) (*bytes.Buffer, error) {
	buf := bm.pool.GetBuffer(class)

	if bm.validateFunc != nil {
		if err := bm.validateFunc(ctx, class, buf); err != nil {
			return nil, fmt.Errorf("buffer validation failed: %w", err)
		}
	}

	return buf, nil
}
