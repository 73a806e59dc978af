// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package watch provides polling-based watch implementations for job task
// state, backing the supplemented GET /api/job/{id}/watch and GET
// /api/watch streaming endpoints.
//
// Collapsed from poller.go's three near-identical pollers (JobPoller,
// NodePoller, PartitionPoller — each diffing a []T state map keyed by a
// resource identifier) into a single TaskPoller, since the scheduler only
// ever watches one kind of resource: task state within a job.
package watch

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is the default polling interval for watch operations
const DefaultPollInterval = 2 * time.Second

// TaskState is a task's lifecycle state as the poller's fetch function
// reports it (mirrors model.State.String() without importing internal/model,
// keeping this package dependency-free of the server's internal packages).
type TaskState string

// TaskSnapshot is one task's current state, keyed by its index within the job.
type TaskSnapshot struct {
	Index int
	State TaskState
}

// TaskEvent reports a task appearing or changing state.
type TaskEvent struct {
	EventType     string // "task_new" or "task_state_change"
	TaskIndex     int
	PreviousState TaskState
	NewState      TaskState
	EventTime     time.Time
}

// FetchFunc returns the current state of every task being watched.
type FetchFunc func(ctx context.Context) ([]TaskSnapshot, error)

// WatchOptions filters which tasks a TaskPoller reports events for.
type WatchOptions struct {
	// TaskIndices restricts events to these indices; empty means all tasks.
	TaskIndices []int

	// ExcludeNew suppresses "task_new" events for tasks that appear after
	// the first poll (tasks seen on the first poll never produce one).
	ExcludeNew bool
}

// TaskPoller implements real-time task-state monitoring by polling a
// FetchFunc on an interval and diffing against previously observed state.
type TaskPoller struct {
	fetch        FetchFunc
	pollInterval time.Duration
	bufferSize   int
	mu           sync.RWMutex
	taskStates   map[int]TaskState
}

// NewTaskPoller creates a new task poller backed by fetch.
func NewTaskPoller(fetch FetchFunc) *TaskPoller {
	return &TaskPoller{
		fetch:        fetch,
		pollInterval: DefaultPollInterval,
		bufferSize:   100,
		taskStates:   make(map[int]TaskState),
	}
}

// WithPollInterval sets a custom poll interval
func (p *TaskPoller) WithPollInterval(interval time.Duration) *TaskPoller {
	p.pollInterval = interval
	return p
}

// WithBufferSize sets a custom buffer size for the event channel
func (p *TaskPoller) WithBufferSize(size int) *TaskPoller {
	p.bufferSize = size
	return p
}

// Watch starts watching for task state changes. The returned channel is
// closed when ctx is cancelled.
func (p *TaskPoller) Watch(ctx context.Context, opts *WatchOptions) (<-chan TaskEvent, error) {
	eventChan := make(chan TaskEvent, p.bufferSize)

	if opts == nil {
		opts = &WatchOptions{}
	}

	go p.pollLoop(ctx, opts, eventChan)

	return eventChan, nil
}

func (p *TaskPoller) pollLoop(ctx context.Context, opts *WatchOptions, eventChan chan<- TaskEvent) {
	defer close(eventChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.performPoll(ctx, opts, eventChan, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.performPoll(ctx, opts, eventChan, false)
		}
	}
}

func (p *TaskPoller) performPoll(ctx context.Context, opts *WatchOptions, eventChan chan<- TaskEvent, isInitial bool) {
	snapshots, err := p.fetch(ctx)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, snap := range snapshots {
		if len(opts.TaskIndices) > 0 && !containsIndex(opts.TaskIndices, snap.Index) {
			continue
		}

		previous, exists := p.taskStates[snap.Index]

		if !exists {
			p.taskStates[snap.Index] = snap.State
			if !isInitial && !opts.ExcludeNew {
				select {
				case eventChan <- TaskEvent{
					EventType: "task_new",
					TaskIndex: snap.Index,
					NewState:  snap.State,
					EventTime: time.Now(),
				}:
				case <-ctx.Done():
					return
				}
			}
			continue
		}

		if previous != snap.State {
			p.taskStates[snap.Index] = snap.State
			select {
			case eventChan <- TaskEvent{
				EventType:     "task_state_change",
				TaskIndex:     snap.Index,
				PreviousState: previous,
				NewState:      snap.State,
				EventTime:     time.Now(),
			}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func containsIndex(indices []int, idx int) bool {
	for _, i := range indices {
		if i == idx {
			return true
		}
	}
	return false
}
