// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobdb implements the job database: storage of jobs, tasks,
// dependencies, allocations and outputs, and the deterministic
// dependency-aware allocation algorithm. Every primitive here executes
// under a single mutex, so each call behaves as if it ran in its own
// critical section over the whole table.
//
// Each task's dependency set is a map[int]struct{}: append_task checks each
// requested index against the new task's index, allocate_task only tests
// the set for emptiness, and fulfill deletes from it, so no step depends on
// the map's iteration order.
package jobdb

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kristinsson/tcsched/internal/model"
	schederrors "github.com/kristinsson/tcsched/pkg/errors"
)

// taskRecord is a task plus its DB-only bookkeeping: the dependency set
// that shrinks on fulfill, and whether fulfill has already fired (Finished
// is not otherwise representable on model.Task, which only carries
// allocation and output).
type taskRecord struct {
	task     model.Task
	finished bool
}

type jobRecord struct {
	job   model.Job
	tasks []taskRecord
}

// DB is the job database. The zero value is not usable; use New.
type DB struct {
	mu sync.Mutex

	// order preserves job creation order for allocate_task's deterministic
	// scan; Go maps do not preserve iteration order, so a parallel slice of
	// ids plus an index map stands in for the Rust HashMap's insertion-order
	// behavior the original relies on incidentally via its own wrapper.
	order []uuid.UUID
	jobs  map[uuid.UUID]*jobRecord

	// allocations maps a live allocation id back to the job/task it was
	// issued for, so get_allocated_task and cancel_allocation don't need to
	// scan every job.
	allocations map[uuid.UUID]allocationRef
}

type allocationRef struct {
	jobID     uuid.UUID
	taskIndex int
}

// New constructs an empty Job DB.
func New() *DB {
	return &DB{
		jobs:        make(map[uuid.UUID]*jobRecord),
		allocations: make(map[uuid.UUID]allocationRef),
	}
}

// CreateJob inserts a fresh job with an empty task sequence and returns its
// new unique id.
func (d *DB) CreateJob(inputBlobID uuid.UUID, opts model.Options) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.New()
	d.jobs[id] = &jobRecord{
		job: model.Job{
			ID:          id,
			InputBlobID: inputBlobID,
			Options:     opts,
			CreatedAt:   time.Now(),
		},
	}
	d.order = append(d.order, id)
	return id
}

// GetJob returns a copy of the job payload, or NotFound.
func (d *DB) GetJob(jobID uuid.UUID) (model.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return model.Job{}, schederrors.NotFound("job not found")
	}
	return d.snapshotJob(rec), nil
}

// snapshotJob must be called with d.mu held.
func (d *DB) snapshotJob(rec *jobRecord) model.Job {
	j := rec.job
	j.Tasks = make([]model.Task, len(rec.tasks))
	for i, tr := range rec.tasks {
		j.Tasks[i] = tr.task
	}
	return j
}

// AppendTask appends task to job jobID's task sequence with the given
// dependency indices, and returns its new index. Every dependency must be
// strictly less than the new index (invariant 1); violations return
// BadRequest.
func (d *DB) AppendTask(jobID uuid.UUID, task model.Task, dependencies []int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return 0, schederrors.NotFound("job not found")
	}

	newIndex := len(rec.tasks)
	deps := make(map[int]struct{}, len(dependencies))
	for _, dep := range dependencies {
		if dep < 0 || dep >= newIndex {
			return 0, schederrors.BadRequest("dependency index out of range")
		}
		deps[dep] = struct{}{}
	}

	task.Index = newIndex
	task.Dependencies = deps
	rec.tasks = append(rec.tasks, taskRecord{task: task})
	return newIndex, nil
}

// GetTasks returns a copy of every task in job jobID, in index order.
func (d *DB) GetTasks(jobID uuid.UUID) ([]model.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return nil, schederrors.NotFound("job not found")
	}
	out := make([]model.Task, len(rec.tasks))
	for i, tr := range rec.tasks {
		out[i] = tr.task
	}
	return out, nil
}

// GetTask returns a copy of a single task.
func (d *DB) GetTask(jobID uuid.UUID, taskIndex int) (model.Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return model.Task{}, schederrors.NotFound("job not found")
	}
	if taskIndex < 0 || taskIndex >= len(rec.tasks) {
		return model.Task{}, schederrors.NotFound("task not found")
	}
	return rec.tasks[taskIndex].task, nil
}

// IsFinished reports whether fulfill has already fired for this task.
func (d *DB) IsFinished(jobID uuid.UUID, taskIndex int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return false, schederrors.NotFound("job not found")
	}
	if taskIndex < 0 || taskIndex >= len(rec.tasks) {
		return false, schederrors.NotFound("task not found")
	}
	return rec.tasks[taskIndex].finished, nil
}

// AllocateTask scans all jobs in creation order, and within each job scans
// tasks by ascending index, returning the first task with no current
// allocation and an empty dependency set. It atomically stamps a fresh
// allocation id before returning. Returns ok=false if nothing is eligible.
func (d *DB) AllocateTask() (jobID uuid.UUID, allocationID uuid.UUID, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range d.order {
		rec := d.jobs[id]
		if rec == nil {
			continue
		}
		for i := range rec.tasks {
			tr := &rec.tasks[i]
			if tr.task.Allocation != nil {
				continue
			}
			if len(tr.task.Dependencies) != 0 {
				continue
			}
			allocID := uuid.New()
			tr.task.Allocation = &model.Allocation{ID: allocID, AllocatedAt: time.Now()}
			d.allocations[allocID] = allocationRef{jobID: id, taskIndex: i}
			return id, allocID, true
		}
	}
	return uuid.Nil, uuid.Nil, false
}

// GetAllocatedTask resolves an allocation id back to its task and index.
// ok=false (no error) means the allocation id is unknown — it may have
// already been reclaimed or cancelled. NotFound means jobID itself is
// unknown.
func (d *DB) GetAllocatedTask(jobID uuid.UUID, allocationID uuid.UUID) (model.Task, int, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return model.Task{}, 0, false, schederrors.NotFound("job not found")
	}

	ref, ok := d.allocations[allocationID]
	if !ok || ref.jobID != jobID {
		return model.Task{}, 0, false, nil
	}
	return rec.tasks[ref.taskIndex].task, ref.taskIndex, true, nil
}

// Fulfill marks the task at taskIndex Finished: it removes taskIndex from
// the dependency set of every task at strictly greater indices, unblocking
// them. Output must have been set separately via SetOutput — Fulfill does
// not touch output_blob_id (Analysis tasks may be fulfilled without ever
// calling SetOutput).
func (d *DB) Fulfill(jobID uuid.UUID, taskIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return schederrors.NotFound("job not found")
	}
	if taskIndex < 0 || taskIndex >= len(rec.tasks) {
		return schederrors.NotFound("task not found")
	}

	rec.tasks[taskIndex].finished = true
	for i := taskIndex + 1; i < len(rec.tasks); i++ {
		delete(rec.tasks[i].task.Dependencies, taskIndex)
	}
	return nil
}

// SetOutput records the blob id produced by a task. A second call on a
// task that already has an output returns AlreadySet and leaves the
// stored blob id untouched (invariant 4).
func (d *DB) SetOutput(jobID uuid.UUID, taskIndex int, blobID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return schederrors.NotFound("job not found")
	}
	if taskIndex < 0 || taskIndex >= len(rec.tasks) {
		return schederrors.NotFound("task not found")
	}
	if rec.tasks[taskIndex].task.OutputBlobID != nil {
		return schederrors.AlreadySet("task output already set")
	}
	rec.tasks[taskIndex].task.OutputBlobID = &blobID
	return nil
}

// CancelAllocation clears a task's allocation, returning it to Pending.
// Idempotent: calling it on a task that has no current allocation is not an
// error.
func (d *DB) CancelAllocation(jobID uuid.UUID, taskIndex int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return schederrors.NotFound("job not found")
	}
	if taskIndex < 0 || taskIndex >= len(rec.tasks) {
		return schederrors.NotFound("task not found")
	}

	tr := &rec.tasks[taskIndex]
	if tr.task.Allocation != nil {
		delete(d.allocations, tr.task.Allocation.ID)
		tr.task.Allocation = nil
	}
	return nil
}

// DeleteJob removes a job and every one of its tasks. After this returns,
// no primitive can reference the job's tasks and no pending allocation for
// it remains live.
func (d *DB) DeleteJob(jobID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.jobs[jobID]
	if !ok {
		return schederrors.NotFound("job not found")
	}

	for _, tr := range rec.tasks {
		if tr.task.Allocation != nil {
			delete(d.allocations, tr.task.Allocation.ID)
		}
	}
	delete(d.jobs, jobID)
	for i, id := range d.order {
		if id == jobID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListJobs returns every job id in creation order.
func (d *DB) ListJobs() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]uuid.UUID, len(d.order))
	copy(out, d.order)
	return out
}

// SweepExpiredAllocations reclaims every task whose allocation has been
// outstanding longer than timeout, returning it to Pending, and returns how
// many it reclaimed. Reaching HasOutput or Finished does not clear a task's
// Allocation, so the sweep itself skips every task that has an output or
// has been fulfilled; only a task that is still merely Allocated with no
// output (the worker-loss case) is reclaimed.
func (d *DB) SweepExpiredAllocations(timeout time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	reclaimed := 0
	for _, id := range d.order {
		rec := d.jobs[id]
		for i := range rec.tasks {
			tr := &rec.tasks[i]
			alloc := tr.task.Allocation
			if alloc == nil {
				continue
			}
			if tr.task.OutputBlobID != nil || tr.finished {
				continue
			}
			if alloc.AllocatedAt.Before(cutoff) {
				delete(d.allocations, alloc.ID)
				tr.task.Allocation = nil
				reclaimed++
			}
		}
	}
	return reclaimed
}
