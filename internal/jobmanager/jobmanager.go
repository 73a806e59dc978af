// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobmanager implements the job manager: a thin facade over the
// job database and the blob store that translates submission requests
// into job+task graphs, hydrates allocations into worker-ready task
// instances, and resolves job/task outputs.
package jobmanager

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/kristinsson/tcsched/internal/blob"
	"github.com/kristinsson/tcsched/internal/jobdb"
	"github.com/kristinsson/tcsched/internal/model"
	schederrors "github.com/kristinsson/tcsched/pkg/errors"
	"github.com/kristinsson/tcsched/pkg/logging"
)

// Manager is the job manager.
type Manager struct {
	db     *jobdb.DB
	store  blob.Store
	logger logging.Logger
}

// New constructs a Job Manager over db and store.
func New(db *jobdb.DB, store blob.Store, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Manager{db: db, store: store, logger: logger}
}

func analysisTask() model.Task {
	return model.Task{
		Recipe: model.Recipe{Kind: model.RecipeAnalysis, Analysis: &model.AnalysisRecipe{}},
		Inputs: []model.Input{{Index: 0}},
	}
}

func transcodeTask(opts model.Options, analysisIdx int) model.Task {
	return model.Task{
		Recipe: model.Recipe{Kind: model.RecipeTranscode, Transcode: &model.TranscodeRecipe{
			Codec:  opts.VideoCodec,
			Params: opts.VideoParams,
		}},
		Inputs: []model.Input{{Index: 0}},
	}
}

func mergeTask(parts []int) model.Task {
	inputs := make([]model.Input, len(parts))
	for i, p := range parts {
		inputs[i] = model.Input{Index: p}
	}
	return model.Task{
		Recipe: model.Recipe{Kind: model.RecipeMerge, Merge: &model.MergeRecipe{Parts: parts}},
		Inputs: inputs,
	}
}

// CreateJob persists opts, stores source as the job's input blob, and
// inserts the default task sequence: Analysis, Transcode (depends on
// Analysis), Merge (depends on Transcode). The merge step is appended even
// when there is only one part to merge, so get_job_output's terminal-task
// convention has a uniform answer regardless of options.
func (m *Manager) CreateJob(source io.Reader, opts model.Options) (uuid.UUID, error) {
	start := time.Now()

	if opts.VideoCodec == "" {
		return uuid.Nil, schederrors.BadRequest("video_codec is required")
	}

	inputBlobID, err := m.store.BodyToNewFile(source)
	if err != nil {
		wrapped := schederrors.Internal("storing job source", err)
		logging.LogError(m.logger, wrapped, "create_job", "video_codec", opts.VideoCodec)
		return uuid.Nil, wrapped
	}

	jobID := m.db.CreateJob(inputBlobID, opts)

	analysisIdx, err := m.db.AppendTask(jobID, analysisTask(), nil)
	if err != nil {
		return uuid.Nil, err
	}
	transcodeIdx, err := m.db.AppendTask(jobID, transcodeTask(opts, analysisIdx), []int{analysisIdx})
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := m.db.AppendTask(jobID, mergeTask([]int{transcodeIdx}), []int{transcodeIdx}); err != nil {
		return uuid.Nil, err
	}

	logging.LogOperation(m.logger, "create_job", "job_id", jobID.String(), "video_codec", opts.VideoCodec).
		Info("created job")
	logging.LogDuration(m.logger, start, "create_job")
	return jobID, nil
}

// AddTaskToJob appends an additional task to an existing job.
func (m *Manager) AddTaskToJob(jobID uuid.UUID, task model.Task, dependencies []int) (int, error) {
	return m.db.AppendTask(jobID, task, dependencies)
}

// AllocateTask wraps the DB's allocation primitive and hydrates the
// resulting task into a worker-ready Instance, resolving every Input
// descriptor to a concrete blob id.
func (m *Manager) AllocateTask() (*model.Instance, error) {
	jobID, allocID, ok := m.db.AllocateTask()
	if !ok {
		return nil, schederrors.Unavailable("no task currently allocatable")
	}

	task, taskIdx, found, err := m.db.GetAllocatedTask(jobID, allocID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, schederrors.Internal("allocation vanished immediately after being issued", nil)
	}

	job, err := m.db.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	resolved := make([]model.ResolvedInput, len(task.Inputs))
	for i, in := range task.Inputs {
		blobID, err := m.resolveInput(job, in)
		if err != nil {
			return nil, err
		}
		resolved[i] = model.ResolvedInput{Input: in, BlobID: blobID}
	}

	return &model.Instance{
		JobID:     jobID,
		TaskID:    allocID,
		TaskIndex: taskIdx,
		Inputs:    resolved,
		Recipe:    task.Recipe,
	}, nil
}

// resolveInput maps an Input descriptor to the concrete blob it refers to.
// Index 0 is the job's source; index k>0 is the output of the task at
// index k itself, which is guaranteed to be Finished (and therefore have
// an output) by the time this task became eligible for allocation — a
// missing blob here is a scheduler bug, not a client error, hence
// Internal rather than NotFound.
func (m *Manager) resolveInput(job model.Job, in model.Input) (uuid.UUID, error) {
	if in.Index == 0 {
		return job.InputBlobID, nil
	}
	depIdx := in.Index
	if depIdx < 0 || depIdx >= len(job.Tasks) {
		return uuid.Nil, schederrors.Internal("input references unknown task", nil)
	}
	dep := job.Tasks[depIdx]
	if dep.OutputBlobID == nil {
		return uuid.Nil, schederrors.Internal("dependency has no output despite being eligible", nil)
	}
	return *dep.OutputBlobID, nil
}

// GetTask returns the hydrated Instance for an allocated task, or nil if
// allocationID is unknown.
func (m *Manager) GetTask(jobID, allocationID uuid.UUID) (*model.Instance, error) {
	task, taskIdx, found, err := m.db.GetAllocatedTask(jobID, allocationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	job, err := m.db.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	resolved := make([]model.ResolvedInput, len(task.Inputs))
	for i, in := range task.Inputs {
		blobID, err := m.resolveInput(job, in)
		if err != nil {
			return nil, err
		}
		resolved[i] = model.ResolvedInput{Input: in, BlobID: blobID}
	}
	return &model.Instance{
		JobID:     jobID,
		TaskID:    allocationID,
		TaskIndex: taskIdx,
		Inputs:    resolved,
		Recipe:    task.Recipe,
	}, nil
}

// SetTaskOutput records a task's output blob and, on success, immediately
// fulfills the task so dependents unblock without a separate round trip.
func (m *Manager) SetTaskOutput(jobID uuid.UUID, taskIndex int, blobID uuid.UUID) error {
	if err := m.db.SetOutput(jobID, taskIndex, blobID); err != nil {
		return err
	}
	return m.db.Fulfill(jobID, taskIndex)
}

// CancelTask returns a task to Pending.
func (m *Manager) CancelTask(jobID uuid.UUID, taskIndex int) error {
	return m.db.CancelAllocation(jobID, taskIndex)
}

// ResolveAllocation maps an allocation id back to the task index it was
// issued for — the address workers and HTTP clients carry after
// allocate_task, used to locate a task without the caller ever seeing its
// index directly.
func (m *Manager) ResolveAllocation(jobID, allocationID uuid.UUID) (int, error) {
	_, taskIdx, found, err := m.db.GetAllocatedTask(jobID, allocationID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, schederrors.NotFound("allocation not found")
	}
	return taskIdx, nil
}

// GetResolvedInput resolves a single input of task taskIndex by its
// position within the task's inputs slice, the same position a worker
// addresses via GET .../input/{idx} (see DESIGN.md's worker-input-idx
// decision).
func (m *Manager) GetResolvedInput(jobID uuid.UUID, taskIndex, inputIdx int) (uuid.UUID, error) {
	job, err := m.db.GetJob(jobID)
	if err != nil {
		return uuid.Nil, err
	}
	if taskIndex < 0 || taskIndex >= len(job.Tasks) {
		return uuid.Nil, schederrors.NotFound("task not found")
	}
	inputs := job.Tasks[taskIndex].Inputs
	if inputIdx < 0 || inputIdx >= len(inputs) {
		return uuid.Nil, schederrors.NotFound("input not found")
	}
	return m.resolveInput(job, inputs[inputIdx])
}

// SubmitTaskOutput stores body as a fresh blob and records it as taskIndex's
// output, fulfilling the task in the same call as SetTaskOutput does.
func (m *Manager) SubmitTaskOutput(jobID uuid.UUID, taskIndex int, body io.Reader) (uuid.UUID, error) {
	blobID, err := m.store.BodyToNewFile(body)
	if err != nil {
		return uuid.Nil, schederrors.Internal("storing task output", err)
	}
	if err := m.SetTaskOutput(jobID, taskIndex, blobID); err != nil {
		return uuid.Nil, err
	}
	return blobID, nil
}

// DeleteJob removes a job and releases its allocations.
func (m *Manager) DeleteJob(jobID uuid.UUID) error {
	return m.db.DeleteJob(jobID)
}

// GetAllocatedTaskOutput returns a task's output blob id. A task known but
// without output yet returns (nil, nil), distinct from NotFound.
func (m *Manager) GetAllocatedTaskOutput(jobID uuid.UUID, taskIndex int) (*uuid.UUID, error) {
	task, err := m.db.GetTask(jobID, taskIndex)
	if err != nil {
		return nil, err
	}
	return task.OutputBlobID, nil
}

// TerminalTaskIndex returns the index of the task in job that no other
// task depends on — by construction of CreateJob's default sequence this
// is the last-appended task, but the search is general so manually
// appended graphs (AddTaskToJob) still resolve correctly.
func TerminalTaskIndex(job model.Job) int {
	dependedOn := make(map[int]struct{})
	for _, t := range job.Tasks {
		for dep := range t.Dependencies {
			dependedOn[dep] = struct{}{}
		}
	}
	for i := len(job.Tasks) - 1; i >= 0; i-- {
		if _, ok := dependedOn[i]; !ok {
			return i
		}
	}
	return len(job.Tasks) - 1
}

// GetJobOutput returns the output of job's terminal task, or nil if that
// task has not produced output yet.
func (m *Manager) GetJobOutput(jobID uuid.UUID) (*uuid.UUID, error) {
	job, err := m.db.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Tasks) == 0 {
		return nil, schederrors.Internal("job has no tasks", nil)
	}
	terminal := TerminalTaskIndex(job)
	return job.Tasks[terminal].OutputBlobID, nil
}

// GetJobList returns every known job id.
func (m *Manager) GetJobList() []uuid.UUID {
	return m.db.ListJobs()
}

// OutputReader opens a sealed blob for reading, used by the HTTP layer to
// serve job/task output and input bodies.
func (m *Manager) OutputReader(blobID uuid.UUID) (blob.ReadSeekCloser, error) {
	return m.store.ReadFile(blobID)
}

// GetJobTasks returns a copy of every task in a job, used by the streaming
// layer to compute task-state snapshots without reaching into the Job DB
// directly.
func (m *Manager) GetJobTasks(jobID uuid.UUID) ([]model.Task, error) {
	return m.db.GetTasks(jobID)
}

// IsTaskFinished reports whether fulfill has already fired for a task,
// the last bit of state model.DerivedState needs that isn't carried on
// model.Task itself.
func (m *Manager) IsTaskFinished(jobID uuid.UUID, taskIndex int) (bool, error) {
	return m.db.IsFinished(jobID, taskIndex)
}

// SweepExpiredAllocations reclaims every task whose allocation has
// outstripped timeout, logging how many it reclaimed.
func (m *Manager) SweepExpiredAllocations(timeout time.Duration) int {
	n := m.db.SweepExpiredAllocations(timeout)
	if n > 0 {
		m.logger.Info("reclaimed expired allocations", "count", n)
	}
	return n
}
