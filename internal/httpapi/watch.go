// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/kristinsson/tcsched/internal/model"
	"github.com/kristinsson/tcsched/pkg/watch"
)

// jobSnapshots builds the FetchFunc a TaskPoller needs to watch a single
// job's tasks (backs GET /api/job/{job_id}/watch).
func (s *Server) jobSnapshots(jobID uuid.UUID) watch.FetchFunc {
	return func(ctx context.Context) ([]watch.TaskSnapshot, error) {
		tasks, err := s.jobs.GetJobTasks(jobID)
		if err != nil {
			return nil, err
		}
		return taskSnapshots(s, jobID, tasks), nil
	}
}

func taskSnapshots(s *Server, jobID uuid.UUID, tasks []model.Task) []watch.TaskSnapshot {
	out := make([]watch.TaskSnapshot, len(tasks))
	for i, t := range tasks {
		finished, _ := s.jobs.IsTaskFinished(jobID, i)
		out[i] = watch.TaskSnapshot{Index: i, State: watch.TaskState(model.DerivedState(&t, finished).String())}
	}
	return out
}

// jobWatchSource adapts jobSnapshots into a streaming.EventSource scoped to
// the {job_id} in the request path.
func (s *Server) jobWatchSource(ctx context.Context, r *http.Request) (<-chan watch.TaskEvent, error) {
	jobID, err := s.authorizedJobID(r)
	if err != nil {
		return nil, err
	}
	poller := watch.NewTaskPoller(s.jobSnapshots(jobID))
	return poller.Watch(ctx, nil)
}

// allWatchSource is the unscoped GET /api/watch: it fans the per-job
// TaskPoller streams of every job the caller's token is authorized for into
// one combined channel, tagging each event by its originating job's
// position in that set. Composite indices avoid colliding task indices
// across jobs without teaching pkg/watch anything about jobs.
func (s *Server) allWatchSource(ctx context.Context, r *http.Request) (<-chan watch.TaskEvent, error) {
	token := mustToken(r)
	var jobIDs []uuid.UUID
	for _, id := range s.jobs.GetJobList() {
		if s.authenticator.Check(token, id) {
			jobIDs = append(jobIDs, id)
		}
	}

	out := make(chan watch.TaskEvent)
	var wg sync.WaitGroup
	for pos, jobID := range jobIDs {
		jobID, pos := jobID, pos
		poller := watch.NewTaskPoller(s.jobSnapshots(jobID))
		events, err := poller.Watch(ctx, nil)
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events {
				ev.TaskIndex = pos*compositeIndexStride + ev.TaskIndex
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// compositeIndexStride bounds how many tasks a single job may have before
// allWatchSource's per-job index tagging collides with the next job's
// range; spec jobs top out at a handful of tasks (analysis/transcode/merge
// plus whatever add_task_to_job appends), so this is generous headroom.
const compositeIndexStride = 100000
