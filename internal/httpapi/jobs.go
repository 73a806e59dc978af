// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/kristinsson/tcsched/internal/listutil"
	"github.com/kristinsson/tcsched/internal/model"
	schedcontext "github.com/kristinsson/tcsched/pkg/context"
	schederrors "github.com/kristinsson/tcsched/pkg/errors"
	"github.com/kristinsson/tcsched/pkg/middleware"
)

// modTimeZero is passed to http.ServeContent, which only uses it to
// evaluate If-Modified-Since; blobs are immutable once sealed so there is
// no meaningful modification time to report.
var modTimeZero time.Time

// handleVersion reports the running server version. No auth required.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(s.version))
}

// handleCreateJob decodes the video_codec/video_param headers, rejects any
// other recognized-but-unsupported option, and hands the request body
// straight to the Job Manager as the job's source blob.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWrite, nil)
	defer cancel()
	r = r.WithContext(ctx)

	codec, err := requiredHeader(r, "video_codec")
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := parseVideoParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := model.Options{VideoCodec: codec, VideoParams: params}
	jobID, err := s.jobs.CreateJob(r.Body, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	token, _ := middleware.TokenFromContext(r.Context())
	s.authenticator.Grant(token, jobID)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(jobID.String()))
}

// handleListJobs returns every job id the caller's token is authorized for,
// paginated via limit/offset query parameters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpList, nil)
	defer cancel()
	r = r.WithContext(ctx)

	token, _ := middleware.TokenFromContext(r.Context())

	all := s.jobs.GetJobList()
	authorized := make([]uuid.UUID, 0, len(all))
	for _, id := range all {
		if s.authenticator.Check(token, id) {
			authorized = append(authorized, id)
		}
	}

	opts := listutil.Options{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}
	if err := listutil.Validate(opts); err != nil {
		writeError(w, err)
		return
	}
	page, _ := listutil.Paginate(authorized, opts)

	ids := make([]string, len(page))
	for i, id := range page {
		ids[i] = id.String()
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleJobOutput serves the job's terminal-task output, or 503 if it has
// not been produced yet.
func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpRead, nil)
	defer cancel()
	r = r.WithContext(ctx)

	jobID, err := s.authorizedJobID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	blobID, err := s.jobs.GetJobOutput(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if blobID == nil {
		writeError(w, schederrors.Unavailable("job output not yet produced"))
		return
	}
	s.serveBlob(w, r, *blobID)
}

// handleTaskOutput serves the output of the task addressed by its
// allocation id, or 503 if it has no output yet.
func (s *Server) handleTaskOutput(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpRead, nil)
	defer cancel()
	r = r.WithContext(ctx)

	jobID, taskIdx, err := s.authorizedTask(r)
	if err != nil {
		writeError(w, err)
		return
	}

	blobID, err := s.jobs.GetAllocatedTaskOutput(jobID, taskIdx)
	if err != nil {
		writeError(w, err)
		return
	}
	if blobID == nil {
		writeError(w, schederrors.Unavailable("task output not yet produced"))
		return
	}
	s.serveBlob(w, r, *blobID)
}

// handleSubmitTaskOutput is the supplemented upload counterpart to
// handleTaskOutput: a worker POSTs its result once it finishes the task
// addressed by the allocation id it was handed by allocate_task.
func (s *Server) handleSubmitTaskOutput(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWrite, nil)
	defer cancel()
	r = r.WithContext(ctx)

	jobID, taskIdx, err := s.authorizedTask(r)
	if err != nil {
		writeError(w, err)
		return
	}

	buf := s.bufferPool.GetBuffer("task-output")
	defer s.bufferPool.Release("task-output")
	if _, err := io.Copy(buf, r.Body); err != nil {
		writeError(w, schederrors.Internal("staging task output", err))
		return
	}

	blobID, err := s.jobs.SubmitTaskOutput(jobID, taskIdx, buf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, blobID.String())
}

// handleTaskInput streams one of a running task's resolved inputs, located
// by its position within the task's inputs slice.
func (s *Server) handleTaskInput(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpRead, nil)
	defer cancel()
	r = r.WithContext(ctx)

	jobID, taskIdx, err := s.authorizedTask(r)
	if err != nil {
		writeError(w, err)
		return
	}
	idx, err := pathInt(r, "idx")
	if err != nil {
		writeError(w, err)
		return
	}

	blobID, err := s.jobs.GetResolvedInput(jobID, taskIdx, idx)
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveBlob(w, r, blobID)
}

// handleAllocateTask hands a worker the next eligible task, authorizing its
// token for the job so it can subsequently fetch inputs and submit output
// (see SPEC_FULL.md's auth-grant-timing decision).
func (s *Server) handleAllocateTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWrite, nil)
	defer cancel()
	r = r.WithContext(ctx)

	instance, err := s.jobs.AllocateTask()
	if err != nil {
		writeError(w, err)
		return
	}

	token, _ := middleware.TokenFromContext(r.Context())
	s.authenticator.Grant(token, instance.JobID)

	writeJSON(w, http.StatusOK, toInstanceWire(instance))
}

// handleCancelTask is the supplemented counterpart to allocate_task: returns
// the task addressed by allocation id to Pending.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWrite, nil)
	defer cancel()
	r = r.WithContext(ctx)

	jobID, taskIdx, err := s.authorizedTask(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.jobs.CancelTask(jobID, taskIdx); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteJob is the supplemented HTTP surface for the Job Manager's
// delete_job passthrough.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := schedcontext.WithTimeout(r.Context(), schedcontext.OpWrite, nil)
	defer cancel()
	r = r.WithContext(ctx)

	jobID, err := s.authorizedJobID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.jobs.DeleteJob(jobID); err != nil {
		writeError(w, err)
		return
	}
	s.authenticator.Revoke(mustToken(r), jobID)
	w.WriteHeader(http.StatusNoContent)
}

// serveBlob opens blobID and streams it via http.ServeContent, which
// handles HTTP Range requests for us.
func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, blobID uuid.UUID) {
	rs, err := s.jobs.OutputReader(blobID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rs.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, blobID.String(), modTimeZero, rs)
}

// authorizedJobID extracts {job_id}, validates it parses as a uuid, and
// checks the caller's token is authorized for it.
func (s *Server) authorizedJobID(r *http.Request) (uuid.UUID, error) {
	jobID, err := pathUUID(r, "job_id")
	if err != nil {
		return uuid.Nil, err
	}
	if !s.authenticator.Check(mustToken(r), jobID) {
		return uuid.Nil, schederrors.Unauthorized("token not authorized for this job")
	}
	return jobID, nil
}

// authorizedTask extracts {job_id} and {task_id} (an allocation id),
// checks authorization, and resolves the allocation to its task index.
func (s *Server) authorizedTask(r *http.Request) (uuid.UUID, int, error) {
	jobID, err := s.authorizedJobID(r)
	if err != nil {
		return uuid.Nil, 0, err
	}
	allocID, err := pathUUID(r, "task_id")
	if err != nil {
		return uuid.Nil, 0, err
	}
	taskIdx, err := s.jobs.ResolveAllocation(jobID, allocID)
	if err != nil {
		return uuid.Nil, 0, err
	}
	return jobID, taskIdx, nil
}

func mustToken(r *http.Request) string {
	token, _ := middleware.TokenFromContext(r.Context())
	return token
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, schederrors.BadRequest("malformed " + name)
	}
	return id, nil
}

// pathInt parses a non-negative integer path variable.
func pathInt(r *http.Request, name string) (int, error) {
	raw := mux.Vars(r)[name]
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, schederrors.BadRequest("malformed " + name)
	}
	return n, nil
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
