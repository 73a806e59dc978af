// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package model holds the in-memory domain types shared by the job database,
// the job manager and the blob store indirection: jobs, tasks, recipes and
// task instances.
package model

import (
	"time"

	"github.com/google/uuid"
)

// RecipeKind tags which variant of Recipe is populated.
type RecipeKind int

const (
	RecipeAnalysis RecipeKind = iota
	RecipeTranscode
	RecipeMerge
)

// AnalysisRecipe probes the source for metadata; Duration is optional.
type AnalysisRecipe struct {
	Duration *float64
}

// TranscodeRecipe re-encodes a source with the given codec and parameters.
type TranscodeRecipe struct {
	Codec  string
	Params []string
}

// MergeRecipe concatenates the outputs of prior tasks within the same job.
type MergeRecipe struct {
	Parts []int
}

// Recipe is a tagged union: exactly one of the Analysis/Transcode/Merge
// fields is populated, selected by Kind.
type Recipe struct {
	Kind      RecipeKind
	Analysis  *AnalysisRecipe
	Transcode *TranscodeRecipe
	Merge     *MergeRecipe
}

// Input describes where a task reads one of its byte-stream inputs from.
// Index 0 conventionally refers to the job's source blob; Index k>0 refers
// to the output of the task at index k within the same job.
type Input struct {
	Index int
	Start *float64
	End   *float64
}

// Allocation records an in-flight hand-off of a task to a worker.
type Allocation struct {
	ID          uuid.UUID
	AllocatedAt time.Time
}

// Task is a unit of work within a job.
type Task struct {
	Index        int
	Recipe       Recipe
	Inputs       []Input
	Dependencies map[int]struct{}
	Allocation   *Allocation
	OutputBlobID *uuid.UUID
}

// State is the derived lifecycle state of a task (see spec state machine).
type State int

const (
	StatePending State = iota
	StateAllocated
	StateHasOutput
	StateFinished
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAllocated:
		return "allocated"
	case StateHasOutput:
		return "has_output"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// DerivedState computes a task's lifecycle state from its allocation and
// output fields. finished reports whether the task has already been
// fulfilled (its dependency-unblocking side effect has fired); the job
// database is the only component that knows this, since it keeps that flag
// in its own per-task record rather than on Task — callers pass it through
// explicitly.
func DerivedState(t *Task, finished bool) State {
	switch {
	case finished:
		return StateFinished
	case t.OutputBlobID != nil:
		return StateHasOutput
	case t.Allocation != nil:
		return StateAllocated
	default:
		return StatePending
	}
}

// Options are the recognized job-creation encoding options.
type Options struct {
	VideoCodec  string
	VideoParams []string
	Audio       *AudioOptions
}

// AudioOptions mirrors Options' VideoCodec/VideoParams fields for the
// optional audio track.
type AudioOptions struct {
	Codec  string
	Params []string
}

// Job is a client-submitted transcoding request.
type Job struct {
	ID          uuid.UUID
	InputBlobID uuid.UUID
	Options     Options
	CreatedAt   time.Time
	Tasks       []Task
}

// Instance is the opaque hand-off payload produced by allocation: enough
// for a worker to execute the task without further server round-trips
// except for the eventual output upload.
type Instance struct {
	JobID      uuid.UUID
	TaskID     uuid.UUID
	TaskIndex  int
	Inputs     []ResolvedInput
	Recipe     Recipe
}

// ResolvedInput is an Input descriptor with its index resolved to a
// concrete blob id.
type ResolvedInput struct {
	Input
	BlobID uuid.UUID
}
