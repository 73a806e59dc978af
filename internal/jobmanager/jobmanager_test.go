// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobmanager

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristinsson/tcsched/internal/blob"
	"github.com/kristinsson/tcsched/internal/jobdb"
	"github.com/kristinsson/tcsched/internal/model"
	"github.com/kristinsson/tcsched/pkg/logging"
)

func newManager() *Manager {
	return New(jobdb.New(), blob.NewMemoryStore(), logging.NoOpLogger{})
}

// TestResolveInputNonzeroIndexIsNotOffByOne guards against mapping
// Input{Index: k} to task k-1 instead of task k.
func TestResolveInputNonzeroIndexIsNotOffByOne(t *testing.T) {
	m := newManager()

	job := model.Job{
		Tasks: []model.Task{
			{},
			{},
		},
	}
	want, err := m.store.BodyToNewFile(strings.NewReader("task one's output"))
	require.NoError(t, err)
	job.Tasks[1].OutputBlobID = &want

	got, err := m.resolveInput(job, model.Input{Index: 1})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestEndToEndAnalysisTranscodeMerge drives the default task sequence
// through allocation and submission for all three tasks, then checks that
// GetJobOutput returns the Merge task's output and that the Merge task's
// Instance correctly resolved its input to the Transcode task's output.
func TestEndToEndAnalysisTranscodeMerge(t *testing.T) {
	m := newManager()

	jobID, err := m.CreateJob(strings.NewReader("source bytes"), model.Options{VideoCodec: "libx264"})
	require.NoError(t, err)

	// Analysis (task 0): no real dependency other than the job source.
	analysis, err := m.AllocateTask()
	require.NoError(t, err)
	assert.Equal(t, 0, analysis.TaskIndex)
	analysisOutput, err := m.SubmitTaskOutput(jobID, analysis.TaskIndex, strings.NewReader("analysis output"))
	require.NoError(t, err)

	// Transcode (task 1): depends on Analysis.
	transcode, err := m.AllocateTask()
	require.NoError(t, err)
	assert.Equal(t, 1, transcode.TaskIndex)
	transcodeOutput, err := m.SubmitTaskOutput(jobID, transcode.TaskIndex, strings.NewReader("transcoded bytes"))
	require.NoError(t, err)

	// Merge (task 2): depends on Transcode, and its single Input must
	// resolve to the Transcode task's output, not Analysis's.
	merge, err := m.AllocateTask()
	require.NoError(t, err)
	assert.Equal(t, 2, merge.TaskIndex)
	require.Len(t, merge.Inputs, 1)
	assert.Equal(t, 1, merge.Inputs[0].Index)
	assert.Equal(t, transcodeOutput, merge.Inputs[0].BlobID)
	assert.NotEqual(t, analysisOutput, merge.Inputs[0].BlobID)

	mergeOutput, err := m.SubmitTaskOutput(jobID, merge.TaskIndex, strings.NewReader("merged output"))
	require.NoError(t, err)

	output, err := m.GetJobOutput(jobID)
	require.NoError(t, err)
	require.NotNil(t, output)
	assert.Equal(t, mergeOutput, *output)
}
