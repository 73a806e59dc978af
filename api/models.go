// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package api holds the wire types exchanged with workers and clients: the
// Task Instance / Recipe JSON shape. Conversion to and from the internal
// model package is explicit and hand-written, so the scheduler core stays
// independent of any code generator and the recipe union stays opaque to
// callers.
package api

import (
	"github.com/kristinsson/tcsched/internal/model"
)

// AnalysisRecipe is the wire shape of model.AnalysisRecipe.
type AnalysisRecipe struct {
	Duration *float64 `json:"duration,omitempty"`
}

// TranscodeOptions is the wire shape of model.TranscodeRecipe's payload.
type TranscodeOptions struct {
	Codec  string   `json:"codec"`
	Params []string `json:"params,omitempty"`
}

// TranscodeRecipe wraps TranscodeOptions under the "options" key to match
// the documented wire shape: transcode: { options: { codec, params } }.
type TranscodeRecipe struct {
	Options TranscodeOptions `json:"options"`
}

// Recipe is the tagged union on the wire: exactly one of Analysis,
// Transcode, Merge is populated.
type Recipe struct {
	Analysis  *AnalysisRecipe  `json:"analysis,omitempty"`
	Transcode *TranscodeRecipe `json:"transcode,omitempty"`
	Merge     []int            `json:"merge,omitempty"`
}

// InputDescriptor is the wire shape of model.Input.
type InputDescriptor struct {
	Input int      `json:"input"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// TaskInstance is the JSON body returned by GET /api/allocate_task.
type TaskInstance struct {
	JobID  string            `json:"job_id"`
	TaskID string            `json:"task_id"`
	Input  []InputDescriptor `json:"input"`
	Recipe Recipe            `json:"recipe"`
}

// RecipeFromModel converts the internal tagged union to its wire shape.
func RecipeFromModel(r model.Recipe) Recipe {
	var out Recipe
	switch r.Kind {
	case model.RecipeAnalysis:
		out.Analysis = &AnalysisRecipe{Duration: r.Analysis.Duration}
	case model.RecipeTranscode:
		out.Transcode = &TranscodeRecipe{Options: TranscodeOptions{
			Codec:  r.Transcode.Codec,
			Params: r.Transcode.Params,
		}}
	case model.RecipeMerge:
		out.Merge = r.Merge.Parts
	}
	return out
}

// RecipeToModel converts a wire Recipe back to the internal tagged union.
// Exactly one variant must be populated; any other shape is a client error.
func RecipeToModel(r Recipe) (model.Recipe, bool) {
	count := 0
	if r.Analysis != nil {
		count++
	}
	if r.Transcode != nil {
		count++
	}
	if r.Merge != nil {
		count++
	}
	if count != 1 {
		return model.Recipe{}, false
	}

	switch {
	case r.Analysis != nil:
		return model.Recipe{Kind: model.RecipeAnalysis, Analysis: &model.AnalysisRecipe{Duration: r.Analysis.Duration}}, true
	case r.Transcode != nil:
		return model.Recipe{Kind: model.RecipeTranscode, Transcode: &model.TranscodeRecipe{
			Codec:  r.Transcode.Options.Codec,
			Params: r.Transcode.Options.Params,
		}}, true
	default:
		return model.Recipe{Kind: model.RecipeMerge, Merge: &model.MergeRecipe{Parts: r.Merge}}, true
	}
}

// InstanceFromModel converts a hydrated allocation into its wire shape.
func InstanceFromModel(inst *model.Instance) TaskInstance {
	inputs := make([]InputDescriptor, len(inst.Inputs))
	for i, in := range inst.Inputs {
		inputs[i] = InputDescriptor{Input: in.Index, Start: in.Start, End: in.End}
	}
	return TaskInstance{
		JobID:  inst.JobID.String(),
		TaskID: inst.TaskID.String(),
		Input:  inputs,
		Recipe: RecipeFromModel(inst.Recipe),
	}
}
