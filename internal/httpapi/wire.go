// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"github.com/kristinsson/tcsched/api"
	"github.com/kristinsson/tcsched/internal/model"
)

// toInstanceWire renders inst in the wire shape workers receive from
// allocate_task.
//
// The wire "input" field carries the descriptor's original index (0 = job
// source, k>0 = dependency task index), not the resolved blob id: a worker
// fetches the actual bytes via GET .../input/{idx}, where idx is this
// input's position within the slice, and the server resolves that position
// to inst.Inputs[idx].BlobID internally.
func toInstanceWire(inst *model.Instance) api.TaskInstance {
	return api.InstanceFromModel(inst)
}
