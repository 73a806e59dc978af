// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package listutil provides pagination helpers for list endpoints
// (GET /api/job): offset/limit slicing and validation shared by any
// endpoint that returns a page of a larger collection.
package listutil

import (
	schederrors "github.com/kristinsson/tcsched/pkg/errors"
)

// Options holds offset/limit pagination parameters for a list endpoint.
type Options struct {
	Limit  int
	Offset int
}

// Validate reports whether opts's fields are usable pagination parameters.
func Validate(opts Options) error {
	if opts.Limit < 0 {
		return schederrors.BadRequest("limit must be non-negative")
	}
	if opts.Offset < 0 {
		return schederrors.BadRequest("offset must be non-negative")
	}
	return nil
}

// Paginate returns the page of items described by opts, plus the total
// count before pagination was applied. An Offset past the end of items
// yields an empty (non-nil) page rather than an error.
func Paginate[T any](items []T, opts Options) ([]T, int) {
	total := len(items)

	if opts.Offset > 0 {
		if opts.Offset >= total {
			return []T{}, total
		}
		items = items[opts.Offset:]
	}

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	return items, total
}
