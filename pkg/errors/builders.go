// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
)

// As reports whether err (or any error it wraps) is a *SchedulerError, and
// if so returns it.
func As(err error) (*SchedulerError, bool) {
	var se *SchedulerError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf extracts the taxonomy code from err, defaulting to CodeInternal for
// errors that did not originate from this package — the HTTP layer should
// never leak an unmapped error as anything but 500.
func CodeOf(err error) Code {
	if se, ok := As(err); ok {
		return se.Code
	}
	return CodeInternal
}

// Wrap converts a generic error into a CodeInternal SchedulerError, unless
// it already carries a taxonomy code.
func Wrap(err error) *SchedulerError {
	if err == nil {
		return nil
	}
	if se, ok := As(err); ok {
		return se
	}
	return Internal(err.Error(), err)
}

func IsNotFound(err error) bool     { return CodeOf(err) == CodeNotFound }
func IsUnauthorized(err error) bool { return CodeOf(err) == CodeUnauthorized }
func IsBadRequest(err error) bool   { return CodeOf(err) == CodeBadRequest }
func IsConflict(err error) bool {
	return CodeOf(err) == CodeConflict || CodeOf(err) == CodeAlreadySet
}
func IsUnavailable(err error) bool { return CodeOf(err) == CodeUnavailable }
