// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"

	schederrors "github.com/kristinsson/tcsched/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a scheduler error to the single HTTP status its code
// owns and writes the SchedulerError body verbatim; errors that did not
// originate from pkg/errors are wrapped to CodeInternal first so nothing
// leaks as anything but 500.
func writeError(w http.ResponseWriter, err error) {
	se := schederrors.Wrap(err)
	writeJSON(w, schederrors.HTTPStatus(se.Code), se)
}
