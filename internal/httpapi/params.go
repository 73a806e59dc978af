// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	schederrors "github.com/kristinsson/tcsched/pkg/errors"
)

// parseVideoParams decodes the repeatable, comma-separable `video_param`
// header into a flat slice. "Repeatable" means the header may appear on the
// request more than once; "comma-separable" means each occurrence may
// itself carry a comma-joined list — the same "simple"-style array encoding
// OpenAPI uses for header parameters, so the runtime package's styled-param
// decoder does the per-occurrence split.
func parseVideoParams(r *http.Request) ([]string, error) {
	var params []string
	for _, raw := range r.Header.Values("video_param") {
		var parsed []string
		if err := runtime.BindStyledParameterWithLocation("simple", false, "video_param", runtime.ParamLocationHeader, raw, &parsed); err != nil {
			return nil, schederrors.BadRequest("malformed video_param header: " + err.Error())
		}
		params = append(params, parsed...)
	}
	return params, nil
}

func requiredHeader(r *http.Request, name string) (string, error) {
	v := r.Header.Get(name)
	if v == "" {
		return "", schederrors.BadRequest(name + " header is required")
	}
	return v, nil
}
