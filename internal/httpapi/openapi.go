// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kristinsson/tcsched/pkg/logging"
)

//go:embed openapi.yaml
var openAPISpec []byte

// openAPIDoc wraps the validated document served at GET /api/openapi.json.
// A load/validate failure is logged and the server falls back to serving
// nothing at that route rather than failing startup — the document
// describes the API, it is not load-bearing for serving it.
type openAPIDoc struct {
	doc *openapi3.T
}

func loadOpenAPIDoc(logger logging.Logger) *openAPIDoc {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		logger.Error("failed to parse embedded openapi document", "error", err)
		return &openAPIDoc{}
	}
	if err := doc.Validate(context.Background()); err != nil {
		logger.Error("embedded openapi document failed validation", "error", err)
		return &openAPIDoc{}
	}
	return &openAPIDoc{doc: doc}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if s.openapi == nil || s.openapi.doc == nil {
		http.Error(w, "openapi document unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.openapi.doc)
}
