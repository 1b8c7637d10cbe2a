package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/folia"
	"github.com/hashicorp-forge/docserve/pkg/fql"
	"github.com/hashicorp-forge/docserve/pkg/search"
)

// errBadRequest marks client errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// statusForError maps an error to an HTTP status code.
func statusForError(err error) int {
	var (
		syntaxErr *fql.SyntaxError
		fieldErr  *folia.FieldError
	)

	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, folia.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, docstore.ErrExists):
		return http.StatusConflict
	case errors.Is(err, docstore.ErrLockTimeout), errors.Is(err, docstore.ErrQueueFull),
		errors.Is(err, docstore.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errBadRequest),
		errors.Is(err, docid.ErrInvalidKey),
		errors.Is(err, folia.ErrInvalidDocument),
		errors.Is(err, folia.ErrNoDocumentID),
		errors.Is(err, folia.ErrDuplicateID),
		errors.Is(err, folia.ErrInvalidName),
		errors.Is(err, search.ErrEmptyQuery),
		errors.As(err, &syntaxErr),
		errors.As(err, &fieldErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes it with the mapped status code.
func respondError(w http.ResponseWriter, srv server.Server, err error, logArgs []any) {
	code := statusForError(err)
	args := append([]any{"error", err, "status", code}, logArgs...)
	if code >= http.StatusInternalServerError {
		srv.Logger.Error("error handling request", args...)
	} else {
		srv.Logger.Warn("request failed", args...)
	}
	http.Error(w, err.Error(), code)
}

// respondJSON writes v as a JSON response.
func respondJSON(w http.ResponseWriter, srv server.Server, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.Logger.Error("error encoding response", "error", err)
	}
}

// requestLogArgs returns the common log arguments for r.
func requestLogArgs(r *http.Request) []any {
	return []any{
		"method", r.Method,
		"path", r.URL.Path,
	}
}

// keyFromPath returns the document key from the {namespace} and {docid}
// path values.
func keyFromPath(r *http.Request) (docid.Key, error) {
	return docid.NewKey(r.PathValue("namespace"), r.PathValue("docid"))
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
