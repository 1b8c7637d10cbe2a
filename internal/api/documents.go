package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/folia"
)

// maxUploadSize is the largest accepted document upload.
const maxUploadSize = 64 << 20

type DocumentResponse struct {
	Key      docid.Key `json:"key"`
	Resident bool      `json:"resident"`
	Modified bool      `json:"modified"`
}

type HistoryGetResponse struct {
	Key       docid.Key `json:"key"`
	Revisions any       `json:"revisions"`
}

func documentResponse(srv server.Server, key docid.Key) DocumentResponse {
	return DocumentResponse{
		Key:      key,
		Resident: srv.Store.Contains(key),
		Modified: srv.Store.IsModified(key),
	}
}

// GetDocHandler returns the full XML of a document, loading it if needed.
func GetDocHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "GET" {
			methodNotAllowed(w)
			return
		}

		key, err := keyFromPath(r)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}

		var body string
		err = srv.Store.Use(r.Context(), key, r.URL.Query().Get("sessionid"),
			func(doc *folia.Document) (*docstore.Edit, error) {
				body = doc.String()
				return nil, nil
			})
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}

		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = io.WriteString(w, body)
	})
}

// UploadHandler stores an XML document sent as the request body. The
// document ID is taken from the root xml:id.
func UploadHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "POST" {
			methodNotAllowed(w)
			return
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize+1))
		if err != nil {
			respondError(w, srv, fmt.Errorf("%w: error reading body: %v", errBadRequest, err), logArgs)
			return
		}
		if len(data) > maxUploadSize {
			http.Error(w, "Document too large", http.StatusRequestEntityTooLarge)
			return
		}

		key, err := srv.Store.Add(r.Context(), r.PathValue("namespace"), data)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}

		srv.Logger.Info("uploaded document", append([]any{"key", key.String()}, logArgs...)...)
		respondJSON(w, srv, http.StatusCreated, documentResponse(srv, key))
	})
}

// CreateHandler stores a new empty document.
func CreateHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "POST" {
			methodNotAllowed(w)
			return
		}

		key, err := keyFromPath(r)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}
		if err := srv.Store.Create(r.Context(), key); err != nil {
			respondError(w, srv, err, logArgs)
			return
		}
		respondJSON(w, srv, http.StatusCreated, documentResponse(srv, key))
	})
}

// SaveHandler saves a loaded document immediately.
func SaveHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "POST" {
			methodNotAllowed(w)
			return
		}

		key, err := keyFromPath(r)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}
		if err := srv.Store.Save(r.Context(), key); err != nil {
			respondError(w, srv, err, logArgs)
			return
		}
		respondJSON(w, srv, http.StatusOK, documentResponse(srv, key))
	})
}

// UnloadHandler evicts a document from memory. It is saved first unless
// the save query parameter is false.
func UnloadHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "POST" {
			methodNotAllowed(w)
			return
		}

		key, err := keyFromPath(r)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}

		save := true
		if v := r.URL.Query().Get("save"); v != "" {
			save, err = strconv.ParseBool(v)
			if err != nil {
				respondError(w, srv, fmt.Errorf("%w: invalid save parameter %q", errBadRequest, v), logArgs)
				return
			}
		}

		if err := srv.Store.Unload(r.Context(), key, save); err != nil {
			respondError(w, srv, err, logArgs)
			return
		}
		respondJSON(w, srv, http.StatusOK, documentResponse(srv, key))
	})
}

// HistoryHandler lists the saved revisions of a document, from the
// database when one is configured and from git otherwise.
func HistoryHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "GET" {
			methodNotAllowed(w)
			return
		}

		key, err := keyFromPath(r)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}

		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err = strconv.Atoi(v)
			if err != nil || limit < 1 {
				respondError(w, srv, fmt.Errorf("%w: invalid limit %q", errBadRequest, v), logArgs)
				return
			}
		}

		resp := HistoryGetResponse{Key: key, Revisions: []any{}}
		switch {
		case srv.Ledger != nil:
			revs, err := srv.Ledger.History(r.Context(), key, limit)
			if err != nil {
				respondError(w, srv, err, logArgs)
				return
			}
			if len(revs) > 0 {
				resp.Revisions = revs
			}
		case srv.Git != nil:
			revs, err := srv.Git.Log(r.Context(), key.Path(srv.Store.Workdir()), limit)
			if err != nil {
				srv.Logger.Warn("error reading git history", append([]any{"error", err}, logArgs...)...)
			} else if len(revs) > 0 {
				resp.Revisions = revs
			}
		}
		respondJSON(w, srv, http.StatusOK, resp)
	})
}
