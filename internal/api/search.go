package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/search"
)

type SearchGetResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
}

// SearchHandler runs a full-text search over sentences, optionally
// restricted to a namespace.
func SearchHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "GET" {
			methodNotAllowed(w)
			return
		}
		if srv.Search == nil {
			http.Error(w, "Search is not enabled", http.StatusNotImplemented)
			return
		}

		q := r.URL.Query().Get("q")
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				respondError(w, srv, fmt.Errorf("%w: invalid limit %q", errBadRequest, v), logArgs)
				return
			}
			limit = n
		}

		hits, err := srv.Search.Search(r.PathValue("namespace"), q, limit)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}
		respondJSON(w, srv, http.StatusOK, SearchGetResponse{Query: q, Hits: hits})
	})
}
