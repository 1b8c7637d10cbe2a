package api

import (
	"net/http"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
)

type NamespacesGetResponse struct {
	Namespaces []string `json:"namespaces"`
}

type NamespacesPostResponse struct {
	Namespace string `json:"namespace"`
}

type IndexGetResponse struct {
	Namespace string                  `json:"namespace"`
	Documents []docstore.DocumentInfo `json:"documents"`
}

// NamespacesHandler lists namespaces (GET /namespaces) and creates them
// (POST /namespaces/{namespace}).
func NamespacesHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)

		switch r.Method {
		case "GET":
			namespaces, err := srv.Store.Namespaces()
			if err != nil {
				respondError(w, srv, err, logArgs)
				return
			}
			respondJSON(w, srv, http.StatusOK, NamespacesGetResponse{Namespaces: namespaces})

		case "POST":
			ns, err := srv.Store.CreateNamespace(r.PathValue("namespace"))
			if err != nil {
				respondError(w, srv, err, logArgs)
				return
			}
			respondJSON(w, srv, http.StatusCreated, NamespacesPostResponse{Namespace: ns})

		default:
			methodNotAllowed(w)
		}
	})
}

// IndexHandler lists the documents of a namespace.
func IndexHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			methodNotAllowed(w)
			return
		}

		docs, err := srv.Store.Documents(r.PathValue("namespace"))
		if err != nil {
			respondError(w, srv, err, requestLogArgs(r))
			return
		}
		respondJSON(w, srv, http.StatusOK, IndexGetResponse{
			Namespace: r.PathValue("namespace"),
			Documents: docs,
		})
	})
}
