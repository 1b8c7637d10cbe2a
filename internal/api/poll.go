package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/folia"
)

type PollGetResponse struct {
	// Elements holds the current state of elements changed by other
	// sessions.
	Elements []json.RawMessage `json:"elements"`

	// Deleted holds the IDs of elements removed by other sessions.
	Deleted []string `json:"deleted"`
}

type SessionGetResponse struct {
	SessionID string `json:"sessionid"`
}

// PollHandler returns the elements other sessions changed since the
// session last polled.
func PollHandler(srv server.Server) http.Handler {
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

		resp := PollGetResponse{
			Elements: []json.RawMessage{},
			Deleted:  []string{},
		}
		ids := srv.Store.Poll(key, r.PathValue("sessionid"))
		if len(ids) == 0 {
			respondJSON(w, srv, http.StatusOK, resp)
			return
		}

		err = srv.Store.View(key, func(doc *folia.Document) error {
			for _, id := range ids {
				el, err := doc.Element(id)
				if err != nil {
					resp.Deleted = append(resp.Deleted, id)
					continue
				}
				data, err := json.Marshal(el)
				if err != nil {
					return err
				}
				resp.Elements = append(resp.Elements, data)
			}
			return nil
		})
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			respondError(w, srv, err, logArgs)
			return
		}
		respondJSON(w, srv, http.StatusOK, resp)
	})
}

// SessionHandler issues a new session ID.
func SessionHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			methodNotAllowed(w)
			return
		}
		respondJSON(w, srv, http.StatusOK, SessionGetResponse{SessionID: docid.NewSessionID()})
	})
}
