package api

import (
	"net/http"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/database"
	"github.com/hashicorp-forge/docserve/internal/version"
)

type HealthGetResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Resident     int    `json:"resident"`
	PendingSaves int    `json:"pendingSaves"`

	// Database is omitted when the server runs without a database.
	Database *database.PoolStats `json:"database,omitempty"`
}

// HealthHandler reports liveness and store occupancy.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			methodNotAllowed(w)
			return
		}
		resp := HealthGetResponse{
			Status:   "ok",
			Version:  version.String(),
			Resident: len(srv.Store.Resident()),
		}
		if srv.SaveQueue != nil {
			resp.PendingSaves = srv.SaveQueue.Pending()
		}
		if srv.DB != nil {
			stats, err := database.GetPoolStats(srv.DB)
			if err != nil {
				srv.Logger.Warn("error reading database pool stats", "error", err)
			} else {
				resp.Database = stats
			}
		}
		respondJSON(w, srv, http.StatusOK, resp)
	})
}
