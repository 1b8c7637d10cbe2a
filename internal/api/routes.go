package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashicorp-forge/docserve/internal/server"
)

// NewMux registers all handlers.
func NewMux(srv server.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/namespaces", NamespacesHandler(srv))
	mux.Handle("/namespaces/{namespace}", NamespacesHandler(srv))
	mux.Handle("/index/{namespace}", IndexHandler(srv))
	mux.Handle("/query/{namespace}", QueryHandler(srv))
	mux.Handle("/poll/{namespace}/{docid}/{sessionid}", PollHandler(srv))
	mux.Handle("/getdoc/{namespace}/{docid}", GetDocHandler(srv))
	mux.Handle("/upload/{namespace}", UploadHandler(srv))
	mux.Handle("/create/{namespace}/{docid}", CreateHandler(srv))
	mux.Handle("/save/{namespace}/{docid}", SaveHandler(srv))
	mux.Handle("/unload/{namespace}/{docid}", UnloadHandler(srv))
	mux.Handle("/history/{namespace}/{docid}", HistoryHandler(srv))
	mux.Handle("/search", SearchHandler(srv))
	mux.Handle("/search/{namespace}", SearchHandler(srv))
	mux.Handle("/session", SessionHandler(srv))
	mux.Handle("/health", HealthHandler(srv))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
