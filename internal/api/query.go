package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/folia"
	"github.com/hashicorp-forge/docserve/pkg/fql"
	"github.com/hashicorp-forge/docserve/pkg/metrics"
)

// maxQuerySize is the largest accepted query request body.
const maxQuerySize = 1 << 20

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionid"`
	DocID     string `json:"docid"`
	Format    string `json:"format"`
}

// Validate implements validation.Validatable.
func (q QueryRequest) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Query, validation.Required),
		validation.Field(&q.Format, validation.In(fql.FormatXML, fql.FormatJSON, fql.FormatText)),
	)
}

var contentTypes = map[string]string{
	fql.FormatXML:  "application/xml; charset=utf-8",
	fql.FormatJSON: "application/json",
	fql.FormatText: "text/plain; charset=utf-8",
}

// decodeQueryRequest reads a query from a JSON body or form values.
func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (*QueryRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQuerySize)

	req := &QueryRequest{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return nil, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		req.Query = r.Form.Get("query")
		req.SessionID = r.Form.Get("sessionid")
		req.DocID = r.Form.Get("docid")
		req.Format = r.Form.Get("format")
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// QueryHandler executes one or more queries, one per line, against
// documents of a namespace. A USE clause selects the document for its
// query and the ones that follow; otherwise the docid parameter is used.
// Queries that change a document schedule a background save.
func QueryHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logArgs := requestLogArgs(r)
		if r.Method != "POST" {
			methodNotAllowed(w)
			return
		}

		req, err := decodeQueryRequest(w, r)
		if err != nil {
			respondError(w, srv, fmt.Errorf("%w: %v", errBadRequest, err), logArgs)
			return
		}
		logArgs = append(logArgs, "session", req.SessionID)

		queries, err := fql.ParseQueries(req.Query)
		if err != nil {
			respondError(w, srv, err, logArgs)
			return
		}

		namespace := r.PathValue("namespace")
		var current docid.Key
		if req.DocID != "" {
			if current, err = docid.NewKey(namespace, req.DocID); err != nil {
				respondError(w, srv, err, logArgs)
				return
			}
		}

		format := req.Format
		if format == "" {
			format = queries[0].Format
		}

		outputs := make([][]byte, 0, len(queries))
		for _, q := range queries {
			if q.DocID != "" {
				ns := namespace
				if q.Namespace != "" {
					ns = q.Namespace
				}
				if current, err = docid.NewKey(ns, q.DocID); err != nil {
					respondError(w, srv, err, logArgs)
					return
				}
			}
			if current.IsZero() {
				respondError(w, srv, fmt.Errorf("%w: no document selected for query %q", errBadRequest, q.Raw), logArgs)
				return
			}

			out, modified, err := runQuery(srv, r, current, req.SessionID, q, format)
			metrics.QueriesTotal.WithLabelValues(string(q.Action), metrics.ResultLabel(err)).Inc()
			if err != nil {
				respondError(w, srv, err, append(logArgs, "key", current.String(), "query", q.Raw))
				return
			}
			outputs = append(outputs, out)

			if modified {
				if err := srv.SaveQueue.Enqueue(current); err != nil {
					srv.Logger.Warn("error scheduling save",
						append([]any{"error", err, "key", current.String()}, logArgs...)...)
				}
			}
		}

		w.Header().Set("Content-Type", contentTypes[format])
		_, _ = w.Write(joinOutputs(format, outputs))
	})
}

func runQuery(srv server.Server, r *http.Request, key docid.Key, session string, q *fql.Query, format string) ([]byte, bool, error) {
	var (
		out      []byte
		modified bool
	)
	err := srv.Store.Use(r.Context(), key, session, func(doc *folia.Document) (*docstore.Edit, error) {
		res, err := q.Execute(doc)
		if err != nil {
			return nil, err
		}
		if out, err = res.Format(format); err != nil {
			return nil, err
		}
		if !res.Modified() {
			return nil, nil
		}

		modified = true
		changed := make([]string, 0, len(res.Changed)+len(res.Deleted))
		changed = append(changed, res.Changed...)
		changed = append(changed, res.Deleted...)
		return &docstore.Edit{Changed: changed, Message: q.Raw}, nil
	})
	return out, modified, err
}

// joinOutputs combines the results of several queries. JSON results are
// wrapped in an array.
func joinOutputs(format string, outputs [][]byte) []byte {
	if len(outputs) == 1 {
		return outputs[0]
	}
	if format != fql.FormatJSON {
		return bytes.Join(outputs, nil)
	}

	var b bytes.Buffer
	b.WriteByte('[')
	b.Write(bytes.Join(outputs, []byte(",")))
	b.WriteByte(']')
	return b.Bytes()
}
