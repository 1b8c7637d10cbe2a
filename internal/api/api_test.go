package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hashicorp-forge/docserve/internal/server"
	"github.com/hashicorp-forge/docserve/pkg/docid"
	"github.com/hashicorp-forge/docserve/pkg/docstore"
	"github.com/hashicorp-forge/docserve/pkg/folia"
	"github.com/hashicorp-forge/docserve/pkg/fql"
	"github.com/hashicorp-forge/docserve/pkg/models"
	"github.com/hashicorp-forge/docserve/pkg/search"
)

const workdir = "/work"

var exampleKey = docid.MustNewKey("ns", "example")

type testEnv struct {
	srv server.Server
	mux *http.ServeMux
	fs  afero.Fs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	data, err := os.ReadFile("testdata/example.folia.xml")
	require.NoError(t, err)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, exampleKey.Path(workdir), data, 0o644))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))
	ledger := &models.RevisionLedger{DB: db}

	idx, err := search.New(nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	log := hclog.NewNullLogger()
	store := docstore.New(docstore.Options{
		Fs:          fs,
		Workdir:     workdir,
		LockTimeout: 50 * time.Millisecond,
		Revisions:   ledger,
		Indexer:     idx,
		Logger:      log,
	})

	srv := server.Server{
		Store:     store,
		SaveQueue: docstore.NewSaveQueue(store, log, nil),
		DB:        db,
		Ledger:    ledger,
		Search:    idx,
		Logger:    log,
	}
	return &testEnv{srv: srv, mux: NewMux(srv), fs: fs}
}

func (e *testEnv) do(t *testing.T, method, target string, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) query(t *testing.T, session, docID, query, format string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	form.Set("query", query)
	if session != "" {
		form.Set("sessionid", session)
	}
	if docID != "" {
		form.Set("docid", docID)
	}
	if format != "" {
		form.Set("format", format)
	}
	return e.do(t, "POST", "/query/ns", form.Encode(), "application/x-www-form-urlencoded")
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestNamespaces(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/namespaces", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list NamespacesGetResponse
	decode(t, rr, &list)
	assert.Equal(t, []string{"ns"}, list.Namespaces)

	rr = env.do(t, "POST", "/namespaces/corpus", "", "")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = env.do(t, "GET", "/namespaces", "", "")
	decode(t, rr, &list)
	assert.Equal(t, []string{"corpus", "ns"}, list.Namespaces)

	rr = env.do(t, "DELETE", "/namespaces/corpus", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestIndex(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/index/ns", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp IndexGetResponse
	decode(t, rr, &resp)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, exampleKey, resp.Documents[0].Key)
	assert.False(t, resp.Documents[0].Resident)

	rr = env.do(t, "GET", "/index/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueryFormats(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name        string
		query       string
		format      string
		contentType string
		check       func(t *testing.T, body string)
	}{
		{
			name:        "xml",
			query:       `SELECT w WHERE text = "house"`,
			contentType: "application/xml; charset=utf-8",
			check: func(t *testing.T, body string) {
				assert.True(t, strings.HasPrefix(body, "<results>"))
				assert.Contains(t, body, `xml:id="example.p.1.s.1.w.2"`)
				assert.Contains(t, body, `xml:id="example.p.1.s.2.w.2"`)
			},
		},
		{
			name:        "json parameter",
			query:       `SELECT w WHERE pos = "V"`,
			format:      "json",
			contentType: "application/json",
			check: func(t *testing.T, body string) {
				var res struct {
					Count    int `json:"count"`
					Elements []struct {
						ID   string `json:"id"`
						Text string `json:"text"`
					} `json:"elements"`
				}
				require.NoError(t, json.Unmarshal([]byte(body), &res))
				assert.Equal(t, 2, res.Count)
				assert.Equal(t, "stands", res.Elements[0].Text)
			},
		},
		{
			name:        "text clause",
			query:       `SELECT w WHERE text = "falls" FORMAT text`,
			contentType: "text/plain; charset=utf-8",
			check: func(t *testing.T, body string) {
				assert.Equal(t, "example.p.1.s.2.w.3\tfalls\n", body)
			},
		},
		{
			name:        "cql",
			query:       `[pos="DET"] [text="house"] FORMAT text`,
			contentType: "text/plain; charset=utf-8",
			check: func(t *testing.T, body string) {
				assert.Equal(t, 4, strings.Count(body, "\n"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.query(t, "alice", "example", tt.query, tt.format)
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, tt.contentType, rr.Header().Get("Content-Type"))
			tt.check(t, rr.Body.String())
		})
	}
}

func TestQueryUseClauseAndMultipleLines(t *testing.T) {
	env := newTestEnv(t)

	q := "USE ns/example SELECT w WHERE text = \"The\"\n# comment\nSELECT w WHERE text = \"A\""
	rr := env.query(t, "alice", "", q, "json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var results []struct {
		Count int `json:"count"`
	}
	decode(t, rr, &results)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Count)
	assert.Equal(t, 1, results[1].Count)
}

func TestQueryJSONBody(t *testing.T) {
	env := newTestEnv(t)

	body := `{"query": "SELECT s", "docid": "example", "format": "text"}`
	rr := env.do(t, "POST", "/query/ns", body, "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "example.p.1.s.1\tThe house stands\nexample.p.1.s.2\tA house falls\n", rr.Body.String())
}

func TestQueryErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		docID  string
		query  string
		format string
		code   int
	}{
		{name: "empty query", docID: "example", query: "", code: http.StatusBadRequest},
		{name: "syntax error", docID: "example", query: "SELECT", code: http.StatusBadRequest},
		{name: "bad format", docID: "example", query: "SELECT w", format: "yaml", code: http.StatusBadRequest},
		{name: "no document", query: "SELECT w", code: http.StatusBadRequest},
		{name: "missing document", docID: "missing", query: "SELECT w", code: http.StatusNotFound},
		{name: "missing element", docID: "example", query: `SELECT w ID "nope"`, code: http.StatusNotFound},
		{name: "unassignable field", docID: "example", query: `EDIT w WITH type "s"`, code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.query(t, "alice", tt.docID, tt.query, tt.format)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}

	rr := env.do(t, "GET", "/query/ns", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

type pollResponse struct {
	Elements []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"elements"`
	Deleted []string `json:"deleted"`
}

func TestQueryInvalidNameLeavesDocumentClean(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{
		`EDIT w ID "example.p.1.s.1.w.1" WITH a/b "x"`,
		`ADD x:y WITH text "a" FOR ID "example.p.1.s.1"`,
	} {
		rr := env.query(t, "alice", "example", q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	}
	assert.False(t, env.srv.Store.IsModified(exampleKey))
	assert.Equal(t, 0, env.srv.SaveQueue.Pending())
}

func TestEditAndPoll(t *testing.T) {
	env := newTestEnv(t)

	// Both sessions open the document.
	require.Equal(t, http.StatusOK, env.query(t, "alice", "example", "SELECT s", "").Code)
	require.Equal(t, http.StatusOK, env.query(t, "bob", "example", "SELECT s", "").Code)

	rr := env.query(t, "alice", "example", `EDIT w ID "example.p.1.s.1.w.2" WITH text "home"`, "json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, env.srv.Store.IsModified(exampleKey))
	assert.Equal(t, 1, env.srv.SaveQueue.Pending())

	rr = env.query(t, "alice", "example", `DELETE w ID "example.p.1.s.2.w.1"`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, env.srv.SaveQueue.Pending(), "saves are coalesced")

	rr = env.do(t, "GET", "/poll/ns/example/bob", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var poll pollResponse
	decode(t, rr, &poll)
	require.Len(t, poll.Elements, 1)
	assert.Equal(t, "example.p.1.s.1.w.2", poll.Elements[0].ID)
	assert.Equal(t, "home", poll.Elements[0].Text)
	assert.Equal(t, []string{"example.p.1.s.2.w.1"}, poll.Deleted)

	// Drained.
	rr = env.do(t, "GET", "/poll/ns/example/bob", "", "")
	decode(t, rr, &poll)
	assert.Empty(t, poll.Elements)
	assert.Empty(t, poll.Deleted)

	// The editor sees nothing.
	rr = env.do(t, "GET", "/poll/ns/example/alice", "", "")
	decode(t, rr, &poll)
	assert.Empty(t, poll.Elements)
}

func TestPollUnloadedDocument(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/poll/ns/example/bob", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"elements": [], "deleted": []}`, rr.Body.String())
}

func TestGetDoc(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/getdoc/ns/example", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `<FoLiA`)
	assert.Contains(t, rr.Body.String(), `xml:id="example"`)
	assert.True(t, env.srv.Store.Contains(exampleKey))

	rr = env.do(t, "GET", "/getdoc/ns/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, "GET", "/getdoc/ns/%21%21", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadAndCreate(t *testing.T) {
	env := newTestEnv(t)

	doc := folia.New("uploaded").String()
	rr := env.do(t, "POST", "/upload/ns", doc, "application/xml")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp DocumentResponse
	decode(t, rr, &resp)
	assert.Equal(t, docid.MustNewKey("ns", "uploaded"), resp.Key)

	rr = env.do(t, "POST", "/upload/ns", doc, "application/xml")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, "POST", "/upload/ns", "<FoLiA", "application/xml")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "POST", "/upload/ns", `<FoLiA xmlns="http://ilk.uvt.nl/folia"/>`, "application/xml")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, "POST", "/create/ns/blank", "", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = env.do(t, "POST", "/create/ns/blank", "", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, "GET", "/getdoc/ns/blank", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `xml:id="blank"`)
}

func TestSaveAndHistory(t *testing.T) {
	env := newTestEnv(t)

	rr := env.query(t, "alice", "example", `EDIT w ID "example.p.1.s.1.w.2" WITH text "home"`, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "POST", "/save/ns/example", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var doc DocumentResponse
	decode(t, rr, &doc)
	assert.True(t, doc.Resident)
	assert.False(t, doc.Modified)

	data, err := afero.ReadFile(env.fs, exampleKey.Path(workdir))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<t>home</t>")

	rr = env.do(t, "GET", "/history/ns/example", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		Revisions []models.DocumentRevision `json:"revisions"`
	}
	decode(t, rr, &history)
	require.Len(t, history.Revisions, 1)
	assert.Equal(t, 1, history.Revisions[0].Revision)
	assert.Contains(t, history.Revisions[0].Message, "EDIT w")

	rr = env.do(t, "GET", "/history/ns/example?limit=zero", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnload(t *testing.T) {
	env := newTestEnv(t)

	rr := env.query(t, "alice", "example", `EDIT w ID "example.p.1.s.1.w.2" WITH text "home"`, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, "POST", "/unload/ns/example?save=false", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, env.srv.Store.Contains(exampleKey))

	data, err := afero.ReadFile(env.fs, exampleKey.Path(workdir))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "<t>home</t>")

	rr = env.do(t, "POST", "/unload/ns/example?save=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLockTimeout(t *testing.T) {
	env := newTestEnv(t)

	require.True(t, env.srv.Store.Locks().TryLock(exampleKey))
	defer env.srv.Store.Locks().Unlock(exampleKey)

	rr := env.do(t, "POST", "/save/ns/example", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = env.do(t, "GET", "/getdoc/ns/example", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)

	// Loading indexes the document.
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/getdoc/ns/example", "", "").Code)

	rr := env.do(t, "GET", "/search/ns?q=falls", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp SearchGetResponse
	decode(t, rr, &resp)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "example.p.1.s.2", resp.Hits[0].ElementID)

	rr = env.do(t, "GET", "/search?q=house&limit=1", "", "")
	decode(t, rr, &resp)
	assert.Len(t, resp.Hits, 1)

	rr = env.do(t, "GET", "/search/ns", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	env.srv.Search = nil
	rr = httptest.NewRecorder()
	SearchHandler(env.srv).ServeHTTP(rr, httptest.NewRequest("GET", "/search?q=x", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestSessionHealthMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/session", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var session SessionGetResponse
	decode(t, rr, &session)
	assert.Len(t, session.SessionID, 36)

	rr = env.do(t, "GET", "/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var health HealthGetResponse
	decode(t, rr, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 0, health.Resident)
	require.NotNil(t, health.Database)
	assert.Equal(t, 1, health.Database.MaxOpen)

	// Without a database the pool stats are left out.
	env.srv.DB = nil
	rr = httptest.NewRecorder()
	HealthHandler(env.srv).ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `"database"`)

	rr = env.do(t, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "docserve_")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrapped: %w", docstore.ErrNotFound), http.StatusNotFound},
		{folia.ErrNotFound, http.StatusNotFound},
		{docstore.ErrExists, http.StatusConflict},
		{docstore.ErrLockTimeout, http.StatusServiceUnavailable},
		{docstore.ErrQueueFull, http.StatusServiceUnavailable},
		{docid.ErrInvalidKey, http.StatusBadRequest},
		{&fql.SyntaxError{Query: "x", Msg: "bad"}, http.StatusBadRequest},
		{&folia.FieldError{Field: "id"}, http.StatusBadRequest},
		{folia.ErrInvalidName, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.code, statusForError(tt.err))
		})
	}
}
