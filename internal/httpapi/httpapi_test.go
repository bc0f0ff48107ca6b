package httpapi_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	j "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/internal/httpapi"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/memstore"
)

func newServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	require.NoError(t, st.DeclareType(context.Background(), store.Class{
		Name:   "Note",
		Fields: []store.Property{{Name: "text", Shape: "primitive"}},
	}))
	r := chi.NewRouter()
	httpapi.New(st, nil).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, target string, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, target, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func decodeDocs(t *testing.T, b []byte) []*document.Document {
	t.Helper()
	var raw []j.RawMessage
	require.NoError(t, j.Unmarshal(b, &raw))
	out := make([]*document.Document, 0, len(raw))
	for _, m := range raw {
		d, err := document.DecodeJSON(bytes.NewReader(m))
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func save(t *testing.T, srv *httptest.Server, body string) document.ID {
	t.Helper()
	code, b := do(t, http.MethodPost, srv.URL+"/documents", body)
	require.Equal(t, http.StatusCreated, code, string(b))
	var saved struct {
		ID document.ID `json:"id"`
	}
	require.NoError(t, j.Unmarshal(b, &saved))
	require.False(t, saved.ID.IsZero())
	return saved.ID
}

func TestSaveAndFetch(t *testing.T) {
	srv, _ := newServer(t)
	id := save(t, srv, `{"@name":"Note","text":"hi"}`)

	code, b := do(t, http.MethodGet, srv.URL+"/documents/"+id.String(), "")
	require.Equal(t, http.StatusOK, code)
	doc, err := document.DecodeJSON(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
	text, _ := doc.Get("text")
	assert.Equal(t, "hi", text)

	// saving with an identity replaces
	code, _ = do(t, http.MethodPost, srv.URL+"/documents", `{"@name":"Note","@id":"`+id.String()+`","text":"bye"}`)
	assert.Equal(t, http.StatusOK, code)
}

func TestSave_Errors(t *testing.T) {
	srv, _ := newServer(t)

	code, _ := do(t, http.MethodPost, srv.URL+"/documents", `{"@name":"Ghost"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/documents", `{"text":"no name"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/documents", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFetch_Errors(t *testing.T) {
	srv, _ := newServer(t)

	code, b := do(t, http.MethodGet, srv.URL+"/documents/"+document.NewID().String(), "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(b), "not found")

	code, _ = do(t, http.MethodGet, srv.URL+"/documents/nope", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListAndQuery(t *testing.T) {
	srv, _ := newServer(t)
	save(t, srv, `{"@name":"Note","text":"a"}`)
	save(t, srv, `{"@name":"Note","text":"b"}`)

	code, b := do(t, http.MethodGet, srv.URL+"/classes/Note/documents", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeDocs(t, b), 2)

	code, b = do(t, http.MethodGet, srv.URL+"/classes/Note/documents?where="+url.QueryEscape("WHERE text = 'b'"), "")
	require.Equal(t, http.StatusOK, code)
	docs := decodeDocs(t, b)
	require.Len(t, docs, 1)
	text, _ := docs[0].Get("text")
	assert.Equal(t, "b", text)

	code, b = do(t, http.MethodGet, srv.URL+"/query?q="+url.QueryEscape("SELECT FROM Note LIMIT 1"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeDocs(t, b), 1)

	code, b = do(t, http.MethodGet, srv.URL+"/query?q="+url.QueryEscape("SELECT FROM Note WHERE text = 'zzz'"), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]\n", string(b))

	code, _ = do(t, http.MethodGet, srv.URL+"/query?q="+url.QueryEscape("DELETE everything"), "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/query", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/classes/Ghost/documents", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestClasses(t *testing.T) {
	srv, st := newServer(t)

	code, _ := do(t, http.MethodPut, srv.URL+"/classes", `{"name":"Tag","fields":[{"name":"label","shape":"primitive"}]}`)
	require.Equal(t, http.StatusNoContent, code)
	// redeclaring the same definition is fine, a different one conflicts
	code, _ = do(t, http.MethodPut, srv.URL+"/classes", `{"name":"Tag","fields":[{"name":"label","shape":"primitive"}]}`)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, http.MethodPut, srv.URL+"/classes", `{"name":"Tag","fields":[]}`)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = do(t, http.MethodPut, srv.URL+"/classes", `{"fields":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, b := do(t, http.MethodGet, srv.URL+"/classes", "")
	require.Equal(t, http.StatusOK, code)
	var classes []store.Class
	require.NoError(t, j.Unmarshal(b, &classes))
	require.Len(t, classes, 2)
	assert.Equal(t, "Note", classes[0].Name)
	assert.Equal(t, "Tag", classes[1].Name)

	code, _ = do(t, http.MethodDelete, srv.URL+"/classes/Tag", "")
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(t, http.MethodDelete, srv.URL+"/classes/Tag", "")
	assert.Equal(t, http.StatusNotFound, code)

	left, err := st.Classes(context.Background())
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
