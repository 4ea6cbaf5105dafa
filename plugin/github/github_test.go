package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotReadyWithoutCredentials(t *testing.T) {
	require.False(t, NewExporter("", "owner", "repo", "main").IsReady())
	require.False(t, NewExporter("tok", "", "repo", "main").IsReady())
	require.False(t, NewExporter("tok", "owner", "", "main").IsReady())

	_, err := NewExporter("", "owner", "repo", "main").SaveNote(context.Background(), "raw/a.md", "x")
	require.Error(t, err)
}

func TestSaveNoteCreatesFile(t *testing.T) {
	var gotPut struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			// No existing file.
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.Equal(t, "/repos/acme/notes/contents/raw/abc.md", r.URL.Path)
			require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPut))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"content":{"html_url":"https://github.com/acme/notes/blob/main/raw/abc.md","sha":"s1"}}`))
		}
	}))
	defer srv.Close()

	e := NewExporter("tok", "acme", "notes", "")
	e.apiBase = srv.URL
	require.True(t, e.IsReady())

	url, err := e.SaveNote(context.Background(), "raw/abc.md", "# hello")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/acme/notes/blob/main/raw/abc.md", url)

	require.Equal(t, "Add raw/abc.md", gotPut.Message)
	require.Equal(t, "main", gotPut.Branch)
	require.Empty(t, gotPut.SHA)
	decoded, err := base64.StdEncoding.DecodeString(gotPut.Content)
	require.NoError(t, err)
	require.Equal(t, "# hello", string(decoded))
}

func TestSaveNoteUpdatesExistingFile(t *testing.T) {
	var gotPut struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.Equal(t, "dev", r.URL.Query().Get("ref"))
			_, _ = w.Write([]byte(`{"sha":"oldsha"}`))
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPut))
			_, _ = w.Write([]byte(`{"content":{"html_url":"https://github.com/acme/notes/blob/dev/raw/abc.md","sha":"s2"}}`))
		}
	}))
	defer srv.Close()

	e := NewExporter("tok", "acme", "notes", "dev")
	e.apiBase = srv.URL

	_, err := e.SaveNote(context.Background(), "raw/abc.md", "v2")
	require.NoError(t, err)
	require.Equal(t, "Update raw/abc.md", gotPut.Message)
	require.Equal(t, "oldsha", gotPut.SHA)
}

func TestSaveNoteSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid request"}`))
	}))
	defer srv.Close()

	e := NewExporter("tok", "acme", "notes", "main")
	e.apiBase = srv.URL

	_, err := e.SaveNote(context.Background(), "raw/abc.md", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
}
