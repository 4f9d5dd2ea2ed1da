package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/pdfchat/pkg/backend"
)

func newTestClient(url string) *Client {
	return New(&backend.Config{BaseURL: url, Timeout: 5 * time.Second, NResults: 4})
}

func TestAskGeneralChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Hello", r.FormValue("query"))
		assert.Empty(t, r.FormValue("document_id"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\": \"Hi\"}\n\n")
	}))
	defer server.Close()

	body, err := newTestClient(server.URL).Ask(context.Background(), backend.AskRequest{Query: "Hello"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"content\": \"Hi\"}\n\n", string(data))
}

func TestAskGroundedUsesFileEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat-file-stream/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "doc-1", r.FormValue("document_id"))
		assert.Equal(t, "4", r.FormValue("n_results"))
		fmt.Fprint(w, "data: {\"done\": true, \"sources\": []}\n\n")
	}))
	defer server.Close()

	body, err := newTestClient(server.URL+"/v1/").Ask(context.Background(), backend.AskRequest{Query: "q", DocumentID: "doc-1"})
	require.NoError(t, err)
	body.Close()
}

func TestAskNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail":"chat-file-stream failed: boom"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Ask(context.Background(), backend.AskRequest{Query: "q"})
	require.Error(t, err)

	var statusErr *backend.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, "chat-file-stream failed: boom", statusErr.Reason)
}

func TestIngest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload/", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "report.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.4", string(data))

		fmt.Fprint(w, `{"id":"abc-123","filename":"report.pdf","message":"File uploaded and vectorized into 2 chunks."}`)
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).Ingest(context.Background(), backend.IngestRequest{
		Filename: "report.pdf",
		Data:     []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", result.DocumentID)
	assert.Equal(t, "report.pdf", result.Filename)
}

func TestIngestMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"filename":"report.pdf"}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Ingest(context.Background(), backend.IngestRequest{Filename: "report.pdf"})
	assert.ErrorContains(t, err, "no document id")
}

func TestNResultsClamp(t *testing.T) {
	c := New(&backend.Config{})
	assert.Equal(t, defaultResults, c.nResults(0))
	assert.Equal(t, maxNResults, c.nResults(50))
	assert.Equal(t, 2, c.nResults(2))
}
