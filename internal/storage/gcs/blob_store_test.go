package gcs_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/guideline-archiver/internal/storage/gcs"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	assert.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = gcs.New(client, gcs.Config{})
	assert.Error(t, err)
}

func TestPutObject(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotBody  []byte
		objectID = "guidelines/astma-1a2b3c4d.pdf"
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		mu.Lock()
		gotPath = r.URL.Path
		gotBody = body
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"bucket": "archive", "name": %q}`, objectID)
	})

	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "archive", Prefix: "/guidelines/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "astma-1a2b3c4d.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-data")))
	require.NoError(t, err)
	assert.Equal(t, "gs://archive/"+objectID, uri)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotPath, "/b/archive/o")
	assert.Contains(t, string(gotBody), "%PDF-data")
}

func TestPutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "archive"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "x.pdf", "application/pdf", bytes.NewReader([]byte("data")))
	assert.Error(t, err)

	_, err = store.PutObject(context.Background(), " ", "application/pdf", bytes.NewReader(nil))
	assert.Error(t, err)
}
