package objectsource

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellir/release-monitor/internal/config"
)

func TestAnonymousSource_ListSnapshot_Paginates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"items":[{"name":"a.tar.gz","size":"10","generation":"1"}],"nextPageToken":"page2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"name":"b.tar.gz","size":"20","generation":"2"}]}`))
	}))
	defer server.Close()

	src := &anonymousSource{
		cfg:    config.GCSConfig{Bucket: "test-bucket"},
		client: server.Client(),
		host:   server.URL,
	}

	snapshot, err := src.ListSnapshot(t.Context())
	require.NoError(t, err)
	assert.Len(t, snapshot.Objects, 2)
	assert.Equal(t, 2, calls)
}

func TestAnonymousSource_ListSnapshot_DeniedWhenUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	src := &anonymousSource{cfg: config.GCSConfig{Bucket: "private-bucket"}, client: server.Client(), host: server.URL}
	_, err := src.ListSnapshot(t.Context())
	assert.Error(t, err)
}

func TestAnonymousSource_Download_WritesAtomically(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("archive-bytes"))
	}))
	defer server.Close()

	src := &anonymousSource{cfg: config.GCSConfig{Bucket: "test-bucket"}, client: server.Client(), host: server.URL}
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.tar.gz")

	err := src.Download(t.Context(), "releases/out.tar.gz", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))

	_, err = os.Stat(dest + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not remain after a successful download")
}

func TestItemToMeta_ParsesSize(t *testing.T) {
	meta := itemToMeta("bucket", listObjectItem{Name: "a.tar.gz", Size: "123", Generation: "1"})
	assert.Equal(t, int64(123), meta.Size)
	assert.Equal(t, "bucket", meta.Bucket)
}
