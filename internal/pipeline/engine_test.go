package pipeline

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

// fakeSource is an in-memory objectsource.Source backed by a single
// pre-built archive file, used so pipeline tests never touch a real bucket.
type fakeSource struct {
	snapshot     types.Snapshot
	archivePath  string
	downloadCall int
}

func (f *fakeSource) ListSnapshot(ctx context.Context) (types.Snapshot, error) {
	return f.snapshot, nil
}

func (f *fakeSource) Download(ctx context.Context, objectName, destinationPath string) error {
	f.downloadCall++
	data, err := os.ReadFile(f.archivePath)
	if err != nil {
		return err
	}
	return os.WriteFile(destinationPath, data, 0o644)
}

func (f *fakeSource) Close() error { return nil }

func writeTestArchive(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "chaind-v1.0.0-linux-amd64.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range map[string]string{
		"chaind":             "binary-bytes",
		"genesis.json":       `{"chain_id":"acme-1"}`,
		"release_notes.txt":  "# v1.0.0\nfirst stable release\n",
	} {
		hdr := &tar.Header{Name: name, Size: int64(len(content)), Mode: 0o644}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func baseConfig(t *testing.T, webhookURL string) *config.Config {
	return &config.Config{
		DeliveryMode:        config.DeliveryModeFull,
		PollIntervalSeconds: 900,
		StateDir:            t.TempDir(),
		TempDir:             t.TempDir(),
		GCS: config.GCSConfig{
			Bucket:              "releases-bucket",
			IncludeSuffixes:     []string{".tar.gz"},
			IncludeContentTypes: types.ContentTypeDefaults,
		},
		Webhook: config.WebhookConfig{URL: webhookURL, SharedSecret: "s3cr3t", TimeoutSeconds: 5, VerifyTLS: true},
		Chain:   config.ChainConfig{Organization: "acme", Repository: "chaind", CommonName: "chaind"},
		ReleaseDefaults: config.ReleaseDefaults{Priority: 3, DueDate: "P2D"},
		ArtifactSelection: config.ArtifactSelectionConfig{
			Enabled: true, FallbackToArchive: true,
			DefaultBinaryPatterns:  []string{"chaind"},
			DefaultGenesisPatterns: []string{"genesis.json"},
		},
	}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEngine_RunOnce_WebhookOnlyMode_DeliversAndCommitsState(t *testing.T) {
	var receivedPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&receivedPayload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir)

	cfg := baseConfig(t, server.URL)
	cfg.DeliveryMode = config.DeliveryModeWebhookOnly
	cfg.Nextcloud = nil

	snapshot := types.NewSnapshot("releases-bucket", "2026-01-01T00:00:00Z")
	snapshot.Objects["releases/chaind-v1.0.0-linux-amd64.tar.gz#1"] = types.ObjectMeta{
		Bucket: "releases-bucket", Name: "releases/chaind-v1.0.0-linux-amd64.tar.gz",
		Generation: "1", Size: 1024, Updated: "2026-01-01T00:00:00Z", ContentType: "application/gzip",
	}
	source := &fakeSource{snapshot: snapshot, archivePath: archivePath}

	engine := New(cfg, source, newTestLogger())
	require.NoError(t, engine.RunOnce(t.Context(), false))

	assert.Equal(t, 1, source.downloadCall)
	require.NotNil(t, receivedPayload)
	assert.Equal(t, "gcs_release_detected", receivedPayload["event_type"])
	releaseMeta := receivedPayload["release_meta"].(map[string]any)
	assert.Equal(t, "v1.0.0", releaseMeta["tag_name"])

	state, err := engine.store.LoadState()
	require.NoError(t, err)
	assert.Contains(t, state.Processed, "releases/chaind-v1.0.0-linux-amd64.tar.gz#1")
}

func TestEngine_RunOnce_SkipsAlreadyProcessedObjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("webhook should not be called for an already-processed object")
	}))
	defer server.Close()

	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir)

	cfg := baseConfig(t, server.URL)
	cfg.DeliveryMode = config.DeliveryModeWebhookOnly
	cfg.Nextcloud = nil

	objectID := "releases/chaind-v1.0.0-linux-amd64.tar.gz#1"
	snapshot := types.NewSnapshot("releases-bucket", "2026-01-01T00:00:00Z")
	snapshot.Objects[objectID] = types.ObjectMeta{
		Bucket: "releases-bucket", Name: "releases/chaind-v1.0.0-linux-amd64.tar.gz",
		Generation: "1", Size: 1024, Updated: "2026-01-01T00:00:00Z", ContentType: "application/gzip",
	}
	source := &fakeSource{snapshot: snapshot, archivePath: archivePath}

	engine := New(cfg, source, newTestLogger())
	require.NoError(t, engine.store.Bootstrap())
	preexisting := types.NewMonitorState()
	preexisting.Processed[objectID] = types.ProcessingRecord{ProcessedAt: "2025-12-31T00:00:00Z"}
	require.NoError(t, engine.store.SaveState(preexisting))
	require.NoError(t, engine.store.SaveSnapshot(types.NewSnapshot("releases-bucket", "2025-12-31T00:00:00Z")))

	require.NoError(t, engine.RunOnce(t.Context(), false))
	assert.Equal(t, 0, source.downloadCall)
}

func TestEngine_RunOnce_DryRun_NeverPersistsOrCallsWebhook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("webhook should not be called on a dry run")
	}))
	defer server.Close()

	dir := t.TempDir()
	archivePath := writeTestArchive(t, dir)

	cfg := baseConfig(t, server.URL)
	cfg.DeliveryMode = config.DeliveryModeWebhookOnly
	cfg.Nextcloud = nil

	snapshot := types.NewSnapshot("releases-bucket", "2026-01-01T00:00:00Z")
	snapshot.Objects["releases/chaind-v1.0.0-linux-amd64.tar.gz#1"] = types.ObjectMeta{
		Bucket: "releases-bucket", Name: "releases/chaind-v1.0.0-linux-amd64.tar.gz",
		Generation: "1", Size: 1024, Updated: "2026-01-01T00:00:00Z", ContentType: "application/gzip",
	}
	source := &fakeSource{snapshot: snapshot, archivePath: archivePath}

	engine := New(cfg, source, newTestLogger())
	require.NoError(t, engine.RunOnce(t.Context(), true))

	_, err := os.Stat(filepath.Join(cfg.StateDir, "state.json"))
	assert.True(t, os.IsNotExist(err), "dry run must not write state.json")
}

func TestEngine_RunOnce_NoNewCandidates_StillSavesSnapshot(t *testing.T) {
	cfg := baseConfig(t, "http://unused.invalid")
	cfg.DeliveryMode = config.DeliveryModeWebhookOnly
	cfg.Nextcloud = nil

	source := &fakeSource{snapshot: types.NewSnapshot("releases-bucket", "2026-01-01T00:00:00Z")}
	engine := New(cfg, source, newTestLogger())

	require.NoError(t, engine.RunOnce(t.Context(), false))
	_, err := os.Stat(filepath.Join(cfg.StateDir, "snapshot-latest.json"))
	assert.NoError(t, err)
}
