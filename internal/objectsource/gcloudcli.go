package objectsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

// gcloudCLISource shells out to the `gcloud storage` CLI, used when neither
// ADC nor an explicit credentials file is usable in the runtime
// environment.
type gcloudCLISource struct {
	cfg config.GCSConfig
}

func newGcloudCLISource(cfg config.GCSConfig) Source {
	return &gcloudCLISource{cfg: cfg}
}

func (s *gcloudCLISource) ListSnapshot(ctx context.Context) (types.Snapshot, error) {
	objects := map[string]types.ObjectMeta{}

	prefixes := s.cfg.IncludePrefixes
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	for _, prefix := range prefixes {
		items, err := s.listPrefix(ctx, prefix)
		if err != nil {
			return types.Snapshot{}, err
		}
		for _, item := range items {
			meta := itemToMeta(s.cfg.Bucket, item)
			if meta.Name == "" {
				continue
			}
			objects[meta.ObjectID()] = meta
		}
	}
	return types.Snapshot{Bucket: s.cfg.Bucket, CapturedAt: nowISO(), Objects: objects}, nil
}

func (s *gcloudCLISource) listPrefix(ctx context.Context, prefix string) ([]listObjectItem, error) {
	pattern := fmt.Sprintf("gs://%s/%s**", s.cfg.Bucket, prefix)
	cmd := exec.CommandContext(ctx, "gcloud", "storage", "ls", "--recursive", "--json", pattern)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: gcloud storage ls: %v: %s", apperrors.ErrListingFailed, err, stderr.String())
	}
	var items []listObjectItem
	if err := json.Unmarshal(stdout.Bytes(), &items); err != nil {
		return nil, fmt.Errorf("%w: decode gcloud ls output: %v", apperrors.ErrListingFailed, err)
	}
	return items, nil
}

func (s *gcloudCLISource) Download(ctx context.Context, objectName, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("%w: create destination dir: %v", apperrors.ErrDownloadFailed, err)
	}
	source := fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, objectName)
	tmp := destinationPath + ".tmp"
	cmd := exec.CommandContext(ctx, "gcloud", "storage", "cp", source, tmp)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: gcloud storage cp %s: %v: %s", apperrors.ErrDownloadFailed, source, err, stderr.String())
	}
	if err := os.Rename(tmp, destinationPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: install downloaded file: %v", apperrors.ErrDownloadFailed, err)
	}
	return nil
}

func (s *gcloudCLISource) Close() error { return nil }
