package objectsource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

// authenticatedSource lists and downloads via a cloud.google.com/go/storage
// client, either from an explicit service-account credential file or from
// application-default credentials.
type authenticatedSource struct {
	client *storage.Client
	cfg    config.GCSConfig
}

func newAuthenticatedSource(ctx context.Context, cfg config.GCSConfig) (Source, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create GCS client: %v", apperrors.ErrListingFailed, err)
	}
	return &authenticatedSource{client: client, cfg: cfg}, nil
}

func (s *authenticatedSource) ListSnapshot(ctx context.Context) (types.Snapshot, error) {
	bucket := s.client.Bucket(s.cfg.Bucket)
	objects := map[string]types.ObjectMeta{}

	prefixes := s.cfg.IncludePrefixes
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	seen := map[string]bool{}
	for _, prefix := range prefixes {
		it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return types.Snapshot{}, fmt.Errorf("%w: list bucket %s: %v", apperrors.ErrListingFailed, s.cfg.Bucket, err)
			}
			if seen[attrs.Name] {
				continue
			}
			seen[attrs.Name] = true
			meta := attrsToMeta(s.cfg.Bucket, attrs)
			objects[meta.ObjectID()] = meta
		}
	}

	return types.Snapshot{Bucket: s.cfg.Bucket, CapturedAt: nowISO(), Objects: objects}, nil
}

func (s *authenticatedSource) Download(ctx context.Context, objectName, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("%w: create destination dir: %v", apperrors.ErrDownloadFailed, err)
	}
	reader, err := s.client.Bucket(s.cfg.Bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("%w: open reader for %s: %v", apperrors.ErrDownloadFailed, objectName, err)
	}
	defer reader.Close()

	tmp := destinationPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", apperrors.ErrDownloadFailed, err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: download %s: %v", apperrors.ErrDownloadFailed, objectName, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close temp file: %v", apperrors.ErrDownloadFailed, err)
	}
	if err := os.Rename(tmp, destinationPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: install downloaded file: %v", apperrors.ErrDownloadFailed, err)
	}
	return nil
}

func (s *authenticatedSource) Close() error {
	return s.client.Close()
}

func attrsToMeta(bucket string, attrs *storage.ObjectAttrs) types.ObjectMeta {
	meta := types.ObjectMeta{
		Bucket:         bucket,
		Name:           attrs.Name,
		Size:           attrs.Size,
		ContentType:    attrs.ContentType,
		Generation:     fmt.Sprintf("%d", attrs.Generation),
		Metageneration: fmt.Sprintf("%d", attrs.Metageneration),
		ETag:           attrs.Etag,
		Updated:        attrs.Updated.UTC().Format(isoLayout),
	}
	if len(attrs.MD5) > 0 {
		meta.MD5Hash = fmt.Sprintf("%x", attrs.MD5)
	}
	if attrs.CRC32C != 0 {
		meta.CRC32C = fmt.Sprintf("%d", attrs.CRC32C)
	}
	if !attrs.Created.IsZero() {
		meta.TimeCreated = attrs.Created.UTC().Format(isoLayout)
	}
	return meta
}
