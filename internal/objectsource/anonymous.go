package objectsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

const gcsPublicHost = "https://storage.googleapis.com"

// anonymousSource lists a public bucket via the unauthenticated JSON API and
// downloads objects via their public https://storage.googleapis.com URL.
// host is overridable so tests can point it at a local fake server; in
// production it is always gcsPublicHost.
type anonymousSource struct {
	cfg    config.GCSConfig
	client *http.Client
	host   string
}

func newAnonymousSource(cfg config.GCSConfig) Source {
	return &anonymousSource{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}, host: gcsPublicHost}
}

type listObjectsResponse struct {
	Items         []listObjectItem `json:"items"`
	NextPageToken string           `json:"nextPageToken"`
}

type listObjectItem struct {
	Name           string `json:"name"`
	Size           string `json:"size"`
	ContentType    string `json:"contentType"`
	Generation     string `json:"generation"`
	Metageneration string `json:"metageneration"`
	MD5Hash        string `json:"md5Hash"`
	CRC32C         string `json:"crc32c"`
	Etag           string `json:"etag"`
	Updated        string `json:"updated"`
	TimeCreated    string `json:"timeCreated"`
}

func (s *anonymousSource) ListSnapshot(ctx context.Context) (types.Snapshot, error) {
	objects := map[string]types.ObjectMeta{}
	seen := map[string]bool{}

	prefixes := s.cfg.IncludePrefixes
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}

	for _, prefix := range prefixes {
		pageToken := ""
		for {
			items, next, err := s.listPage(ctx, prefix, pageToken)
			if err != nil {
				return types.Snapshot{}, err
			}
			for _, item := range items {
				key := item.Name + "#" + item.Generation
				if seen[key] {
					continue
				}
				seen[key] = true
				meta := itemToMeta(s.cfg.Bucket, item)
				objects[meta.ObjectID()] = meta
			}
			if next == "" {
				break
			}
			pageToken = next
		}
	}

	return types.Snapshot{Bucket: s.cfg.Bucket, CapturedAt: nowISO(), Objects: objects}, nil
}

func (s *anonymousSource) listPage(ctx context.Context, prefix, pageToken string) ([]listObjectItem, string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/b/%s/o", s.host, url.PathEscape(s.cfg.Bucket))
	query := url.Values{}
	query.Set("projection", "noAcl")
	query.Set("maxResults", "1000")
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build list request: %v", apperrors.ErrListingFailed, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: list bucket %s: %v", apperrors.ErrListingFailed, s.cfg.Bucket, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, "", fmt.Errorf("%w: anonymous listing denied for bucket %q; enable authentication (anonymous=false)",
			apperrors.ErrListingDenied, s.cfg.Bucket)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", fmt.Errorf("%w: list bucket %s: status=%d body=%s",
			apperrors.ErrListingFailed, s.cfg.Bucket, resp.StatusCode, body)
	}

	var payload listObjectsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, "", fmt.Errorf("%w: decode listing response: %v", apperrors.ErrListingFailed, err)
	}
	return payload.Items, payload.NextPageToken, nil
}

func (s *anonymousSource) Download(ctx context.Context, objectName, destinationPath string) error {
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return fmt.Errorf("%w: create destination dir: %v", apperrors.ErrDownloadFailed, err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", s.host, url.PathEscape(s.cfg.Bucket), encodeObjectPath(objectName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build download request: %v", apperrors.ErrDownloadFailed, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: download %s: %v", apperrors.ErrDownloadFailed, objectName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: download %s: status=%d", apperrors.ErrDownloadFailed, objectName, resp.StatusCode)
	}

	tmp := destinationPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", apperrors.ErrDownloadFailed, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write downloaded file: %v", apperrors.ErrDownloadFailed, err)
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

func (s *anonymousSource) Close() error { return nil }

func encodeObjectPath(name string) string {
	parts := splitPreservingSlashes(name)
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return joinSlash(parts)
}

func splitPreservingSlashes(name string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	parts = append(parts, name[start:])
	return parts
}

func joinSlash(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

func itemToMeta(bucket string, item listObjectItem) types.ObjectMeta {
	size, _ := strconv.ParseInt(item.Size, 10, 64)
	return types.ObjectMeta{
		Bucket:         bucket,
		Name:           item.Name,
		Size:           size,
		ContentType:    item.ContentType,
		Generation:     item.Generation,
		Metageneration: item.Metageneration,
		MD5Hash:        item.MD5Hash,
		CRC32C:         item.CRC32C,
		ETag:           item.Etag,
		Updated:        item.Updated,
		TimeCreated:    item.TimeCreated,
	}
}
