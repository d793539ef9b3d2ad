// Package mirror uploads release artifacts to a WebDAV-compatible
// Nextcloud instance and creates a public share link for each.
package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/config"
)

// Target uploads files over WebDAV and creates OCS public shares. Every
// call is a single attempt: the pipeline, not the client, decides whether a
// failed upload should be retried on the next poll cycle.
type Target struct {
	cfg    config.NextcloudConfig
	client *http.Client
}

// NewTarget builds a Target from the nextcloud configuration section.
func NewTarget(cfg config.NextcloudConfig) *Target {
	return &Target{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadFile PUTs local to remotePath (relative to the Nextcloud account
// root), creating any missing parent collections first, and returns the
// WebDAV URL the file was written to.
func (t *Target) UploadFile(ctx context.Context, localPath, remotePath string) (string, error) {
	if err := t.ensureDirectories(ctx, remotePath); err != nil {
		return "", err
	}

	webdavURL := t.webdavURL(remotePath)
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", apperrors.ErrMirrorUpload, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", apperrors.ErrMirrorUpload, localPath, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, webdavURL, f)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", apperrors.ErrMirrorUpload, err)
	}
	req.ContentLength = info.Size()
	req.SetBasicAuth(t.cfg.Username, t.cfg.AppPassword)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: PUT %s: %v", apperrors.ErrMirrorUpload, webdavURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", fmt.Errorf("%w: status=%d body=%s", apperrors.ErrMirrorUpload, resp.StatusCode, body)
	}
	return webdavURL, nil
}

// CreatePublicShare creates a read-only (or configured permission) public
// share for remotePath and returns its public URL.
func (t *Target) CreatePublicShare(ctx context.Context, remotePath string) (string, error) {
	form := url.Values{}
	form.Set("path", "/"+remotePath)
	form.Set("shareType", "3")
	form.Set("permissions", strconv.Itoa(t.cfg.SharePermissions))
	if t.cfg.SharePassword != "" {
		form.Set("password", t.cfg.SharePassword)
	}
	if t.cfg.ShareExpireDays > 0 {
		expires := time.Now().UTC().AddDate(0, 0, t.cfg.ShareExpireDays)
		form.Set("expireDate", expires.Format("2006-01-02"))
	}

	endpoint := t.cfg.BaseURL + "/ocs/v2.php/apps/files_sharing/api/v1/shares?format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", apperrors.ErrMirrorShare, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(t.cfg.Username, t.cfg.AppPassword)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: POST shares: %v", apperrors.ErrMirrorShare, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return "", fmt.Errorf("%w: status=%d body=%s", apperrors.ErrMirrorShare, resp.StatusCode, body)
	}

	shareURL, err := decodeShareURL(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrMirrorShare, err)
	}
	return shareURL, nil
}

// ensureDirectories MKCOLs every parent collection of remotePath, treating
// 201 (created) and 405 (already exists) as success. A 409 means an
// ancestor is unexpectedly missing and is fatal rather than retried here.
func (t *Target) ensureDirectories(ctx context.Context, remotePath string) error {
	segments := strings.Split(remotePath, "/")
	if len(segments) <= 1 {
		return nil
	}
	segments = segments[:len(segments)-1]

	var cumulative []string
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		cumulative = append(cumulative, segment)
		dirPath := strings.Join(cumulative, "/")
		dirURL := t.webdavURL(dirPath)

		req, err := http.NewRequestWithContext(ctx, "MKCOL", dirURL, nil)
		if err != nil {
			return fmt.Errorf("%w: build MKCOL request: %v", apperrors.ErrMirrorMkcol, err)
		}
		req.SetBasicAuth(t.cfg.Username, t.cfg.AppPassword)

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: MKCOL %s: %v", apperrors.ErrMirrorMkcol, dirPath, err)
		}
		status := resp.StatusCode
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		resp.Body.Close()

		switch status {
		case http.StatusCreated, http.StatusMethodNotAllowed:
			continue
		case http.StatusConflict:
			return fmt.Errorf("%w: parent folder missing when creating %q", apperrors.ErrMirrorMkcol, dirPath)
		default:
			return fmt.Errorf("%w: MKCOL %s failed with status=%d body=%s", apperrors.ErrMirrorMkcol, dirPath, status, body)
		}
	}
	return nil
}

func (t *Target) webdavURL(remotePath string) string {
	parts := strings.Split(remotePath, "/")
	encoded := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		encoded = append(encoded, url.PathEscape(p))
	}
	user := url.PathEscape(t.cfg.Username)
	return fmt.Sprintf("%s/remote.php/dav/files/%s/%s", t.cfg.BaseURL, user, strings.Join(encoded, "/"))
}
