package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

// resolveUpload produces the UploadRecord for one candidate, either by
// mirroring it to Nextcloud (full mode, non-dry-run), by synthesizing a
// reference into the source bucket (webhook_only mode, dry run or not), or
// a dry-run placeholder path for full mode.
func (e *Engine) resolveUpload(ctx context.Context, obj types.ObjectMeta, candidate types.UploadCandidate, releaseTag string, webhookOnly, dryRun bool) (types.UploadRecord, error) {
	if dryRun {
		var remotePath, remoteURL string
		if webhookOnly {
			remotePath = webhookOnlyPath(obj, candidate)
			remoteURL = webhookOnlyLink(obj, candidate)
			e.logger.Info("dry run: webhook_only mode would skip upload",
				"artifact_type", candidate.ArtifactType, "source_member", sourceMemberOrName(candidate))
		} else {
			remotePath = e.buildRemotePath(candidate.OutputName, obj, releaseTag)
			remoteURL = "dry-run://nextcloud/" + remotePath
			e.logger.Info("dry run: would upload artifact",
				"artifact_type", candidate.ArtifactType, "source_member", sourceMemberOrName(candidate), "remote_path", remotePath)
		}
		return types.UploadRecord{
			ArtifactType: candidate.ArtifactType,
			ArtifactName: candidate.OutputName,
			SourceMember: candidate.SourceMember,
			RemotePath:   remotePath,
			RemoteURL:    remoteURL,
		}, nil
	}

	if webhookOnly {
		remotePath := webhookOnlyPath(obj, candidate)
		remoteURL := webhookOnlyLink(obj, candidate)
		e.logger.Info("webhook-only mode: skipping nextcloud upload",
			"artifact_type", candidate.ArtifactType, "source_member", sourceMemberOrName(candidate))
		return types.UploadRecord{
			ArtifactType: candidate.ArtifactType,
			ArtifactName: candidate.OutputName,
			SourceMember: candidate.SourceMember,
			RemotePath:   remotePath,
			RemoteURL:    remoteURL,
		}, nil
	}

	remotePath := e.buildRemotePath(candidate.OutputName, obj, releaseTag)
	if e.mirror == nil {
		return types.UploadRecord{}, fmt.Errorf("nextcloud mirror is not configured")
	}
	remoteURL, err := e.mirror.UploadFile(ctx, candidate.LocalPath, remotePath)
	if err != nil {
		return types.UploadRecord{}, err
	}

	var shareURL *string
	if e.cfg.Nextcloud.CreatePublicShare {
		share, err := e.mirror.CreatePublicShare(ctx, remotePath)
		if err != nil {
			return types.UploadRecord{}, err
		}
		shareURL = &share
	}
	downloadURL := publicDownloadURL(shareURL, candidate.OutputName)

	return types.UploadRecord{
		ArtifactType: candidate.ArtifactType,
		ArtifactName: candidate.OutputName,
		SourceMember: candidate.SourceMember,
		RemotePath:   remotePath,
		RemoteURL:    remoteURL,
		ShareURL:     shareURL,
		DownloadURL:  downloadURL,
	}, nil
}

// buildRemotePath constructs the Nextcloud path for an uploaded artifact:
// <remote_dir>/<organization>/<tag>-<filename>-g<generation>. The version
// prefix is applied idempotently in case the filename already carries it.
func (e *Engine) buildRemotePath(filename string, obj types.ObjectMeta, releaseTag string) string {
	versionPrefix := releaseTag + "-"
	versionedFilename := filename
	if !strings.HasPrefix(filename, versionPrefix) {
		versionedFilename = versionPrefix + filename
	}
	filenameWithGeneration := fmt.Sprintf("%s-g%s", versionedFilename, obj.Generation)
	return strings.Join([]string{e.cfg.Nextcloud.RemoteDir, e.cfg.Chain.Organization, filenameWithGeneration}, "/")
}

func webhookOnlyPath(obj types.ObjectMeta, candidate types.UploadCandidate) string {
	if candidate.SourceMember != nil && *candidate.SourceMember != "" {
		return obj.Name + "::" + *candidate.SourceMember
	}
	return obj.Name
}

func webhookOnlyLink(obj types.ObjectMeta, candidate types.UploadCandidate) string {
	if candidate.SourceMember != nil && *candidate.SourceMember != "" {
		return obj.GSURL() + "#member=" + url.PathEscape(*candidate.SourceMember)
	}
	return obj.GSURL()
}

func sourceMemberOrName(candidate types.UploadCandidate) string {
	if candidate.SourceMember != nil && *candidate.SourceMember != "" {
		return *candidate.SourceMember
	}
	return candidate.OutputName
}

// publicDownloadURL derives the raw-download URL from a Nextcloud public
// share URL by appending /download/<artifact name> after stripping any
// query string.
func publicDownloadURL(shareURL *string, artifactName string) *string {
	if shareURL == nil || *shareURL == "" || artifactName == "" {
		return nil
	}
	base := *shareURL
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimRight(base, "/")
	download := base + "/download/" + url.PathEscape(artifactName)
	return &download
}
