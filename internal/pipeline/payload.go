package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/types"
)

// buildReleasePayload assembles the webhook body delivered to the
// downstream release-filter service. Field layout matches the delivery
// contract exactly: chain identity, release metadata, the full release
// object (including every upload, not just the primary one), and a result
// block carrying the configured triage defaults.
func buildReleasePayload(cfg *config.Config, obj types.ObjectMeta, uploads []types.UploadRecord, releaseTag string, notes *types.ExtractedReleaseNotes) map[string]any {
	webhookOnly := cfg.DeliveryMode == config.DeliveryModeWebhookOnly
	primary := uploads[0]
	primaryLink := artifactLink(primary)

	chain := map[string]any{
		"organization": cfg.Chain.Organization,
		"repository":   cfg.Chain.Repository,
		"common_name":  cfg.Chain.CommonName,
		"extra_info":   cfg.Chain.ExtraInfo,
		"source":       "webhook",
	}
	if cfg.Chain.ClientName != "" {
		chain["client_name"] = cfg.Chain.ClientName
	}
	if len(cfg.Chain.ChainIDs) > 0 {
		chain["chain_ids"] = cfg.Chain.ChainIDs
	}
	if len(cfg.Chain.GenesisHashes) > 0 {
		chain["genesis_hashes"] = cfg.Chain.GenesisHashes
	}

	linkLines := make([]string, 0, len(uploads))
	for _, u := range uploads {
		linkLines = append(linkLines, fmt.Sprintf("- %s: %s", u.ArtifactType, artifactLink(u)))
	}
	linksBlock := strings.Join(linkLines, "\n")

	var summaryPrefix, modeSummary, keyChangePrefix string
	if webhookOnly {
		summaryPrefix = fmt.Sprintf("New release artifacts detected in gs://%s/%s. ", obj.Bucket, obj.Name)
		modeSummary = fmt.Sprintf("Selected %d artifact(s) for webhook-only delivery without Nextcloud upload. ", len(uploads))
		keyChangePrefix = "Selected"
	} else {
		summaryPrefix = fmt.Sprintf("New release artifacts mirrored from gs://%s/%s. ", obj.Bucket, obj.Name)
		modeSummary = fmt.Sprintf("Uploaded %d artifact(s). ", len(uploads))
		keyChangePrefix = "Mirrored"
	}
	summary := fmt.Sprintf("%s%sSize=%d bytes, updated=%s.\n\nArtifact links:\n%s",
		summaryPrefix, modeSummary, obj.Size, obj.Updated, linksBlock)
	if notes != nil {
		summary += fmt.Sprintf("\n\nRelease notes extracted from archive member `%s`.", notes.SourceMember)
	}

	keyChanges := []string{fmt.Sprintf("Artifact source: %s", obj.GSURL())}
	for _, u := range uploads {
		keyChanges = append(keyChanges, fmt.Sprintf("%s %s: %s", keyChangePrefix, u.ArtifactType, artifactLink(u)))
	}
	if notes != nil {
		keyChanges = append(keyChanges, fmt.Sprintf("Release notes source: %s", notes.SourceMember))
	}

	uploadsAny := make([]map[string]any, 0, len(uploads))
	for _, u := range uploads {
		uploadsAny = append(uploadsAny, uploadRecordToMap(u))
	}

	payload := map[string]any{
		"event_type":    "gcs_release_detected",
		"event_version": "1",
		"source": map[string]any{
			"type":          "gcs-poller",
			"bucket":        obj.Bucket,
			"object_id":     obj.ObjectID(),
			"detected_at":   time.Now().UTC().Format(time.RFC3339),
			"delivery_mode": cfg.DeliveryMode,
		},
		"chain": chain,
		"release_meta": map[string]any{
			"html_url": primaryLink,
			"tag_name": releaseTag,
		},
		"release": map[string]any{
			"source":         "gcs",
			"bucket":         obj.Bucket,
			"name":           obj.Name,
			"generation":     obj.Generation,
			"metageneration": obj.Metageneration,
			"size":           obj.Size,
			"content_type":   obj.ContentType,
			"md5_hash":       obj.MD5Hash,
			"crc32c":         obj.CRC32C,
			"etag":           obj.ETag,
			"updated":        obj.Updated,
			"time_created":   obj.TimeCreated,
			"gs_url":         obj.GSURL(),
			"delivery_mode":  cfg.DeliveryMode,
			"remote_path":    primary.RemotePath,
			"remote_url":     primary.RemoteURL,
			"share_url":      primary.ShareURL,
			"download_url":   primary.DownloadURL,
			"artifact_type":  primary.ArtifactType,
			"artifact_name":  primary.ArtifactName,
			"source_member":  primary.SourceMember,
			"uploads":        uploadsAny,
		},
		"result": map[string]any{
			"urgent":            cfg.ReleaseDefaults.Urgent,
			"priority":          cfg.ReleaseDefaults.Priority,
			"due_date":          cfg.ReleaseDefaults.DueDate,
			"explicit_deadline": nil,
			"summary":           summary,
			"key_changes":       keyChanges,
			"reasoning":         "Artifact-based release signal from bucket metadata.",
		},
	}
	if notes != nil {
		payload["release_note"] = notes.Text
		payload["release_notes"] = notes.Text
		payload["release"].(map[string]any)["release_notes"] = notes.Text
		payload["release"].(map[string]any)["release_notes_source"] = notes.SourceMember
	}
	return payload
}

func artifactLink(u types.UploadRecord) string {
	if u.DownloadURL != nil && *u.DownloadURL != "" {
		return *u.DownloadURL
	}
	if u.ShareURL != nil && *u.ShareURL != "" {
		return *u.ShareURL
	}
	return u.RemoteURL
}

func uploadRecordToMap(u types.UploadRecord) map[string]any {
	return map[string]any{
		"artifact_type": u.ArtifactType,
		"artifact_name": u.ArtifactName,
		"source_member": u.SourceMember,
		"remote_path":   u.RemotePath,
		"remote_url":    u.RemoteURL,
		"share_url":     u.ShareURL,
		"download_url":  u.DownloadURL,
	}
}
