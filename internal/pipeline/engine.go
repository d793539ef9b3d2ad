// Package pipeline orchestrates one polling cycle: list the bucket, find
// new candidate archives, inspect and mirror each, and deliver a signed
// webhook for every one that completes successfully.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/archive"
	"github.com/dwellir/release-monitor/internal/config"
	"github.com/dwellir/release-monitor/internal/metrics"
	"github.com/dwellir/release-monitor/internal/mirror"
	"github.com/dwellir/release-monitor/internal/notes"
	"github.com/dwellir/release-monitor/internal/objectsource"
	"github.com/dwellir/release-monitor/internal/state"
	"github.com/dwellir/release-monitor/internal/types"
	"github.com/dwellir/release-monitor/internal/version"
	"github.com/dwellir/release-monitor/internal/webhook"
)

// Engine runs polling cycles against one configured bucket and delivers
// results to one configured webhook endpoint.
type Engine struct {
	cfg    *config.Config
	source objectsource.Source
	mirror *mirror.Target // nil in webhook_only mode
	sender *webhook.Sender
	store  *state.Store
	logger *slog.Logger
}

// New builds an Engine. source is constructed by the caller so tests can
// substitute a fake ObjectSource.
func New(cfg *config.Config, source objectsource.Source, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	var mirrorTarget *mirror.Target
	if cfg.Nextcloud != nil {
		mirrorTarget = mirror.NewTarget(*cfg.Nextcloud)
	}
	return &Engine{
		cfg:    cfg,
		source: source,
		mirror: mirrorTarget,
		sender: webhook.NewSender(cfg.Webhook),
		store:  state.New(cfg.StateDir),
		logger: logger,
	}
}

// RunForever polls on cfg.PollIntervalSeconds until ctx is cancelled. A
// failed cycle is logged and the loop continues; it never aborts the
// process on its own.
func (e *Engine) RunForever(ctx context.Context, dryRun bool) error {
	if dryRun {
		return apperrors.ErrDryRunForever
	}
	e.logger.Info("starting poll loop",
		"interval_seconds", e.cfg.PollIntervalSeconds, "dry_run", dryRun)

	ticker := time.NewTicker(time.Duration(e.cfg.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		if err := e.RunOnce(ctx, dryRun); err != nil {
			e.logger.Error("polling cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes exactly one polling cycle.
func (e *Engine) RunOnce(ctx context.Context, dryRun bool) (err error) {
	started := time.Now()
	defer func() {
		metrics.LastCycleDurationSeconds.Set(time.Since(started).Seconds())
		if err != nil {
			metrics.CyclesTotal.WithLabelValues("failure").Inc()
		} else {
			metrics.CyclesTotal.WithLabelValues("success").Inc()
		}
	}()

	if !dryRun {
		if err := e.store.Bootstrap(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(e.cfg.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	monitorState, err := e.store.LoadState()
	if err != nil {
		return err
	}
	previousSnapshot, err := e.store.LoadLatestSnapshot()
	if err != nil {
		return err
	}
	currentSnapshot, err := e.source.ListSnapshot(ctx)
	if err != nil {
		return err
	}

	candidates := e.newCandidateObjects(previousSnapshot, currentSnapshot)
	if len(candidates) == 0 {
		e.logger.Info("no new candidate artifacts",
			"bucket", e.cfg.GCS.Bucket, "captured_at", currentSnapshot.CapturedAt)
		if !dryRun {
			return e.store.SaveSnapshot(currentSnapshot)
		}
		return nil
	}

	e.logger.Info("detected new candidate artifacts", "count", len(candidates), "dry_run", dryRun)
	for _, obj := range candidates {
		if _, ok := monitorState.Processed[obj.ObjectID()]; ok {
			e.logger.Info("skipping already processed object", "object_id", obj.ObjectID())
			continue
		}
		record, err := e.processObject(ctx, obj, dryRun)
		if err != nil {
			return fmt.Errorf("processing %s: %w", obj.ObjectID(), err)
		}
		if !dryRun {
			monitorState.Processed[obj.ObjectID()] = record
			if err := e.store.SaveState(monitorState); err != nil {
				return err
			}
		}
	}

	if dryRun {
		e.logger.Info("dry run complete: no state or snapshot files updated")
		return nil
	}
	return e.store.SaveSnapshot(currentSnapshot)
}

// newCandidateObjects returns the objects newly present in current (absent
// from previous) that match the configured archive suffix/content-type
// filters, sorted by Updated ascending.
func (e *Engine) newCandidateObjects(previous, current types.Snapshot) []types.ObjectMeta {
	added, _ := types.Diff(previous, current)
	candidates := make([]types.ObjectMeta, 0, len(added))
	for _, id := range added {
		obj := current.Objects[id]
		if isCandidateArchive(obj, e.cfg.GCS.IncludeSuffixes, e.cfg.GCS.IncludeContentTypes) {
			candidates = append(candidates, obj)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Updated < candidates[j].Updated })
	return candidates
}

func isCandidateArchive(obj types.ObjectMeta, suffixes, contentTypes []string) bool {
	if !obj.IsFile() {
		return false
	}
	for _, suffix := range suffixes {
		if len(obj.Name) >= len(suffix) && obj.Name[len(obj.Name)-len(suffix):] == suffix {
			return true
		}
	}
	for _, ct := range contentTypes {
		if obj.ContentType == ct {
			return true
		}
	}
	return false
}

// processObject downloads, inspects, mirrors (or references), and delivers
// a webhook for exactly one new object, returning the durable record to
// commit on success.
func (e *Engine) processObject(ctx context.Context, obj types.ObjectMeta, dryRun bool) (record types.ProcessingRecord, err error) {
	defer func() {
		if err != nil {
			metrics.ObjectsProcessedTotal.WithLabelValues("failure").Inc()
		} else {
			metrics.ObjectsProcessedTotal.WithLabelValues("success").Inc()
		}
	}()

	e.logger.Info("processing new object", "gs_url", obj.GSURL())
	webhookOnly := e.cfg.DeliveryMode == config.DeliveryModeWebhookOnly

	releaseTag := version.Tag(obj.Name, obj.Generation)

	tempDir := filepath.Join(e.cfg.TempDir, "gcs-monitor-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return types.ProcessingRecord{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, path.Base(obj.Name))
	if err := e.source.Download(ctx, obj.Name, localPath); err != nil {
		return types.ProcessingRecord{}, err
	}

	extractedNotes := notes.ExtractForTag(localPath, releaseTag)
	if extractedNotes != nil {
		e.logger.Info("extracted release notes", "release_tag", releaseTag, "source_member", extractedNotes.SourceMember)
	}

	uploadCandidates, err := e.chooseUploadCandidates(localPath, tempDir, obj)
	if err != nil {
		return types.ProcessingRecord{}, err
	}

	uploads := make([]types.UploadRecord, 0, len(uploadCandidates))
	for _, candidate := range uploadCandidates {
		upload, err := e.resolveUpload(ctx, obj, candidate, releaseTag, webhookOnly, dryRun)
		if err != nil {
			return types.ProcessingRecord{}, err
		}
		uploads = append(uploads, upload)
	}

	payload := buildReleasePayload(e.cfg, obj, uploads, releaseTag, extractedNotes)

	now := time.Now().UTC()
	if dryRun {
		e.logger.Info("dry run: would deliver webhook",
			"tag_name", releaseTag, "artifacts", len(uploads))
	} else {
		if err := e.sender.Deliver(ctx, payload, now); err != nil {
			metrics.WebhookDeliveryFailuresTotal.Inc()
			return types.ProcessingRecord{}, err
		}
	}

	processedAt := now.Format(time.RFC3339)
	if dryRun {
		e.logger.Info("dry run processed object (no upload/webhook performed)", "object_id", obj.ObjectID())
	} else {
		e.logger.Info("processed object and delivered webhook", "object_id", obj.ObjectID(), "webhook_only", webhookOnly)
	}

	return types.ProcessingRecord{
		ProcessedAt:        processedAt,
		WebhookDeliveredAt: processedAt,
		Uploads:            uploads,
	}, nil
}

// chooseUploadCandidates selects the binary/genesis members from the
// archive per the chain's artifact-selection rules, falling back to
// uploading the whole archive when no rule matches (or the rule's required
// members are missing) and fallback_to_archive is enabled.
func (e *Engine) chooseUploadCandidates(localArchivePath, tempDir string, obj types.ObjectMeta) ([]types.UploadCandidate, error) {
	selected, err := archive.Inspect(localArchivePath, filepath.Join(tempDir, "selected"), e.cfg.Chain, e.cfg.ArtifactSelection)
	if err != nil {
		e.logger.Warn("artifact selection failed", "object_id", obj.ObjectID(), "error", err)
	} else if len(selected) > 0 {
		e.logger.Info("selected extracted artifacts", "object_id", obj.ObjectID(), "count", len(selected))
		return selected, nil
	}

	if !e.cfg.ArtifactSelection.FallbackToArchive {
		return nil, fmt.Errorf("%w: artifact selection failed for %s and fallback_to_archive is disabled",
			apperrors.ErrArchiveNoRule, obj.ObjectID())
	}
	e.logger.Info("falling back to archive upload", "object_id", obj.ObjectID())
	return []types.UploadCandidate{{
		LocalPath:    localArchivePath,
		OutputName:   path.Base(obj.Name),
		ArtifactType: "archive",
		SourceMember: nil,
	}}, nil
}
