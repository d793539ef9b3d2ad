// Package apperrors defines the sentinel errors the rest of release-monitor
// wraps with context via fmt.Errorf("...: %w", ...).
package apperrors

import "errors"

// Sentinel errors
var (
	ErrConfigInvalid = errors.New("release-monitor: configuration invalid")

	ErrListingDenied   = errors.New("release-monitor: bucket listing denied")
	ErrListingFailed   = errors.New("release-monitor: bucket listing failed")
	ErrDownloadFailed  = errors.New("release-monitor: object download failed")

	ErrArchiveNotTar    = errors.New("release-monitor: not a tar archive")
	ErrArchiveNoRule    = errors.New("release-monitor: no artifact-selection rule matched")
	ErrArchiveIncomplete = errors.New("release-monitor: required archive member not found")
	ErrArchiveMember    = errors.New("release-monitor: archive member unreadable")

	ErrMirrorUpload = errors.New("release-monitor: mirror upload failed")
	ErrMirrorShare  = errors.New("release-monitor: mirror share creation failed")
	ErrMirrorMkcol  = errors.New("release-monitor: mirror collection creation failed")

	ErrWebhookDelivery = errors.New("release-monitor: webhook delivery failed")

	ErrStateWrite = errors.New("release-monitor: state write failed")
	ErrStateRead  = errors.New("release-monitor: state read failed")

	ErrDryRunForever = errors.New("release-monitor: --dry-run requires --once")
)
