// Package objectsource provides the pluggable bucket-listing/download
// capability the engine drives without ever branching on which concrete
// variant backs it.
package objectsource

import (
	"context"

	"github.com/dwellir/release-monitor/internal/types"
)

// Source lists a bucket snapshot and downloads individual objects. The
// three concrete implementations (authenticated, anonymous, gcloud-CLI
// fallback) are interchangeable behind this interface.
type Source interface {
	ListSnapshot(ctx context.Context) (types.Snapshot, error)
	Download(ctx context.Context, objectName, destinationPath string) error
	Close() error
}
