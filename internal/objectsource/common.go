package objectsource

import (
	"context"
	"time"

	"github.com/dwellir/release-monitor/internal/config"
)

const isoLayout = "2006-01-02T15:04:05Z"

func nowISO() string {
	return time.Now().UTC().Format(isoLayout)
}

// New selects and constructs the ObjectSource variant named by cfg: the
// gcloud-CLI fallback takes precedence if explicitly requested, then
// anonymous HTTP listing, then an authenticated client (credentials file or
// application-default credentials). The engine is never aware of which
// variant it holds.
func New(ctx context.Context, cfg config.GCSConfig) (Source, error) {
	if cfg.UseGcloudCLI {
		return newGcloudCLISource(cfg), nil
	}
	if cfg.Anonymous {
		return newAnonymousSource(cfg), nil
	}
	return newAuthenticatedSource(ctx, cfg)
}
