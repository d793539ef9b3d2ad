package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellir/release-monitor/internal/apperrors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalFullConfig = `
gcs:
  bucket: releases-bucket
webhook:
  url: https://filter.example.com/hooks/releases
  shared_secret: s3cr3t
chain:
  organization: acme
  repository: chaind
nextcloud:
  base_url: https://cloud.example.com
  username: monitor
  app_password: app-pass
`

func TestLoad_MinimalFullModeConfig(t *testing.T) {
	path := writeConfig(t, minimalFullConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DeliveryModeFull, cfg.DeliveryMode)
	assert.Equal(t, 900, cfg.PollIntervalSeconds)
	assert.Equal(t, "releases-bucket", cfg.GCS.Bucket)
	assert.Equal(t, "chaind", cfg.Chain.CommonName, "common_name defaults to repository")
	require.NotNil(t, cfg.Nextcloud)
	assert.Equal(t, "release-mirror", cfg.Nextcloud.RemoteDir)
	assert.True(t, cfg.Nextcloud.CreatePublicShare)
	assert.Equal(t, 3, cfg.ReleaseDefaults.Priority)
	assert.Equal(t, "P2D", cfg.ReleaseDefaults.DueDate)
}

func TestLoad_WebhookOnlyRejectsNextcloudSection(t *testing.T) {
	path := writeConfig(t, `
delivery_mode: webhook_only
gcs:
  bucket: releases-bucket
webhook:
  url: https://filter.example.com/hooks/releases
  shared_secret: s3cr3t
chain:
  organization: acme
  repository: chaind
nextcloud:
  base_url: https://cloud.example.com
  username: monitor
  app_password: app-pass
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestLoad_FullModeRequiresNextcloudSection(t *testing.T) {
	path := writeConfig(t, `
gcs:
  bucket: releases-bucket
webhook:
  url: https://filter.example.com/hooks/releases
  shared_secret: s3cr3t
chain:
  organization: acme
  repository: chaind
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
}

func TestLoad_RejectsInvalidPriority(t *testing.T) {
	path := writeConfig(t, minimalFullConfig+"\nrelease_defaults:\n  priority: 2\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsMutuallyExclusiveChainIdentity(t *testing.T) {
	path := writeConfig(t, strings.Replace(minimalFullConfig,
		"  repository: chaind\n",
		"  repository: chaind\n  chain_ids: [1]\n  genesis_hashes: [\"abc\"]\n", 1))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ArtifactSelectionRuleMissingPatternsErrors(t *testing.T) {
	path := writeConfig(t, minimalFullConfig+`
artifact_selection:
  rules:
    - organization: acme
      repository: chaind
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ArtifactSelectionRuleWithPatternsSucceeds(t *testing.T) {
	path := writeConfig(t, minimalFullConfig+`
artifact_selection:
  rules:
    - organization: acme
      repository: chaind
      binary_patterns: ["chaind-linux-*"]
      genesis_patterns: ["genesis.json"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.ArtifactSelection.Rules, 1)
	assert.Equal(t, []string{"chaind-linux-*"}, cfg.ArtifactSelection.Rules[0].BinaryPatterns)
}
