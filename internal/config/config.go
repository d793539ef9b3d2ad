// Package config loads and validates the daemon's YAML configuration into a
// single typed value; nothing downstream ever sees the raw mapping.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/dwellir/release-monitor/internal/apperrors"
	"github.com/dwellir/release-monitor/internal/types"
)

// Delivery modes.
const (
	DeliveryModeFull        = "full"
	DeliveryModeWebhookOnly = "webhook_only"
)

// Allowed release_defaults values.
var (
	allowedPriorities = map[int]bool{1: true, 3: true, 4: true}
	allowedDueDates    = map[string]bool{"P1D": true, "P2D": true, "P5D": true}
)

// GCSConfig configures the source bucket and the listing variant.
type GCSConfig struct {
	Bucket               string
	Anonymous            bool
	UseGcloudCLI         bool
	CredentialsFile      string
	IncludePrefixes      []string
	IncludeSuffixes      []string
	IncludeContentTypes  []string
}

// NextcloudConfig configures the WebDAV mirror target. Required only when
// DeliveryMode == DeliveryModeFull.
type NextcloudConfig struct {
	BaseURL           string
	Username          string
	AppPassword       string
	RemoteDir         string
	VerifyTLS         bool
	CreatePublicShare bool
	SharePassword     string
	ShareExpireDays   int
	SharePermissions  int
}

// WebhookConfig configures outbound delivery to the release filter.
type WebhookConfig struct {
	URL            string
	SharedSecret   string
	TimeoutSeconds float64
	VerifyTLS      bool
}

// ChainConfig identifies the chain this monitor tracks.
type ChainConfig struct {
	Organization  string
	Repository    string
	CommonName    string
	ExtraInfo     string
	ClientName    string
	ChainIDs      []int64
	GenesisHashes []string
}

// ReleaseDefaults fills result fields of the outbound webhook payload.
type ReleaseDefaults struct {
	Urgent   bool
	Priority int
	DueDate  string
}

// ArtifactSelectionRule matches a chain identity to binary/genesis glob
// patterns. Empty Organization/Repository act as wildcards.
type ArtifactSelectionRule struct {
	Organization    string
	Repository      string
	BinaryPatterns  []string
	GenesisPatterns []string
}

// ArtifactSelectionConfig configures ArchiveInspector.
type ArtifactSelectionConfig struct {
	Enabled               bool
	FallbackToArchive     bool
	DefaultBinaryPatterns []string
	DefaultGenesisPatterns []string
	Rules                 []ArtifactSelectionRule
}

// Config is the fully validated, typed configuration value.
type Config struct {
	DeliveryMode         string
	PollIntervalSeconds  int
	StateDir             string
	TempDir              string
	GCS                  GCSConfig
	Nextcloud            *NextcloudConfig // nil iff DeliveryMode == DeliveryModeWebhookOnly
	Webhook              WebhookConfig
	Chain                ChainConfig
	ReleaseDefaults      ReleaseDefaults
	ArtifactSelection    ArtifactSelectionConfig
}

// Load reads, defaults, and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RELEASE_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrConfigInvalid, path, err)
	}

	for _, key := range []string{"gcs", "webhook", "chain"} {
		if !v.IsSet(key) {
			return nil, fmt.Errorf("%w: missing required key %q", apperrors.ErrConfigInvalid, key)
		}
	}

	cfg := &Config{}

	cfg.DeliveryMode = v.GetString("delivery_mode")
	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = DeliveryModeFull
	}
	if cfg.DeliveryMode != DeliveryModeFull && cfg.DeliveryMode != DeliveryModeWebhookOnly {
		return nil, fmt.Errorf("%w: delivery_mode must be %q or %q, got %q",
			apperrors.ErrConfigInvalid, DeliveryModeFull, DeliveryModeWebhookOnly, cfg.DeliveryMode)
	}

	cfg.PollIntervalSeconds = v.GetInt("poll_interval_seconds")
	if !v.IsSet("poll_interval_seconds") {
		cfg.PollIntervalSeconds = 900
	}
	if cfg.PollIntervalSeconds < 30 {
		return nil, fmt.Errorf("%w: poll_interval_seconds must be >= 30, got %d",
			apperrors.ErrConfigInvalid, cfg.PollIntervalSeconds)
	}

	cfg.StateDir = resolvePath(v.GetString("state_dir"), "./state")
	cfg.TempDir = resolvePath(v.GetString("temp_dir"), "/tmp/release-monitor")

	gcs, err := parseGCS(v.Sub("gcs"))
	if err != nil {
		return nil, err
	}
	cfg.GCS = gcs

	webhook, err := parseWebhook(v.Sub("webhook"))
	if err != nil {
		return nil, err
	}
	cfg.Webhook = webhook

	chain, err := parseChain(v.Sub("chain"))
	if err != nil {
		return nil, err
	}
	cfg.Chain = chain

	releaseDefaults, err := parseReleaseDefaults(v.Sub("release_defaults"))
	if err != nil {
		return nil, err
	}
	cfg.ReleaseDefaults = releaseDefaults

	artifactSelection, err := parseArtifactSelection(v.Sub("artifact_selection"))
	if err != nil {
		return nil, err
	}
	cfg.ArtifactSelection = artifactSelection

	if cfg.DeliveryMode == DeliveryModeFull {
		if !v.IsSet("nextcloud") {
			return nil, fmt.Errorf("%w: nextcloud section is required when delivery_mode=%q",
				apperrors.ErrConfigInvalid, DeliveryModeFull)
		}
		nextcloud, err := parseNextcloud(v.Sub("nextcloud"))
		if err != nil {
			return nil, err
		}
		cfg.Nextcloud = &nextcloud
	} else if v.IsSet("nextcloud") {
		return nil, fmt.Errorf("%w: nextcloud section must not be set when delivery_mode=%q",
			apperrors.ErrConfigInvalid, DeliveryModeWebhookOnly)
	}

	return cfg, nil
}

func resolvePath(raw, fallback string) string {
	if raw == "" {
		raw = fallback
	}
	if expanded, err := homeExpand(raw); err == nil {
		raw = expanded
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return raw
	}
	return abs
}

func homeExpand(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p, err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func parseGCS(v *viper.Viper) (GCSConfig, error) {
	if v == nil {
		return GCSConfig{}, fmt.Errorf("%w: gcs section is required", apperrors.ErrConfigInvalid)
	}
	bucket := v.GetString("bucket")
	if bucket == "" {
		return GCSConfig{}, fmt.Errorf("%w: gcs.bucket is required", apperrors.ErrConfigInvalid)
	}
	suffixes := v.GetStringSlice("include_suffixes")
	if len(suffixes) == 0 {
		suffixes = types.ArchiveSuffixDefaults
	}
	contentTypes := v.GetStringSlice("include_content_types")
	if len(contentTypes) == 0 {
		contentTypes = types.ContentTypeDefaults
	}
	return GCSConfig{
		Bucket:              bucket,
		Anonymous:           v.GetBool("anonymous"),
		UseGcloudCLI:        v.GetBool("use_gcloud_cli"),
		CredentialsFile:     v.GetString("credentials_file"),
		IncludePrefixes:     v.GetStringSlice("include_prefixes"),
		IncludeSuffixes:     suffixes,
		IncludeContentTypes: contentTypes,
	}, nil
}

func parseNextcloud(v *viper.Viper) (NextcloudConfig, error) {
	if v == nil {
		return NextcloudConfig{}, fmt.Errorf("%w: nextcloud section is required", apperrors.ErrConfigInvalid)
	}
	baseURL := strings.TrimRight(v.GetString("base_url"), "/")
	username := v.GetString("username")
	appPassword := v.GetString("app_password")
	if baseURL == "" || username == "" || appPassword == "" {
		return NextcloudConfig{}, fmt.Errorf("%w: nextcloud.base_url, username, and app_password are required",
			apperrors.ErrConfigInvalid)
	}
	remoteDir := v.GetString("remote_dir")
	if remoteDir == "" {
		remoteDir = "release-mirror"
	}
	permissions := 1
	if v.IsSet("share_permissions") {
		permissions = v.GetInt("share_permissions")
	}
	createShare := true
	if v.IsSet("create_public_share") {
		createShare = v.GetBool("create_public_share")
	}
	verifyTLS := true
	if v.IsSet("verify_tls") {
		verifyTLS = v.GetBool("verify_tls")
	}
	return NextcloudConfig{
		BaseURL:           baseURL,
		Username:          username,
		AppPassword:       appPassword,
		RemoteDir:         normalizeSlashPath(remoteDir),
		VerifyTLS:         verifyTLS,
		CreatePublicShare: createShare,
		SharePassword:     v.GetString("share_password"),
		ShareExpireDays:   v.GetInt("share_expire_days"),
		SharePermissions:  permissions,
	}, nil
}

func parseWebhook(v *viper.Viper) (WebhookConfig, error) {
	if v == nil {
		return WebhookConfig{}, fmt.Errorf("%w: webhook section is required", apperrors.ErrConfigInvalid)
	}
	url := v.GetString("url")
	secret := v.GetString("shared_secret")
	if url == "" || secret == "" {
		return WebhookConfig{}, fmt.Errorf("%w: webhook.url and shared_secret are required", apperrors.ErrConfigInvalid)
	}
	timeout := 10.0
	if v.IsSet("timeout_seconds") {
		timeout = v.GetFloat64("timeout_seconds")
	}
	verifyTLS := true
	if v.IsSet("verify_tls") {
		verifyTLS = v.GetBool("verify_tls")
	}
	return WebhookConfig{
		URL:            url,
		SharedSecret:   secret,
		TimeoutSeconds: timeout,
		VerifyTLS:      verifyTLS,
	}, nil
}

func parseChain(v *viper.Viper) (ChainConfig, error) {
	if v == nil {
		return ChainConfig{}, fmt.Errorf("%w: chain section is required", apperrors.ErrConfigInvalid)
	}
	organization := v.GetString("organization")
	repository := v.GetString("repository")
	if organization == "" || repository == "" {
		return ChainConfig{}, fmt.Errorf("%w: chain.organization and repository are required", apperrors.ErrConfigInvalid)
	}
	commonName := v.GetString("common_name")
	if commonName == "" {
		commonName = repository
	}

	chainIDs := dedupInt64(toInt64Slice(v.Get("chain_ids")))
	genesisHashes := dedupStringLower(v.GetStringSlice("genesis_hashes"))
	if len(chainIDs) > 0 && len(genesisHashes) > 0 {
		return ChainConfig{}, fmt.Errorf("%w: chain.chain_ids and chain.genesis_hashes are mutually exclusive",
			apperrors.ErrConfigInvalid)
	}

	return ChainConfig{
		Organization:  organization,
		Repository:    repository,
		CommonName:    commonName,
		ExtraInfo:     v.GetString("extra_info"),
		ClientName:    v.GetString("client_name"),
		ChainIDs:      chainIDs,
		GenesisHashes: genesisHashes,
	}, nil
}

func parseReleaseDefaults(v *viper.Viper) (ReleaseDefaults, error) {
	priority := 3
	dueDate := "P2D"
	urgent := false
	if v != nil {
		if v.IsSet("priority") {
			priority = v.GetInt("priority")
		}
		if v.IsSet("due_date") {
			dueDate = v.GetString("due_date")
		}
		urgent = v.GetBool("urgent")
	}
	if !allowedPriorities[priority] {
		return ReleaseDefaults{}, fmt.Errorf("%w: release_defaults.priority must be one of 1, 3, 4",
			apperrors.ErrConfigInvalid)
	}
	if !allowedDueDates[dueDate] {
		return ReleaseDefaults{}, fmt.Errorf("%w: release_defaults.due_date must be one of P1D, P2D, P5D",
			apperrors.ErrConfigInvalid)
	}
	return ReleaseDefaults{Urgent: urgent, Priority: priority, DueDate: dueDate}, nil
}

func parseArtifactSelection(v *viper.Viper) (ArtifactSelectionConfig, error) {
	cfg := ArtifactSelectionConfig{Enabled: true, FallbackToArchive: true}
	if v == nil {
		return cfg, nil
	}
	if v.IsSet("enabled") {
		cfg.Enabled = v.GetBool("enabled")
	}
	if v.IsSet("fallback_to_archive") {
		cfg.FallbackToArchive = v.GetBool("fallback_to_archive")
	}
	cfg.DefaultBinaryPatterns = v.GetStringSlice("default_binary_patterns")
	cfg.DefaultGenesisPatterns = v.GetStringSlice("default_genesis_patterns")

	rawRules, _ := v.Get("rules").([]interface{})
	for _, raw := range rawRules {
		ruleMap, ok := raw.(map[string]interface{})
		if !ok {
			return cfg, fmt.Errorf("%w: artifact_selection.rules entries must be mappings", apperrors.ErrConfigInvalid)
		}
		rule := ArtifactSelectionRule{
			Organization:    stringFromMap(ruleMap, "organization"),
			Repository:      stringFromMap(ruleMap, "repository"),
			BinaryPatterns:  stringSliceFromMap(ruleMap, "binary_patterns"),
			GenesisPatterns: stringSliceFromMap(ruleMap, "genesis_patterns"),
		}
		if len(rule.BinaryPatterns) == 0 || len(rule.GenesisPatterns) == 0 {
			return cfg, fmt.Errorf("%w: artifact_selection rule requires binary_patterns and genesis_patterns",
				apperrors.ErrConfigInvalid)
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	return cfg, nil
}

func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringSliceFromMap(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toInt64Slice(raw interface{}) []int64 {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case int:
			out = append(out, int64(v))
		case int64:
			out = append(out, v)
		case float64:
			out = append(out, int64(v))
		}
	}
	return out
}

func dedupInt64(items []int64) []int64 {
	seen := map[int64]bool{}
	out := make([]int64, 0, len(items))
	for _, v := range items {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupStringLower(items []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(items))
	for _, v := range items {
		lower := strings.ToLower(v)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}

func normalizeSlashPath(value string) string {
	segments := strings.Split(strings.Trim(value, "/"), "/")
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}
