// Package types holds the value types shared across release-monitor:
// bucket listings, the durable processing record, and the transient values
// that live for the duration of one object's processing.
package types

import "fmt"

// ArchiveSuffixDefaults are the object-name suffixes considered candidate
// release archives when a config omits gcs.include_suffixes.
var ArchiveSuffixDefaults = []string{".tar.gz", ".tgz", ".tar.xz", ".tar.zst", ".zip", ".gz"}

// ContentTypeDefaults are the content types considered candidate release
// archives when a config omits gcs.include_content_types.
var ContentTypeDefaults = []string{
	"application/gzip",
	"application/x-gzip",
	"application/x-tar",
	"application/gzip-compressed",
	"application/octet-stream",
}

// ObjectMeta describes one object in the source bucket at a point in time.
type ObjectMeta struct {
	Bucket         string `json:"bucket"`
	Name           string `json:"name"`
	Size           int64  `json:"size"`
	ContentType    string `json:"content_type,omitempty"`
	Generation     string `json:"generation"`
	Metageneration string `json:"metageneration,omitempty"`
	MD5Hash        string `json:"md5_hash,omitempty"`
	CRC32C         string `json:"crc32c,omitempty"`
	ETag           string `json:"etag,omitempty"`
	Updated        string `json:"updated"`
	TimeCreated    string `json:"time_created,omitempty"`
}

// ObjectID is the deduplication key for an object: name + "#" + generation.
func (o ObjectMeta) ObjectID() string {
	return o.Name + "#" + o.Generation
}

// GSURL is the gs:// display form of the object.
func (o ObjectMeta) GSURL() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// IsFile reports whether the object represents a downloadable file rather
// than a directory placeholder.
func (o ObjectMeta) IsFile() bool {
	if o.Size <= 0 {
		return false
	}
	return len(o.Name) == 0 || o.Name[len(o.Name)-1] != '/'
}

// Snapshot is a full listing of a bucket at CapturedAt, keyed by object ID.
type Snapshot struct {
	Bucket     string                `json:"bucket"`
	CapturedAt string                `json:"captured_at"`
	Objects    map[string]ObjectMeta `json:"objects"`
}

// NewSnapshot returns an empty snapshot for bucket.
func NewSnapshot(bucket, capturedAt string) Snapshot {
	return Snapshot{Bucket: bucket, CapturedAt: capturedAt, Objects: map[string]ObjectMeta{}}
}

// Diff returns the object IDs present in current but not in previous
// (added) and present in previous but not in current (removed). previous
// may be the zero Snapshot (nil Objects), representing "no prior run".
func Diff(previous, current Snapshot) (added, removed []string) {
	prevIDs := previous.Objects
	for id := range current.Objects {
		if _, ok := prevIDs[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range prevIDs {
		if _, ok := current.Objects[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// UploadRecord is the durable record of one artifact uploaded (or
// referenced, in webhook_only mode) for a processed object.
type UploadRecord struct {
	ArtifactType string  `json:"artifact_type"`
	ArtifactName string  `json:"artifact_name"`
	SourceMember *string `json:"source_member"`
	RemotePath   string  `json:"remote_path"`
	RemoteURL    string  `json:"remote_url"`
	ShareURL     *string `json:"share_url"`
	DownloadURL  *string `json:"download_url"`
}

// ProcessingRecord is the commit marker written for an object_id only after
// its webhook has been accepted by the downstream.
type ProcessingRecord struct {
	ProcessedAt        string         `json:"processed_at"`
	WebhookDeliveredAt string         `json:"webhook_delivered_at"`
	Uploads            []UploadRecord `json:"uploads"`
}

// MonitorState maps object_id to its ProcessingRecord. It is mutated only
// after a successful webhook delivery and is never pruned by the daemon.
type MonitorState struct {
	Processed map[string]ProcessingRecord `json:"processed"`
}

// NewMonitorState returns an empty state.
func NewMonitorState() MonitorState {
	return MonitorState{Processed: map[string]ProcessingRecord{}}
}

// UploadCandidate is a transient value naming a local file selected from an
// archive (or the archive itself) for upload/reference during one cycle.
type UploadCandidate struct {
	LocalPath    string
	OutputName   string
	ArtifactType string // "binary", "genesis", or "archive"
	SourceMember *string
}

// ExtractedReleaseNotes is the transient result of notes selection for one
// object's release tag.
type ExtractedReleaseNotes struct {
	Text         string
	SourceMember string
}
