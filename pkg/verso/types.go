package verso

import (
	"time"

	"github.com/google/uuid"
)

// VersionStatus is the domain type for version lifecycle states.
//
// Transitions are monotonic: USED -> DELETED, USED -> PURGED,
// DELETED -> PURGED. Nothing leaves PURGED and nothing returns to USED.
type VersionStatus string

// Version status constants (typed).
const (
	StatusUsed    VersionStatus = "USED"
	StatusDeleted VersionStatus = "DELETED"
	StatusPurged  VersionStatus = "PURGED"
)

// CreateMethod selects how a create request relates to existing versions of
// the same key.
type CreateMethod string

// Create method constants (typed).
const (
	// CreateNew requires that no version of the key exists yet.
	CreateNew CreateMethod = "new"
	// CreateVersion requires an existing version to build on.
	CreateVersion CreateMethod = "version"
	// CreateAuto behaves as CreateNew for an absent key, CreateVersion otherwise.
	CreateAuto CreateMethod = "auto"
)

// IsValid reports whether the method is one of the supported constants.
func (m CreateMethod) IsValid() bool {
	switch m {
	case CreateNew, CreateVersion, CreateAuto:
		return true
	}
	return false
}

// AuditOperation identifies the state change an audit entry records.
type AuditOperation string

// Audit operation constants (typed).
const (
	AuditCreateBucket     AuditOperation = "CREATE_BUCKET"
	AuditDeleteBucket     AuditOperation = "DELETE_BUCKET"
	AuditCreateObject     AuditOperation = "CREATE_OBJECT"
	AuditUpdateObject     AuditOperation = "UPDATE_OBJECT"
	AuditDeleteObject     AuditOperation = "DELETE_OBJECT"
	AuditPurgeObject      AuditOperation = "PURGE_OBJECT"
	AuditCreateCollection AuditOperation = "CREATE_COLLECTION"
	AuditUpdateCollection AuditOperation = "UPDATE_COLLECTION"
	AuditDeleteCollection AuditOperation = "DELETE_COLLECTION"
)

// Bucket is a top-level namespace partitioning keys and content.
// The name is the external identifier and is immutable once created.
type Bucket struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectVersion is one immutable snapshot of a key's content and metadata.
//
// (BucketName, Key, VersionNumber) is unique; version numbers start at 0 and
// increase by exactly one per successive version, assigned only while the
// per-key write lock is held. Rows are immutable after creation apart from
// the status and last-modified columns.
type ObjectVersion struct {
	ID            int64             `json:"id"`
	Key           string            `json:"key"`
	BucketID      int64             `json:"bucket_id"`
	BucketName    string            `json:"bucket_name"`
	Checksum      string            `json:"checksum"`
	Size          int64             `json:"size"`
	ContentType   string            `json:"content_type,omitempty"`
	DownloadName  string            `json:"download_name,omitempty"`
	Tag           string            `json:"tag,omitempty"`
	VersionNumber int64             `json:"version_number"`
	Status        VersionStatus     `json:"status"`
	CreationDate  time.Time         `json:"creation_date"`
	LastModified  time.Time         `json:"last_modified"`
	UUID          uuid.UUID         `json:"uuid"`
	UserMetadata  map[string]string `json:"user_metadata,omitempty"`
}

// CollectionMember references one object version captured by a collection at
// creation time. The reference is resolved once and never re-validated; the
// referenced object may later be deleted or purged without invalidating the
// collection row.
type CollectionMember struct {
	ObjectKey     string    `json:"object_key"`
	BucketName    string    `json:"bucket_name"`
	VersionNumber int64     `json:"version_number"`
	ObjectUUID    uuid.UUID `json:"object_uuid"`
}

// CollectionVersion is one immutable snapshot of a collection key, grouping a
// fixed set of object versions. Collections carry no blob content of their
// own, so their lifecycle has no purge state.
type CollectionVersion struct {
	ID            int64              `json:"id"`
	Key           string             `json:"key"`
	BucketID      int64              `json:"bucket_id"`
	BucketName    string             `json:"bucket_name"`
	VersionNumber int64              `json:"version_number"`
	Status        VersionStatus      `json:"status"`
	Tag           string             `json:"tag,omitempty"`
	CreationDate  time.Time          `json:"creation_date"`
	LastModified  time.Time          `json:"last_modified"`
	UUID          uuid.UUID          `json:"uuid"`
	UserMetadata  map[string]string  `json:"user_metadata,omitempty"`
	Members       []CollectionMember `json:"members"`
}

// AuditEntry is one append-only record of a state-changing operation, written
// in the same metadata transaction as the change it describes.
type AuditEntry struct {
	ID         int64          `json:"id"`
	BucketName string         `json:"bucket_name"`
	Key        string         `json:"key,omitempty"`
	Operation  AuditOperation `json:"operation"`
	UUID       string         `json:"uuid,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
