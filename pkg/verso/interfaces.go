package verso

import (
	"context"
	"io"
	"time"
)

// StagedUpload describes content staged in a blob store's temp area. The
// checksum is computed while the stream is written, so it is available before
// any metadata row exists.
type StagedUpload struct {
	Checksum string
	Size     int64
	TempRef  string
}

// BlobStore defines the interface for content-addressed storage backends.
// Blobs are keyed by (bucket, checksum); writes are idempotent, so a
// re-promote of an existing checksum is harmless.
type BlobStore interface {
	// BucketExists reports whether the bucket namespace exists
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// CreateBucket creates the bucket namespace
	CreateBucket(ctx context.Context, bucket string) error

	// DeleteBucket removes the bucket namespace and all blobs under it
	DeleteBucket(ctx context.Context, bucket string) error

	// ObjectExists reports whether a blob with the checksum exists in the bucket
	ObjectExists(ctx context.Context, bucket, checksum string) (bool, error)

	// UploadTemp streams content into the temp area and returns its
	// checksum, size and temp reference
	UploadTemp(ctx context.Context, r io.Reader) (*StagedUpload, error)

	// Promote moves a temp upload to permanent storage under (bucket, checksum)
	Promote(ctx context.Context, bucket, tempRef, checksum string) error

	// DeleteTemp discards a temp upload
	DeleteTemp(ctx context.Context, tempRef string) error

	// Delete removes a permanent blob
	Delete(ctx context.Context, bucket, checksum string) error

	// OpenRead opens a permanent blob for reading
	OpenRead(ctx context.Context, bucket, checksum string) (io.ReadCloser, error)

	// SupportsRedirect reports whether the backend can hand out direct URLs
	SupportsRedirect() bool

	// RedirectURLs returns URLs callers can fetch the blob from directly
	RedirectURLs(ctx context.Context, bucket, checksum string) ([]string, error)
}

// Querier defines the read side of the metadata store. It is implemented by
// both the repository itself and an open transaction, so reads inside a
// transaction observe its staged writes.
type Querier interface {
	GetBucket(ctx context.Context, name string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]*Bucket, error)

	// GetObjectVersion resolves the filter to one version row.
	// Returns ErrObjectNotFound when nothing matches.
	GetObjectVersion(ctx context.Context, bucket, key string, f Filter) (*ObjectVersion, error)
	// ListObjectVersions returns all versions ordered by version number ascending.
	ListObjectVersions(ctx context.Context, bucket, key string) ([]*ObjectVersion, error)
	// CountObjectTagMatches counts used versions of the key carrying the tag.
	CountObjectTagMatches(ctx context.Context, bucket, key, tag string) (int, error)
	// CountChecksumRefs counts used and soft-deleted versions in the bucket
	// referencing the checksum.
	CountChecksumRefs(ctx context.Context, bucket, checksum string) (int, error)

	GetCollectionVersion(ctx context.Context, bucket, key string, f Filter) (*CollectionVersion, error)
	ListCollectionVersions(ctx context.Context, bucket, key string) ([]*CollectionVersion, error)
	CountCollectionTagMatches(ctx context.Context, bucket, key, tag string) (int, error)

	// HasActiveVersions reports whether the bucket holds any used or
	// soft-deleted object or collection versions.
	HasActiveVersions(ctx context.Context, bucket string) (bool, error)

	ListAuditEntries(ctx context.Context, offset, limit int) ([]*AuditEntry, error)
}

// Tx is one metadata-store transaction. All writes of one logical operation
// go through a single Tx so multi-row changes commit or roll back atomically.
type Tx interface {
	Querier

	InsertBucket(ctx context.Context, bucket *Bucket) error
	// RemoveBucket drops the bucket row together with its remaining purged
	// version rows. Callers must have verified the bucket holds nothing else.
	RemoveBucket(ctx context.Context, name string) error

	// NextObjectVersion returns the next free version number for the key,
	// counting rows of every status.
	NextObjectVersion(ctx context.Context, bucket, key string) (int64, error)
	InsertObjectVersion(ctx context.Context, v *ObjectVersion) error
	MarkObjectDeleted(ctx context.Context, id int64, when time.Time) error
	MarkObjectPurged(ctx context.Context, id int64, when time.Time) error

	NextCollectionVersion(ctx context.Context, bucket, key string) (int64, error)
	InsertCollectionVersion(ctx context.Context, v *CollectionVersion) error
	InsertCollectionMember(ctx context.Context, collectionID int64, m CollectionMember) error
	MarkCollectionDeleted(ctx context.Context, id int64, when time.Time) error

	InsertAuditEntry(ctx context.Context, entry *AuditEntry) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository defines the interface for the metadata store.
type Repository interface {
	Querier

	Begin(ctx context.Context) (Tx, error)
}
