package verso

import (
	"context"
	"io"
)

// Service defines the main interface for the verso library: the object and
// collection versioning engines plus bucket and audit operations.
type Service interface {
	// Bucket operations
	CreateBucket(ctx context.Context, name string) (*Bucket, error)
	GetBucket(ctx context.Context, name string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]*Bucket, error)
	DeleteBucket(ctx context.Context, name string) error

	// Object operations
	CreateObject(ctx context.Context, method CreateMethod, req CreateObjectRequest) (*ObjectVersion, error)
	GetObject(ctx context.Context, bucket, key string, f Filter) (*ObjectVersion, error)
	ListObjectVersions(ctx context.Context, bucket, key string) ([]*ObjectVersion, error)
	DeleteObject(ctx context.Context, bucket, key string, f Filter, purge bool) (*ObjectVersion, error)

	// Object content access
	DownloadObject(ctx context.Context, bucket, key string, f Filter) (io.ReadCloser, *ObjectVersion, error)
	RedirectURLs(ctx context.Context, bucket, key string, f Filter) ([]string, error)

	// Collection operations
	CreateCollection(ctx context.Context, method CreateMethod, req CreateCollectionRequest) (*CollectionVersion, error)
	GetCollection(ctx context.Context, bucket, key string, f Filter) (*CollectionVersion, error)
	ListCollectionVersions(ctx context.Context, bucket, key string) ([]*CollectionVersion, error)
	DeleteCollection(ctx context.Context, bucket, key string, f Filter) (*CollectionVersion, error)

	// Audit trail
	ListAuditEntries(ctx context.Context, offset, limit int) ([]*AuditEntry, error)

	// Storage backend operations
	RegisterBackend(name string, store BlobStore)
	GetBackend(name string) (BlobStore, error)
}
