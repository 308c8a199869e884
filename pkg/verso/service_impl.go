package verso

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// service implements the Service interface
type service struct {
	repository  Repository
	blobStores  map[string]BlobStore
	defaultName string
	locks       *LockTable
	lockStripes int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore adds a blob storage backend. The first registered backend
// becomes the default unless WithDefaultBackend overrides it.
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = store
		if s.defaultName == "" {
			s.defaultName = name
		}
	}
}

// WithDefaultBackend selects the backend used for content storage
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultName = name
	}
}

// WithLockStripes sets the size of the per-key lock table
func WithLockStripes(n int) Option {
	return func(s *service) {
		s.lockStripes = n
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if len(s.blobStores) == 0 {
		return nil, fmt.Errorf("at least one blob store is required")
	}
	if _, ok := s.blobStores[s.defaultName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, s.defaultName)
	}

	s.locks = NewLockTable(s.lockStripes)

	return s, nil
}

// Storage backend operations

func (s *service) RegisterBackend(name string, store BlobStore) {
	s.blobStores[name] = store
}

func (s *service) GetBackend(name string) (BlobStore, error) {
	store, exists := s.blobStores[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return store, nil
}

// store returns the default content store.
func (s *service) store() BlobStore {
	return s.blobStores[s.defaultName]
}

// Bucket operations

func (s *service) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	if name == "" {
		return nil, ErrMissingBucket
	}

	unlock := s.locks.Lock(bucketScope(name))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBucketExists, name)
	} else if !errors.Is(err, ErrBucketNotFound) {
		return nil, err
	}

	// Content namespace first: bucket creation is idempotent on the store
	// side, so a metadata rollback leaves nothing dangling.
	if err := s.store().CreateBucket(ctx, name); err != nil {
		return nil, &StorageError{Bucket: name, Op: "create_bucket", Err: err}
	}

	tx, err := s.repository.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	bucket := &Bucket{Name: name, CreatedAt: time.Now().UTC()}
	if err := tx.InsertBucket(ctx, bucket); err != nil {
		return nil, err
	}
	if err := tx.InsertAuditEntry(ctx, &AuditEntry{
		BucketName: name,
		Operation:  AuditCreateBucket,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	return bucket, nil
}

func (s *service) GetBucket(ctx context.Context, name string) (*Bucket, error) {
	if name == "" {
		return nil, ErrMissingBucket
	}

	unlock := s.locks.RLock(bucketScope(name))
	defer unlock()

	return s.repository.GetBucket(ctx, name)
}

func (s *service) ListBuckets(ctx context.Context) ([]*Bucket, error) {
	return s.repository.ListBuckets(ctx)
}

func (s *service) DeleteBucket(ctx context.Context, name string) error {
	if name == "" {
		return ErrMissingBucket
	}

	unlock := s.locks.Lock(bucketScope(name))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, name); err != nil {
		return err
	}

	tx, err := s.repository.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	active, err := tx.HasActiveVersions(ctx, name)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: %s", ErrBucketNotEmpty, name)
	}

	// Only purged rows remain; they go with the bucket.
	if err := tx.RemoveBucket(ctx, name); err != nil {
		return err
	}
	if err := tx.InsertAuditEntry(ctx, &AuditEntry{
		BucketName: name,
		Operation:  AuditDeleteBucket,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true

	// The content namespace goes only after the metadata commit lands. A
	// failure here leaves orphan markers in the store; a rolled-back bucket
	// row must never point at a namespace that is already gone.
	if err := s.store().DeleteBucket(ctx, name); err != nil {
		slog.Error("Failed to remove bucket content namespace",
			"bucket", name, "error", err)
	}

	return nil
}

// Audit trail

func (s *service) ListAuditEntries(ctx context.Context, offset, limit int) ([]*AuditEntry, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return s.repository.ListAuditEntries(ctx, offset, limit)
}

// parseCreationDate validates an optional client-supplied timestamp. Empty
// means "now"; anything unparseable is a client error surfaced before any
// lock or transaction.
func parseCreationDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
	}
	return t.UTC(), nil
}
