package verso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Collection versioning engine. Collections carry no blob content, so the
// flow is metadata-only: member references are resolved once, at creation
// time, and equality between versions is structural rather than
// checksum-based.

func (s *service) CreateCollection(ctx context.Context, method CreateMethod, req CreateCollectionRequest) (*CollectionVersion, error) {
	if req.Bucket == "" {
		return nil, ErrMissingBucket
	}
	if req.Key == "" {
		return nil, ErrMissingKey
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCreateMethod, method)
	}
	creationDate, err := parseCreationDate(req.CreationDate)
	if err != nil {
		return nil, err
	}
	memberFilters, err := memberFilters(req.Members)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(collectionScope(req.Bucket, req.Key))
	defer unlock()

	bucket, err := s.repository.GetBucket(ctx, req.Bucket)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.GetCollectionVersion(ctx, req.Bucket, req.Key, Filter{})
	if err != nil && !errors.Is(err, ErrCollectionNotFound) {
		return nil, err
	}

	switch method {
	case CreateNew:
		if existing != nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrKeyExists, req.Bucket, req.Key)
		}
	case CreateVersion:
		if existing == nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrNoVersionTarget, req.Bucket, req.Key)
		}
	case CreateAuto:
	}

	// Member references resolve against the object version rows directly;
	// taking object locks here would break the one-lock-per-call-chain rule.
	members := make([]CollectionMember, 0, len(req.Members))
	for i, m := range req.Members {
		resolved, err := s.repository.GetObjectVersion(ctx, req.Bucket, m.Key, memberFilters[i])
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: %s/%s", ErrMemberNotFound, req.Bucket, m.Key)
			}
			return nil, err
		}
		members = append(members, CollectionMember{
			ObjectKey:     resolved.Key,
			BucketName:    resolved.BucketName,
			VersionNumber: resolved.VersionNumber,
			ObjectUUID:    resolved.UUID,
		})
	}

	// An unchanged follow-up version is a no-op: same key, same tag and an
	// identical member set return the existing version untouched.
	if existing != nil && method != CreateNew &&
		existing.Tag == req.Tag && sameMembers(existing.Members, members) {
		return existing, nil
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

	versionNumber, err := tx.NextCollectionVersion(ctx, req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	version := &CollectionVersion{
		Key:           req.Key,
		BucketID:      bucket.ID,
		BucketName:    bucket.Name,
		VersionNumber: versionNumber,
		Status:        StatusUsed,
		Tag:           req.Tag,
		CreationDate:  creationDate,
		LastModified:  now,
		UUID:          uuid.New(),
		UserMetadata:  req.UserMetadata,
		Members:       members,
	}

	if err := tx.InsertCollectionVersion(ctx, version); err != nil {
		return nil, &CollectionError{Bucket: req.Bucket, Key: req.Key, Op: "create", Err: err}
	}
	for _, m := range members {
		if err := tx.InsertCollectionMember(ctx, version.ID, m); err != nil {
			return nil, &CollectionError{Bucket: req.Bucket, Key: req.Key, Op: "create_member", Err: err}
		}
	}

	op := AuditUpdateCollection
	if versionNumber == 0 {
		op = AuditCreateCollection
	}
	if err := tx.InsertAuditEntry(ctx, &AuditEntry{
		BucketName: req.Bucket,
		Key:        req.Key,
		Operation:  op,
		UUID:       version.UUID.String(),
		Timestamp:  now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	return version, nil
}

func (s *service) GetCollection(ctx context.Context, bucket, key string, f Filter) (*CollectionVersion, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	unlock := s.locks.RLock(collectionScope(bucket, key))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, bucket); err != nil {
		return nil, err
	}

	return s.repository.GetCollectionVersion(ctx, bucket, key, f)
}

func (s *service) ListCollectionVersions(ctx context.Context, bucket, key string) ([]*CollectionVersion, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	unlock := s.locks.RLock(collectionScope(bucket, key))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, bucket); err != nil {
		return nil, err
	}

	return s.repository.ListCollectionVersions(ctx, bucket, key)
}

func (s *service) DeleteCollection(ctx context.Context, bucket, key string, f Filter) (*CollectionVersion, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if key == "" {
		return nil, ErrMissingKey
	}
	if f.IsEmpty() {
		return nil, ErrNoFilter
	}

	unlock := s.locks.Lock(collectionScope(bucket, key))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, bucket); err != nil {
		return nil, err
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

	if f.tagOnly() {
		n, err := tx.CountCollectionTagMatches(ctx, bucket, key, f.Tag)
		if err != nil {
			return nil, err
		}
		if n > 1 {
			return nil, fmt.Errorf("%w: tag %q on %s/%s", ErrAmbiguousTag, f.Tag, bucket, key)
		}
	}

	version, err := tx.GetCollectionVersion(ctx, bucket, key, f)
	if err != nil {
		return nil, err
	}
	if version.Status != StatusUsed {
		return nil, fmt.Errorf("%w: %s/%s version %d is %s", ErrNotDeletable, bucket, key, version.VersionNumber, version.Status)
	}

	now := time.Now().UTC()
	if err := tx.MarkCollectionDeleted(ctx, version.ID, now); err != nil {
		return nil, err
	}
	if err := tx.InsertAuditEntry(ctx, &AuditEntry{
		BucketName: bucket,
		Key:        key,
		Operation:  AuditDeleteCollection,
		UUID:       version.UUID.String(),
		Timestamp:  now,
	}); err != nil {
		return nil, err
	}

	version.Status = StatusDeleted
	version.LastModified = now

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true
	return version, nil
}

// memberFilters validates and converts member references up front, before any
// lock is taken.
func memberFilters(members []MemberInput) ([]Filter, error) {
	filters := make([]Filter, len(members))
	for i, m := range members {
		if m.Key == "" {
			return nil, ErrMissingKey
		}
		f := Filter{Version: m.Version, Tag: m.Tag}
		if m.UUID != "" {
			id, err := uuid.Parse(m.UUID)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidUUID, m.UUID)
			}
			f.UUID = &id
		}
		filters[i] = f
	}
	return filters, nil
}

// sameMembers compares member sets by (key, bucket, version number),
// ignoring order.
func sameMembers(a, b []CollectionMember) bool {
	if len(a) != len(b) {
		return false
	}
	type ref struct {
		key     string
		bucket  string
		version int64
	}
	seen := make(map[ref]int, len(a))
	for _, m := range a {
		seen[ref{m.ObjectKey, m.BucketName, m.VersionNumber}]++
	}
	for _, m := range b {
		r := ref{m.ObjectKey, m.BucketName, m.VersionNumber}
		if seen[r] == 0 {
			return false
		}
		seen[r]--
	}
	return true
}
