package verso

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Object versioning engine.
//
// Every mutating operation follows the same shape: acquire the per-key write
// lock, stage content in the blob store, open one metadata transaction,
// validate, write rows plus the audit entry, commit, release. On failure the
// temp upload is deleted and the transaction rolled back; content promoted by
// a previously committed operation is never touched by a failure path.

func (s *service) CreateObject(ctx context.Context, method CreateMethod, req CreateObjectRequest) (*ObjectVersion, error) {
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

	unlock := s.locks.Lock(objectScope(req.Bucket, req.Key))
	defer unlock()

	bucket, err := s.repository.GetBucket(ctx, req.Bucket)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.GetObjectVersion(ctx, req.Bucket, req.Key, Filter{})
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
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
		// behaves as new when absent, version otherwise
	}

	store := s.store()

	staged, err := store.UploadTemp(ctx, req.Content)
	if err != nil {
		return nil, &StorageError{Bucket: req.Bucket, Op: "upload_temp", Err: err}
	}
	if staged.Size == 0 {
		_ = store.DeleteTemp(ctx, staged.TempRef)
		return nil, ErrEmptyContent
	}

	// The temp upload is discarded on every failure path from here on. Once
	// promoted (or deduplicated away) it is handed off and the cleanup is
	// disarmed.
	tempLive := true
	defer func() {
		if tempLive {
			_ = store.DeleteTemp(ctx, staged.TempRef)
		}
	}()

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

	versionNumber, err := tx.NextObjectVersion(ctx, req.Bucket, req.Key)
	if err != nil {
		return nil, err
	}

	exists, err := store.ObjectExists(ctx, req.Bucket, staged.Checksum)
	if err != nil {
		return nil, &StorageError{Bucket: req.Bucket, Checksum: staged.Checksum, Op: "object_exists", Err: err}
	}
	if exists {
		// Identical content already stored under this bucket. Per-key locks
		// do not order operations on different keys, so a concurrent purge
		// of the last reference under another key can still remove this
		// blob between the existence check and the commit below; closing
		// the window needs the repository to lock matching-checksum rows
		// (SELECT ... FOR UPDATE) during the ref count.
		if err := store.DeleteTemp(ctx, staged.TempRef); err != nil {
			return nil, &StorageError{Bucket: req.Bucket, Checksum: staged.Checksum, Op: "delete_temp", Err: err}
		}
	} else {
		if err := store.Promote(ctx, req.Bucket, staged.TempRef, staged.Checksum); err != nil {
			return nil, &StorageError{Bucket: req.Bucket, Checksum: staged.Checksum, Op: "promote", Err: err}
		}
	}
	tempLive = false

	now := time.Now().UTC()
	version := &ObjectVersion{
		Key:           req.Key,
		BucketID:      bucket.ID,
		BucketName:    bucket.Name,
		Checksum:      staged.Checksum,
		Size:          staged.Size,
		ContentType:   req.ContentType,
		DownloadName:  req.DownloadName,
		Tag:           req.Tag,
		VersionNumber: versionNumber,
		Status:        StatusUsed,
		CreationDate:  creationDate,
		LastModified:  now,
		UUID:          uuid.New(),
		UserMetadata:  req.UserMetadata,
	}

	// Unset fields on a follow-up version inherit from the prior version.
	if existing != nil && method != CreateNew {
		if version.ContentType == "" {
			version.ContentType = existing.ContentType
		}
		if version.DownloadName == "" {
			version.DownloadName = existing.DownloadName
		}
		if version.Tag == "" {
			version.Tag = existing.Tag
		}
		if version.UserMetadata == nil {
			version.UserMetadata = existing.UserMetadata
		}
	}

	if err := tx.InsertObjectVersion(ctx, version); err != nil {
		return nil, &ObjectError{Bucket: req.Bucket, Key: req.Key, Op: "create", Err: err}
	}

	op := AuditUpdateObject
	if versionNumber == 0 {
		op = AuditCreateObject
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

func (s *service) GetObject(ctx context.Context, bucket, key string, f Filter) (*ObjectVersion, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	unlock := s.locks.RLock(objectScope(bucket, key))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, bucket); err != nil {
		return nil, err
	}

	return s.repository.GetObjectVersion(ctx, bucket, key, f)
}

func (s *service) ListObjectVersions(ctx context.Context, bucket, key string) ([]*ObjectVersion, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if key == "" {
		return nil, ErrMissingKey
	}

	unlock := s.locks.RLock(objectScope(bucket, key))
	defer unlock()

	if _, err := s.repository.GetBucket(ctx, bucket); err != nil {
		return nil, err
	}

	return s.repository.ListObjectVersions(ctx, bucket, key)
}

func (s *service) DeleteObject(ctx context.Context, bucket, key string, f Filter, purge bool) (*ObjectVersion, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}
	if key == "" {
		return nil, ErrMissingKey
	}
	if f.IsEmpty() {
		return nil, ErrNoFilter
	}

	unlock := s.locks.Lock(objectScope(bucket, key))
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

	// A tag-only filter must identify exactly one active version; deletion
	// never guesses between tag matches.
	if f.tagOnly() {
		n, err := tx.CountObjectTagMatches(ctx, bucket, key, f.Tag)
		if err != nil {
			return nil, err
		}
		if n > 1 {
			return nil, fmt.Errorf("%w: tag %q on %s/%s", ErrAmbiguousTag, f.Tag, bucket, key)
		}
	}

	version, err := tx.GetObjectVersion(ctx, bucket, key, f)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if !purge {
		if version.Status != StatusUsed {
			return nil, fmt.Errorf("%w: %s/%s version %d is %s", ErrNotDeletable, bucket, key, version.VersionNumber, version.Status)
		}
		if err := tx.MarkObjectDeleted(ctx, version.ID, now); err != nil {
			return nil, err
		}
		if err := tx.InsertAuditEntry(ctx, &AuditEntry{
			BucketName: bucket,
			Key:        key,
			Operation:  AuditDeleteObject,
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

	if version.Status == StatusPurged {
		return nil, fmt.Errorf("%w: %s/%s version %d already purged", ErrObjectNotFound, bucket, key, version.VersionNumber)
	}
	if err := tx.MarkObjectPurged(ctx, version.ID, now); err != nil {
		return nil, err
	}
	if err := tx.InsertAuditEntry(ctx, &AuditEntry{
		BucketName: bucket,
		Key:        key,
		Operation:  AuditPurgeObject,
		UUID:       version.UUID.String(),
		Timestamp:  now,
	}); err != nil {
		return nil, err
	}

	// Drop the blob only when the last used or soft-deleted reference to
	// this checksum in the bucket is gone.
	refs, err := tx.CountChecksumRefs(ctx, bucket, version.Checksum)
	if err != nil {
		return nil, err
	}

	version.Status = StatusPurged
	version.LastModified = now

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	committed = true

	// The blob goes only after the metadata commit lands. A failure here
	// leaves an orphan blob; a rolled-back row must never point at content
	// that is already gone.
	if refs == 0 {
		if err := s.store().Delete(ctx, bucket, version.Checksum); err != nil {
			slog.Error("Failed to remove unreferenced blob",
				"bucket", bucket, "checksum", version.Checksum, "error", err)
		}
	}
	return version, nil
}

func (s *service) DownloadObject(ctx context.Context, bucket, key string, f Filter) (io.ReadCloser, *ObjectVersion, error) {
	version, err := s.GetObject(ctx, bucket, key, f)
	if err != nil {
		return nil, nil, err
	}
	if version.Status == StatusPurged {
		return nil, nil, fmt.Errorf("%w: content purged for %s/%s version %d", ErrObjectNotFound, bucket, key, version.VersionNumber)
	}

	rc, err := s.store().OpenRead(ctx, bucket, version.Checksum)
	if err != nil {
		return nil, nil, &StorageError{Bucket: bucket, Checksum: version.Checksum, Op: "open_read", Err: err}
	}
	return rc, version, nil
}

func (s *service) RedirectURLs(ctx context.Context, bucket, key string, f Filter) ([]string, error) {
	store := s.store()
	if !store.SupportsRedirect() {
		return nil, ErrRedirectUnsupported
	}

	version, err := s.GetObject(ctx, bucket, key, f)
	if err != nil {
		return nil, err
	}
	if version.Status == StatusPurged {
		return nil, fmt.Errorf("%w: content purged for %s/%s version %d", ErrObjectNotFound, bucket, key, version.VersionNumber)
	}

	urls, err := store.RedirectURLs(ctx, bucket, version.Checksum)
	if err != nil {
		return nil, &StorageError{Bucket: bucket, Checksum: version.Checksum, Op: "redirect_urls", Err: err}
	}
	return urls, nil
}
