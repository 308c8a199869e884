// Package postgres provides a pgx-backed metadata repository.
//
// Expected schema (all text columns NOT NULL with '' defaults, metadata
// columns JSONB):
//
//	bucket(id bigserial, name text unique, created_at timestamptz)
//	object_version(id bigserial, object_key, bucket_id, bucket_name, checksum,
//	    size_bytes, content_type, download_name, tag, version_number, status,
//	    creation_date, last_modified, uuid, user_metadata,
//	    unique(bucket_name, object_key, version_number))
//	collection_version(id bigserial, collection_key, bucket_id, bucket_name,
//	    version_number, status, tag, creation_date, last_modified, uuid,
//	    user_metadata, unique(bucket_name, collection_key, version_number))
//	collection_member(collection_id, object_key, bucket_name, version_number,
//	    object_uuid)
//	audit_entry(id bigserial, bucket_name, object_key, operation, uuid, ts)
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verso-archive/verso/pkg/verso"
)

// DBTX is satisfied by both a pgx pool and an open pgx transaction, so the
// same queries serve reads inside and outside a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements verso.Repository using PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
	q    queries
}

// New creates a new PostgreSQL repository backed by the pool
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: queries{db: pool}}
}

func (r *Repository) Begin(ctx context.Context) (verso.Tx, error) {
	pgtx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, translateError("begin", err)
	}
	return &tx{tx: pgtx, q: queries{db: pgtx}}, nil
}

func (r *Repository) GetBucket(ctx context.Context, name string) (*verso.Bucket, error) {
	return r.q.getBucket(ctx, name)
}

func (r *Repository) ListBuckets(ctx context.Context) ([]*verso.Bucket, error) {
	return r.q.listBuckets(ctx)
}

func (r *Repository) GetObjectVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.ObjectVersion, error) {
	return r.q.getObjectVersion(ctx, bucket, key, f)
}

func (r *Repository) ListObjectVersions(ctx context.Context, bucket, key string) ([]*verso.ObjectVersion, error) {
	return r.q.listObjectVersions(ctx, bucket, key)
}

func (r *Repository) CountObjectTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	return r.q.countObjectTagMatches(ctx, bucket, key, tag)
}

func (r *Repository) CountChecksumRefs(ctx context.Context, bucket, checksum string) (int, error) {
	return r.q.countChecksumRefs(ctx, bucket, checksum)
}

func (r *Repository) GetCollectionVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.CollectionVersion, error) {
	return r.q.getCollectionVersion(ctx, bucket, key, f)
}

func (r *Repository) ListCollectionVersions(ctx context.Context, bucket, key string) ([]*verso.CollectionVersion, error) {
	return r.q.listCollectionVersions(ctx, bucket, key)
}

func (r *Repository) CountCollectionTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	return r.q.countCollectionTagMatches(ctx, bucket, key, tag)
}

func (r *Repository) HasActiveVersions(ctx context.Context, bucket string) (bool, error) {
	return r.q.hasActiveVersions(ctx, bucket)
}

func (r *Repository) ListAuditEntries(ctx context.Context, offset, limit int) ([]*verso.AuditEntry, error) {
	return r.q.listAuditEntries(ctx, offset, limit)
}

// tx wraps one pgx transaction.
type tx struct {
	tx pgx.Tx
	q  queries
}

func (t *tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return translateError("commit", err)
	}
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return translateError("rollback", err)
	}
	return nil
}

func (t *tx) GetBucket(ctx context.Context, name string) (*verso.Bucket, error) {
	return t.q.getBucket(ctx, name)
}

func (t *tx) ListBuckets(ctx context.Context) ([]*verso.Bucket, error) {
	return t.q.listBuckets(ctx)
}

func (t *tx) GetObjectVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.ObjectVersion, error) {
	return t.q.getObjectVersion(ctx, bucket, key, f)
}

func (t *tx) ListObjectVersions(ctx context.Context, bucket, key string) ([]*verso.ObjectVersion, error) {
	return t.q.listObjectVersions(ctx, bucket, key)
}

func (t *tx) CountObjectTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	return t.q.countObjectTagMatches(ctx, bucket, key, tag)
}

func (t *tx) CountChecksumRefs(ctx context.Context, bucket, checksum string) (int, error) {
	return t.q.countChecksumRefs(ctx, bucket, checksum)
}

func (t *tx) GetCollectionVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.CollectionVersion, error) {
	return t.q.getCollectionVersion(ctx, bucket, key, f)
}

func (t *tx) ListCollectionVersions(ctx context.Context, bucket, key string) ([]*verso.CollectionVersion, error) {
	return t.q.listCollectionVersions(ctx, bucket, key)
}

func (t *tx) CountCollectionTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	return t.q.countCollectionTagMatches(ctx, bucket, key, tag)
}

func (t *tx) HasActiveVersions(ctx context.Context, bucket string) (bool, error) {
	return t.q.hasActiveVersions(ctx, bucket)
}

func (t *tx) ListAuditEntries(ctx context.Context, offset, limit int) ([]*verso.AuditEntry, error) {
	return t.q.listAuditEntries(ctx, offset, limit)
}

func (t *tx) InsertBucket(ctx context.Context, bucket *verso.Bucket) error {
	query := `
		INSERT INTO bucket (name, created_at)
		VALUES ($1, $2)
		RETURNING id`

	if err := t.q.db.QueryRow(ctx, query, bucket.Name, bucket.CreatedAt).Scan(&bucket.ID); err != nil {
		return translateError("insert bucket", err)
	}
	return nil
}

func (t *tx) RemoveBucket(ctx context.Context, name string) error {
	statements := []string{
		`DELETE FROM collection_member cm USING collection_version cv
		 WHERE cm.collection_id = cv.id AND cv.bucket_name = $1`,
		`DELETE FROM collection_version WHERE bucket_name = $1`,
		`DELETE FROM object_version WHERE bucket_name = $1`,
		`DELETE FROM bucket WHERE name = $1`,
	}
	for _, stmt := range statements {
		if _, err := t.q.db.Exec(ctx, stmt, name); err != nil {
			return translateError("remove bucket", err)
		}
	}
	return nil
}

func (t *tx) NextObjectVersion(ctx context.Context, bucket, key string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(version_number) + 1, 0)
		FROM object_version
		WHERE bucket_name = $1 AND object_key = $2`

	var next int64
	if err := t.q.db.QueryRow(ctx, query, bucket, key).Scan(&next); err != nil {
		return 0, translateError("next object version", err)
	}
	return next, nil
}

func (t *tx) InsertObjectVersion(ctx context.Context, v *verso.ObjectVersion) error {
	query := `
		INSERT INTO object_version (
			object_key, bucket_id, bucket_name, checksum, size_bytes,
			content_type, download_name, tag, version_number, status,
			creation_date, last_modified, uuid, user_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := t.q.db.QueryRow(ctx, query,
		v.Key, v.BucketID, v.BucketName, v.Checksum, v.Size,
		v.ContentType, v.DownloadName, v.Tag, v.VersionNumber, v.Status,
		v.CreationDate, v.LastModified, v.UUID, v.UserMetadata).Scan(&v.ID)
	if err != nil {
		return translateError("insert object version", err)
	}
	return nil
}

func (t *tx) MarkObjectDeleted(ctx context.Context, id int64, when time.Time) error {
	return t.setObjectStatus(ctx, id, verso.StatusDeleted, when)
}

func (t *tx) MarkObjectPurged(ctx context.Context, id int64, when time.Time) error {
	return t.setObjectStatus(ctx, id, verso.StatusPurged, when)
}

func (t *tx) setObjectStatus(ctx context.Context, id int64, status verso.VersionStatus, when time.Time) error {
	query := `UPDATE object_version SET status = $2, last_modified = $3 WHERE id = $1`

	tag, err := t.q.db.Exec(ctx, query, id, status, when)
	if err != nil {
		return translateError("set object status", err)
	}
	if tag.RowsAffected() == 0 {
		return verso.ErrObjectNotFound
	}
	return nil
}

func (t *tx) NextCollectionVersion(ctx context.Context, bucket, key string) (int64, error) {
	query := `
		SELECT COALESCE(MAX(version_number) + 1, 0)
		FROM collection_version
		WHERE bucket_name = $1 AND collection_key = $2`

	var next int64
	if err := t.q.db.QueryRow(ctx, query, bucket, key).Scan(&next); err != nil {
		return 0, translateError("next collection version", err)
	}
	return next, nil
}

func (t *tx) InsertCollectionVersion(ctx context.Context, v *verso.CollectionVersion) error {
	query := `
		INSERT INTO collection_version (
			collection_key, bucket_id, bucket_name, version_number, status,
			tag, creation_date, last_modified, uuid, user_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := t.q.db.QueryRow(ctx, query,
		v.Key, v.BucketID, v.BucketName, v.VersionNumber, v.Status,
		v.Tag, v.CreationDate, v.LastModified, v.UUID, v.UserMetadata).Scan(&v.ID)
	if err != nil {
		return translateError("insert collection version", err)
	}
	return nil
}

func (t *tx) InsertCollectionMember(ctx context.Context, collectionID int64, m verso.CollectionMember) error {
	query := `
		INSERT INTO collection_member (
			collection_id, object_key, bucket_name, version_number, object_uuid
		) VALUES ($1, $2, $3, $4, $5)`

	_, err := t.q.db.Exec(ctx, query,
		collectionID, m.ObjectKey, m.BucketName, m.VersionNumber, m.ObjectUUID)
	if err != nil {
		return translateError("insert collection member", err)
	}
	return nil
}

func (t *tx) MarkCollectionDeleted(ctx context.Context, id int64, when time.Time) error {
	query := `UPDATE collection_version SET status = $2, last_modified = $3 WHERE id = $1`

	tag, err := t.q.db.Exec(ctx, query, id, verso.StatusDeleted, when)
	if err != nil {
		return translateError("mark collection deleted", err)
	}
	if tag.RowsAffected() == 0 {
		return verso.ErrCollectionNotFound
	}
	return nil
}

func (t *tx) InsertAuditEntry(ctx context.Context, entry *verso.AuditEntry) error {
	query := `
		INSERT INTO audit_entry (bucket_name, object_key, operation, uuid, ts)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := t.q.db.QueryRow(ctx, query,
		entry.BucketName, entry.Key, entry.Operation, entry.UUID, entry.Timestamp).Scan(&entry.ID)
	if err != nil {
		return translateError("insert audit entry", err)
	}
	return nil
}

// translateError maps pgx errors onto the domain taxonomy.
func translateError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "bucket") {
				return verso.ErrBucketExists
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
