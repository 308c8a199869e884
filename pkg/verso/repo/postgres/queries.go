package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/verso-archive/verso/pkg/verso"
)

// queries holds the read side shared between the repository and open
// transactions. Filter precedence is pushed into SQL so the database picks
// the row under the same rules the in-memory resolver applies.
type queries struct {
	db DBTX
}

const objectColumns = `
	id, object_key, bucket_id, bucket_name, checksum, size_bytes,
	content_type, download_name, tag, version_number, status,
	creation_date, last_modified, uuid, user_metadata`

const collectionColumns = `
	id, collection_key, bucket_id, bucket_name, version_number, status,
	tag, creation_date, last_modified, uuid, user_metadata`

func (q queries) getBucket(ctx context.Context, name string) (*verso.Bucket, error) {
	query := `SELECT id, name, created_at FROM bucket WHERE name = $1`

	var b verso.Bucket
	err := q.db.QueryRow(ctx, query, name).Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", verso.ErrBucketNotFound, name)
		}
		return nil, translateError("get bucket", err)
	}
	return &b, nil
}

func (q queries) listBuckets(ctx context.Context) ([]*verso.Bucket, error) {
	query := `SELECT id, name, created_at FROM bucket ORDER BY name`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, translateError("list buckets", err)
	}
	defer rows.Close()

	var buckets []*verso.Bucket
	for rows.Next() {
		var b verso.Bucket
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, translateError("scan bucket", err)
		}
		buckets = append(buckets, &b)
	}
	return buckets, rows.Err()
}

func scanObjectVersion(row pgx.Row) (*verso.ObjectVersion, error) {
	var v verso.ObjectVersion
	err := row.Scan(
		&v.ID, &v.Key, &v.BucketID, &v.BucketName, &v.Checksum, &v.Size,
		&v.ContentType, &v.DownloadName, &v.Tag, &v.VersionNumber, &v.Status,
		&v.CreationDate, &v.LastModified, &v.UUID, &v.UserMetadata)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (q queries) getObjectVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.ObjectVersion, error) {
	base := `SELECT ` + objectColumns + ` FROM object_version WHERE bucket_name = $1 AND object_key = $2`

	var row pgx.Row
	switch {
	case f.UUID != nil:
		row = q.db.QueryRow(ctx, base+` AND uuid = $3`, bucket, key, *f.UUID)
	case f.Version != nil:
		row = q.db.QueryRow(ctx, base+` AND version_number = $3`, bucket, key, *f.Version)
	case f.Tag != "":
		row = q.db.QueryRow(ctx, base+` AND tag = $3 AND status = $4
			ORDER BY creation_date DESC, version_number DESC LIMIT 1`,
			bucket, key, f.Tag, verso.StatusUsed)
	default:
		row = q.db.QueryRow(ctx, base+` AND status = $3
			ORDER BY version_number DESC LIMIT 1`,
			bucket, key, verso.StatusUsed)
	}

	v, err := scanObjectVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", verso.ErrObjectNotFound, bucket, key)
		}
		return nil, translateError("get object version", err)
	}
	return v, nil
}

func (q queries) listObjectVersions(ctx context.Context, bucket, key string) ([]*verso.ObjectVersion, error) {
	query := `SELECT ` + objectColumns + `
		FROM object_version
		WHERE bucket_name = $1 AND object_key = $2
		ORDER BY version_number ASC`

	rows, err := q.db.Query(ctx, query, bucket, key)
	if err != nil {
		return nil, translateError("list object versions", err)
	}
	defer rows.Close()

	var versions []*verso.ObjectVersion
	for rows.Next() {
		v, err := scanObjectVersion(rows)
		if err != nil {
			return nil, translateError("scan object version", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (q queries) countObjectTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	query := `
		SELECT COUNT(*) FROM object_version
		WHERE bucket_name = $1 AND object_key = $2 AND tag = $3 AND status = $4`

	var n int
	if err := q.db.QueryRow(ctx, query, bucket, key, tag, verso.StatusUsed).Scan(&n); err != nil {
		return 0, translateError("count object tag matches", err)
	}
	return n, nil
}

func (q queries) countChecksumRefs(ctx context.Context, bucket, checksum string) (int, error) {
	query := `
		SELECT COUNT(*) FROM object_version
		WHERE bucket_name = $1 AND checksum = $2 AND status IN ($3, $4)`

	var n int
	err := q.db.QueryRow(ctx, query, bucket, checksum, verso.StatusUsed, verso.StatusDeleted).Scan(&n)
	if err != nil {
		return 0, translateError("count checksum refs", err)
	}
	return n, nil
}

func scanCollectionVersion(row pgx.Row) (*verso.CollectionVersion, error) {
	var v verso.CollectionVersion
	err := row.Scan(
		&v.ID, &v.Key, &v.BucketID, &v.BucketName, &v.VersionNumber, &v.Status,
		&v.Tag, &v.CreationDate, &v.LastModified, &v.UUID, &v.UserMetadata)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (q queries) getCollectionVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.CollectionVersion, error) {
	base := `SELECT ` + collectionColumns + ` FROM collection_version WHERE bucket_name = $1 AND collection_key = $2`

	var row pgx.Row
	switch {
	case f.UUID != nil:
		row = q.db.QueryRow(ctx, base+` AND uuid = $3`, bucket, key, *f.UUID)
	case f.Version != nil:
		row = q.db.QueryRow(ctx, base+` AND version_number = $3`, bucket, key, *f.Version)
	case f.Tag != "":
		row = q.db.QueryRow(ctx, base+` AND tag = $3 AND status = $4
			ORDER BY creation_date DESC, version_number DESC LIMIT 1`,
			bucket, key, f.Tag, verso.StatusUsed)
	default:
		row = q.db.QueryRow(ctx, base+` AND status = $3
			ORDER BY version_number DESC LIMIT 1`,
			bucket, key, verso.StatusUsed)
	}

	v, err := scanCollectionVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", verso.ErrCollectionNotFound, bucket, key)
		}
		return nil, translateError("get collection version", err)
	}

	if err := q.loadMembers(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (q queries) listCollectionVersions(ctx context.Context, bucket, key string) ([]*verso.CollectionVersion, error) {
	query := `SELECT ` + collectionColumns + `
		FROM collection_version
		WHERE bucket_name = $1 AND collection_key = $2
		ORDER BY version_number ASC`

	rows, err := q.db.Query(ctx, query, bucket, key)
	if err != nil {
		return nil, translateError("list collection versions", err)
	}
	defer rows.Close()

	var versions []*verso.CollectionVersion
	for rows.Next() {
		v, err := scanCollectionVersion(rows)
		if err != nil {
			return nil, translateError("scan collection version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, v := range versions {
		if err := q.loadMembers(ctx, v); err != nil {
			return nil, err
		}
	}
	return versions, nil
}

func (q queries) loadMembers(ctx context.Context, v *verso.CollectionVersion) error {
	query := `
		SELECT object_key, bucket_name, version_number, object_uuid
		FROM collection_member
		WHERE collection_id = $1
		ORDER BY object_key, version_number`

	rows, err := q.db.Query(ctx, query, v.ID)
	if err != nil {
		return translateError("load collection members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m verso.CollectionMember
		if err := rows.Scan(&m.ObjectKey, &m.BucketName, &m.VersionNumber, &m.ObjectUUID); err != nil {
			return translateError("scan collection member", err)
		}
		v.Members = append(v.Members, m)
	}
	return rows.Err()
}

func (q queries) countCollectionTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	query := `
		SELECT COUNT(*) FROM collection_version
		WHERE bucket_name = $1 AND collection_key = $2 AND tag = $3 AND status = $4`

	var n int
	if err := q.db.QueryRow(ctx, query, bucket, key, tag, verso.StatusUsed).Scan(&n); err != nil {
		return 0, translateError("count collection tag matches", err)
	}
	return n, nil
}

func (q queries) hasActiveVersions(ctx context.Context, bucket string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM object_version
			WHERE bucket_name = $1 AND status <> $2
		) OR EXISTS (
			SELECT 1 FROM collection_version
			WHERE bucket_name = $1 AND status <> $2
		)`

	var active bool
	if err := q.db.QueryRow(ctx, query, bucket, verso.StatusPurged).Scan(&active); err != nil {
		return false, translateError("has active versions", err)
	}
	return active, nil
}

func (q queries) listAuditEntries(ctx context.Context, offset, limit int) ([]*verso.AuditEntry, error) {
	query := `
		SELECT id, bucket_name, object_key, operation, uuid, ts
		FROM audit_entry
		ORDER BY id ASC
		OFFSET $1 LIMIT $2`

	rows, err := q.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, translateError("list audit entries", err)
	}
	defer rows.Close()

	entries := []*verso.AuditEntry{}
	for rows.Next() {
		var e verso.AuditEntry
		if err := rows.Scan(&e.ID, &e.BucketName, &e.Key, &e.Operation, &e.UUID, &e.Timestamp); err != nil {
			return nil, translateError("scan audit entry", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
