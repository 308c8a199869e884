// Package memory provides an in-memory metadata repository. It backs tests
// and development presets; transactions clone the whole state and swap it in
// on commit, which gives real commit/rollback semantics at the cost of
// serializing transactions behind one mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/verso-archive/verso/pkg/verso"
)

type state struct {
	buckets     map[string]*verso.Bucket
	objects     []*verso.ObjectVersion
	collections []*verso.CollectionVersion
	audits      []*verso.AuditEntry

	nextBucketID     int64
	nextObjectID     int64
	nextCollectionID int64
	nextAuditID      int64
}

func newState() *state {
	return &state{
		buckets:          make(map[string]*verso.Bucket),
		nextBucketID:     1,
		nextObjectID:     1,
		nextCollectionID: 1,
		nextAuditID:      1,
	}
}

func (s *state) clone() *state {
	c := &state{
		buckets:          make(map[string]*verso.Bucket, len(s.buckets)),
		objects:          make([]*verso.ObjectVersion, len(s.objects)),
		collections:      make([]*verso.CollectionVersion, len(s.collections)),
		audits:           make([]*verso.AuditEntry, len(s.audits)),
		nextBucketID:     s.nextBucketID,
		nextObjectID:     s.nextObjectID,
		nextCollectionID: s.nextCollectionID,
		nextAuditID:      s.nextAuditID,
	}
	for name, b := range s.buckets {
		bCopy := *b
		c.buckets[name] = &bCopy
	}
	for i, o := range s.objects {
		oCopy := *o
		c.objects[i] = &oCopy
	}
	for i, col := range s.collections {
		colCopy := *col
		colCopy.Members = append([]verso.CollectionMember(nil), col.Members...)
		c.collections[i] = &colCopy
	}
	for i, a := range s.audits {
		aCopy := *a
		c.audits[i] = &aCopy
	}
	return c
}

// Repository implements verso.Repository with in-memory state
type Repository struct {
	mu sync.Mutex
	st *state
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{st: newState()}
}

// Begin opens a transaction. The repository mutex is held until the
// transaction commits or rolls back, so at most one transaction is open at a
// time; per-key locking in the service keeps this from mattering for
// correctness, only for parallelism.
func (r *Repository) Begin(ctx context.Context) (verso.Tx, error) {
	r.mu.Lock()
	return &tx{repo: r, st: r.st.clone()}, nil
}

// Read operations on the repository lock briefly and delegate to the state.

func (r *Repository) GetBucket(ctx context.Context, name string) (*verso.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getBucket(name)
}

func (r *Repository) ListBuckets(ctx context.Context) ([]*verso.Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listBuckets()
}

func (r *Repository) GetObjectVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.ObjectVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getObjectVersion(bucket, key, f)
}

func (r *Repository) ListObjectVersions(ctx context.Context, bucket, key string) ([]*verso.ObjectVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listObjectVersions(bucket, key)
}

func (r *Repository) CountObjectTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.countObjectTagMatches(bucket, key, tag)
}

func (r *Repository) CountChecksumRefs(ctx context.Context, bucket, checksum string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.countChecksumRefs(bucket, checksum)
}

func (r *Repository) GetCollectionVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.CollectionVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.getCollectionVersion(bucket, key, f)
}

func (r *Repository) ListCollectionVersions(ctx context.Context, bucket, key string) ([]*verso.CollectionVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listCollectionVersions(bucket, key)
}

func (r *Repository) CountCollectionTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.countCollectionTagMatches(bucket, key, tag)
}

func (r *Repository) HasActiveVersions(ctx context.Context, bucket string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.hasActiveVersions(bucket)
}

func (r *Repository) ListAuditEntries(ctx context.Context, offset, limit int) ([]*verso.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.listAuditEntries(offset, limit)
}

// tx is an open transaction over a cloned state.
type tx struct {
	repo *Repository
	st   *state
	done bool
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.repo.st = t.st
	t.repo.mu.Unlock()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.repo.mu.Unlock()
	return nil
}

// Reads inside the transaction observe its staged writes.

func (t *tx) GetBucket(ctx context.Context, name string) (*verso.Bucket, error) {
	return t.st.getBucket(name)
}

func (t *tx) ListBuckets(ctx context.Context) ([]*verso.Bucket, error) {
	return t.st.listBuckets()
}

func (t *tx) GetObjectVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.ObjectVersion, error) {
	return t.st.getObjectVersion(bucket, key, f)
}

func (t *tx) ListObjectVersions(ctx context.Context, bucket, key string) ([]*verso.ObjectVersion, error) {
	return t.st.listObjectVersions(bucket, key)
}

func (t *tx) CountObjectTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	return t.st.countObjectTagMatches(bucket, key, tag)
}

func (t *tx) CountChecksumRefs(ctx context.Context, bucket, checksum string) (int, error) {
	return t.st.countChecksumRefs(bucket, checksum)
}

func (t *tx) GetCollectionVersion(ctx context.Context, bucket, key string, f verso.Filter) (*verso.CollectionVersion, error) {
	return t.st.getCollectionVersion(bucket, key, f)
}

func (t *tx) ListCollectionVersions(ctx context.Context, bucket, key string) ([]*verso.CollectionVersion, error) {
	return t.st.listCollectionVersions(bucket, key)
}

func (t *tx) CountCollectionTagMatches(ctx context.Context, bucket, key, tag string) (int, error) {
	return t.st.countCollectionTagMatches(bucket, key, tag)
}

func (t *tx) HasActiveVersions(ctx context.Context, bucket string) (bool, error) {
	return t.st.hasActiveVersions(bucket)
}

func (t *tx) ListAuditEntries(ctx context.Context, offset, limit int) ([]*verso.AuditEntry, error) {
	return t.st.listAuditEntries(offset, limit)
}

// Write operations

func (t *tx) InsertBucket(ctx context.Context, bucket *verso.Bucket) error {
	if _, exists := t.st.buckets[bucket.Name]; exists {
		return verso.ErrBucketExists
	}
	bucket.ID = t.st.nextBucketID
	t.st.nextBucketID++

	bCopy := *bucket
	t.st.buckets[bucket.Name] = &bCopy
	return nil
}

func (t *tx) RemoveBucket(ctx context.Context, name string) error {
	if _, exists := t.st.buckets[name]; !exists {
		return verso.ErrBucketNotFound
	}
	delete(t.st.buckets, name)

	objects := t.st.objects[:0]
	for _, o := range t.st.objects {
		if o.BucketName != name {
			objects = append(objects, o)
		}
	}
	t.st.objects = objects

	collections := t.st.collections[:0]
	for _, c := range t.st.collections {
		if c.BucketName != name {
			collections = append(collections, c)
		}
	}
	t.st.collections = collections
	return nil
}

func (t *tx) NextObjectVersion(ctx context.Context, bucket, key string) (int64, error) {
	var next int64
	for _, o := range t.st.objects {
		if o.BucketName == bucket && o.Key == key && o.VersionNumber >= next {
			next = o.VersionNumber + 1
		}
	}
	return next, nil
}

func (t *tx) InsertObjectVersion(ctx context.Context, v *verso.ObjectVersion) error {
	for _, o := range t.st.objects {
		if o.BucketName == v.BucketName && o.Key == v.Key && o.VersionNumber == v.VersionNumber {
			return fmt.Errorf("duplicate version %d for %s/%s", v.VersionNumber, v.BucketName, v.Key)
		}
	}
	v.ID = t.st.nextObjectID
	t.st.nextObjectID++

	vCopy := *v
	t.st.objects = append(t.st.objects, &vCopy)
	return nil
}

func (t *tx) MarkObjectDeleted(ctx context.Context, id int64, when time.Time) error {
	return t.setObjectStatus(id, verso.StatusDeleted, when)
}

func (t *tx) MarkObjectPurged(ctx context.Context, id int64, when time.Time) error {
	return t.setObjectStatus(id, verso.StatusPurged, when)
}

func (t *tx) setObjectStatus(id int64, status verso.VersionStatus, when time.Time) error {
	for _, o := range t.st.objects {
		if o.ID == id {
			o.Status = status
			o.LastModified = when
			return nil
		}
	}
	return verso.ErrObjectNotFound
}

func (t *tx) NextCollectionVersion(ctx context.Context, bucket, key string) (int64, error) {
	var next int64
	for _, c := range t.st.collections {
		if c.BucketName == bucket && c.Key == key && c.VersionNumber >= next {
			next = c.VersionNumber + 1
		}
	}
	return next, nil
}

func (t *tx) InsertCollectionVersion(ctx context.Context, v *verso.CollectionVersion) error {
	for _, c := range t.st.collections {
		if c.BucketName == v.BucketName && c.Key == v.Key && c.VersionNumber == v.VersionNumber {
			return fmt.Errorf("duplicate version %d for %s/%s", v.VersionNumber, v.BucketName, v.Key)
		}
	}
	v.ID = t.st.nextCollectionID
	t.st.nextCollectionID++

	// Member rows arrive separately through InsertCollectionMember.
	vCopy := *v
	vCopy.Members = nil
	t.st.collections = append(t.st.collections, &vCopy)
	return nil
}

func (t *tx) InsertCollectionMember(ctx context.Context, collectionID int64, m verso.CollectionMember) error {
	for _, c := range t.st.collections {
		if c.ID == collectionID {
			c.Members = append(c.Members, m)
			return nil
		}
	}
	return verso.ErrCollectionNotFound
}

func (t *tx) MarkCollectionDeleted(ctx context.Context, id int64, when time.Time) error {
	for _, c := range t.st.collections {
		if c.ID == id {
			c.Status = verso.StatusDeleted
			c.LastModified = when
			return nil
		}
	}
	return verso.ErrCollectionNotFound
}

func (t *tx) InsertAuditEntry(ctx context.Context, entry *verso.AuditEntry) error {
	entry.ID = t.st.nextAuditID
	t.st.nextAuditID++

	eCopy := *entry
	t.st.audits = append(t.st.audits, &eCopy)
	return nil
}

// state read helpers

func (s *state) getBucket(name string) (*verso.Bucket, error) {
	b, exists := s.buckets[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", verso.ErrBucketNotFound, name)
	}
	bCopy := *b
	return &bCopy, nil
}

func (s *state) listBuckets() ([]*verso.Bucket, error) {
	result := make([]*verso.Bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		bCopy := *b
		result = append(result, &bCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *state) objectVersions(bucket, key string) []*verso.ObjectVersion {
	var versions []*verso.ObjectVersion
	for _, o := range s.objects {
		if o.BucketName == bucket && o.Key == key {
			versions = append(versions, o)
		}
	}
	return versions
}

func (s *state) getObjectVersion(bucket, key string, f verso.Filter) (*verso.ObjectVersion, error) {
	v := verso.ResolveObjectFilter(s.objectVersions(bucket, key), f)
	if v == nil {
		return nil, fmt.Errorf("%w: %s/%s", verso.ErrObjectNotFound, bucket, key)
	}
	vCopy := *v
	return &vCopy, nil
}

func (s *state) listObjectVersions(bucket, key string) ([]*verso.ObjectVersion, error) {
	versions := s.objectVersions(bucket, key)
	result := make([]*verso.ObjectVersion, len(versions))
	for i, v := range versions {
		vCopy := *v
		result[i] = &vCopy
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VersionNumber < result[j].VersionNumber
	})
	return result, nil
}

func (s *state) countObjectTagMatches(bucket, key, tag string) (int, error) {
	n := 0
	for _, o := range s.objects {
		if o.BucketName == bucket && o.Key == key && o.Tag == tag && o.Status == verso.StatusUsed {
			n++
		}
	}
	return n, nil
}

func (s *state) countChecksumRefs(bucket, checksum string) (int, error) {
	n := 0
	for _, o := range s.objects {
		if o.BucketName == bucket && o.Checksum == checksum &&
			(o.Status == verso.StatusUsed || o.Status == verso.StatusDeleted) {
			n++
		}
	}
	return n, nil
}

func (s *state) collectionVersions(bucket, key string) []*verso.CollectionVersion {
	var versions []*verso.CollectionVersion
	for _, c := range s.collections {
		if c.BucketName == bucket && c.Key == key {
			versions = append(versions, c)
		}
	}
	return versions
}

func (s *state) getCollectionVersion(bucket, key string, f verso.Filter) (*verso.CollectionVersion, error) {
	v := verso.ResolveCollectionFilter(s.collectionVersions(bucket, key), f)
	if v == nil {
		return nil, fmt.Errorf("%w: %s/%s", verso.ErrCollectionNotFound, bucket, key)
	}
	vCopy := *v
	vCopy.Members = append([]verso.CollectionMember(nil), v.Members...)
	return &vCopy, nil
}

func (s *state) listCollectionVersions(bucket, key string) ([]*verso.CollectionVersion, error) {
	versions := s.collectionVersions(bucket, key)
	result := make([]*verso.CollectionVersion, len(versions))
	for i, v := range versions {
		vCopy := *v
		vCopy.Members = append([]verso.CollectionMember(nil), v.Members...)
		result[i] = &vCopy
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VersionNumber < result[j].VersionNumber
	})
	return result, nil
}

func (s *state) countCollectionTagMatches(bucket, key, tag string) (int, error) {
	n := 0
	for _, c := range s.collections {
		if c.BucketName == bucket && c.Key == key && c.Tag == tag && c.Status == verso.StatusUsed {
			n++
		}
	}
	return n, nil
}

func (s *state) hasActiveVersions(bucket string) (bool, error) {
	for _, o := range s.objects {
		if o.BucketName == bucket && o.Status != verso.StatusPurged {
			return true, nil
		}
	}
	for _, c := range s.collections {
		if c.BucketName == bucket && c.Status != verso.StatusPurged {
			return true, nil
		}
	}
	return false, nil
}

func (s *state) listAuditEntries(offset, limit int) ([]*verso.AuditEntry, error) {
	if offset >= len(s.audits) {
		return []*verso.AuditEntry{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(s.audits) {
		end = len(s.audits)
	}
	result := make([]*verso.AuditEntry, 0, end-offset)
	for _, a := range s.audits[offset:end] {
		aCopy := *a
		result = append(result, &aCopy)
	}
	return result, nil
}
