// Package memory provides an in-memory blob store for testing and
// development.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/verso-archive/verso/pkg/verso"
)

// Backend is an in-memory implementation of the verso.BlobStore interface
type Backend struct {
	mu       sync.RWMutex
	buckets  map[string]map[string][]byte // bucket -> checksum -> content
	temps    map[string][]byte
	tempSeq  int
}

// New creates a new in-memory blob store
func New() *Backend {
	return &Backend{
		buckets: make(map[string]map[string][]byte),
		temps:   make(map[string][]byte),
	}
}

func (b *Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.buckets[bucket]
	return exists, nil
}

func (b *Backend) CreateBucket(ctx context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.buckets[bucket]; !exists {
		b.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (b *Backend) DeleteBucket(ctx context.Context, bucket string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.buckets, bucket)
	return nil
}

func (b *Backend) ObjectExists(ctx context.Context, bucket, checksum string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	blobs, exists := b.buckets[bucket]
	if !exists {
		return false, nil
	}
	_, exists = blobs[checksum]
	return exists, nil
}

func (b *Backend) UploadTemp(ctx context.Context, r io.Reader) (*verso.StagedUpload, error) {
	dr := verso.NewDigestReader(r)
	content, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.tempSeq++
	ref := fmt.Sprintf("tmp-%d", b.tempSeq)
	b.temps[ref] = content

	return &verso.StagedUpload{
		Checksum: dr.Checksum(),
		Size:     dr.Size(),
		TempRef:  ref,
	}, nil
}

func (b *Backend) Promote(ctx context.Context, bucket, tempRef, checksum string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	content, exists := b.temps[tempRef]
	if !exists {
		return fmt.Errorf("temp upload not found: %s", tempRef)
	}
	blobs, exists := b.buckets[bucket]
	if !exists {
		return fmt.Errorf("bucket not found: %s", bucket)
	}

	blobs[checksum] = content
	delete(b.temps, tempRef)
	return nil
}

func (b *Backend) DeleteTemp(ctx context.Context, tempRef string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.temps, tempRef)
	return nil
}

func (b *Backend) Delete(ctx context.Context, bucket, checksum string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	blobs, exists := b.buckets[bucket]
	if !exists {
		return fmt.Errorf("bucket not found: %s", bucket)
	}
	delete(blobs, checksum)
	return nil
}

func (b *Backend) OpenRead(ctx context.Context, bucket, checksum string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	blobs, exists := b.buckets[bucket]
	if !exists {
		return nil, fmt.Errorf("bucket not found: %s", bucket)
	}
	content, exists := blobs[checksum]
	if !exists {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (b *Backend) SupportsRedirect() bool {
	return false
}

func (b *Backend) RedirectURLs(ctx context.Context, bucket, checksum string) ([]string, error) {
	return nil, errors.New("redirect urls not supported by memory backend")
}
