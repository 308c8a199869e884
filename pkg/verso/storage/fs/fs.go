// Package fs provides a filesystem blob store. Blobs live at
// {baseDir}/{bucket}/{checksum}; temp uploads are staged under
// {baseDir}/.tmp and promoted with a rename.
package fs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/verso-archive/verso/pkg/verso"
)

const tempDir = ".tmp"

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing blobs
	URLPrefix string // Optional URL prefix enabling redirect URLs
}

// Backend is a filesystem implementation of the verso.BlobStore interface
type Backend struct {
	baseDir   string
	urlPrefix string
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(filepath.Join(config.BaseDir, tempDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   config.BaseDir,
		urlPrefix: config.URLPrefix,
	}, nil
}

func (b *Backend) bucketPath(bucket string) string {
	return filepath.Join(b.baseDir, bucket)
}

func (b *Backend) blobPath(bucket, checksum string) string {
	return filepath.Join(b.baseDir, bucket, checksum)
}

func (b *Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	info, err := os.Stat(b.bucketPath(bucket))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (b *Backend) CreateBucket(ctx context.Context, bucket string) error {
	return os.MkdirAll(b.bucketPath(bucket), 0755)
}

func (b *Backend) DeleteBucket(ctx context.Context, bucket string) error {
	return os.RemoveAll(b.bucketPath(bucket))
}

func (b *Backend) ObjectExists(ctx context.Context, bucket, checksum string) (bool, error) {
	_, err := os.Stat(b.blobPath(bucket, checksum))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) UploadTemp(ctx context.Context, r io.Reader) (*verso.StagedUpload, error) {
	ref, err := tempRef()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(b.baseDir, tempDir, ref)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	dr := verso.NewDigestReader(r)
	if _, err := io.Copy(file, dr); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return &verso.StagedUpload{
		Checksum: dr.Checksum(),
		Size:     dr.Size(),
		TempRef:  ref,
	}, nil
}

func (b *Backend) Promote(ctx context.Context, bucket, tempRef, checksum string) error {
	target := b.blobPath(bucket, checksum)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}
	if err := os.Rename(filepath.Join(b.baseDir, tempDir, tempRef), target); err != nil {
		return fmt.Errorf("failed to promote temp upload: %w", err)
	}
	return nil
}

func (b *Backend) DeleteTemp(ctx context.Context, tempRef string) error {
	err := os.Remove(filepath.Join(b.baseDir, tempDir, tempRef))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *Backend) Delete(ctx context.Context, bucket, checksum string) error {
	err := os.Remove(b.blobPath(bucket, checksum))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *Backend) OpenRead(ctx context.Context, bucket, checksum string) (io.ReadCloser, error) {
	file, err := os.Open(b.blobPath(bucket, checksum))
	if os.IsNotExist(err) {
		return nil, errors.New("blob not found")
	} else if err != nil {
		return nil, err
	}
	return file, nil
}

func (b *Backend) SupportsRedirect() bool {
	return b.urlPrefix != ""
}

func (b *Backend) RedirectURLs(ctx context.Context, bucket, checksum string) ([]string, error) {
	if b.urlPrefix == "" {
		return nil, errors.New("no url prefix configured for filesystem backend")
	}
	return []string{fmt.Sprintf("%s/%s/%s", b.urlPrefix, bucket, checksum)}, nil
}

func tempRef() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate temp ref: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
