// Package minio provides a blob store backed by MinIO or another
// S3-compatible service through the native MinIO client. Layout matches the
// s3 backend: one backing bucket, logical buckets as key prefixes.
package minio

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/verso-archive/verso/pkg/verso"
)

// Config options for the MinIO backend
type Config struct {
	Endpoint        string // host:port of the MinIO server
	Bucket          string // Backing bucket name
	KeyPrefix       string // Optional key prefix inside the backing bucket
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PresignDuration int // Duration in seconds for presigned URLs (default: 3600)
}

// Backend is a MinIO implementation of the verso.BlobStore interface
type Backend struct {
	client          *minio.Client
	bucket          string
	keyPrefix       string
	presignDuration time.Duration
}

// New creates a new MinIO storage backend
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.PresignDuration == 0 {
		config.PresignDuration = 3600
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Backend{
		client:          client,
		bucket:          config.Bucket,
		keyPrefix:       config.KeyPrefix,
		presignDuration: time.Duration(config.PresignDuration) * time.Second,
	}, nil
}

func (b *Backend) blobKey(bucket, checksum string) string {
	return b.keyPrefix + bucket + "/" + checksum
}

func (b *Backend) tempKey(ref string) string {
	return b.keyPrefix + ".tmp/" + ref
}

func (b *Backend) markerKey(bucket string) string {
	return b.keyPrefix + bucket + "/.bucket"
}

func (b *Backend) statExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return false, nil
	}
	return false, err
}

func (b *Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return b.statExists(ctx, b.markerKey(bucket))
}

func (b *Backend) CreateBucket(ctx context.Context, bucket string) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.markerKey(bucket),
		bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket marker: %w", err)
	}
	return nil
}

func (b *Backend) DeleteBucket(ctx context.Context, bucket string) error {
	prefix := b.keyPrefix + bucket + "/"
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return fmt.Errorf("failed to list bucket contents: %w", object.Err)
		}
		if err := b.client.RemoveObject(ctx, b.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete %s: %w", object.Key, err)
		}
	}
	return nil
}

func (b *Backend) ObjectExists(ctx context.Context, bucket, checksum string) (bool, error) {
	return b.statExists(ctx, b.blobKey(bucket, checksum))
}

func (b *Backend) UploadTemp(ctx context.Context, r io.Reader) (*verso.StagedUpload, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("failed to generate temp ref: %w", err)
	}
	ref := hex.EncodeToString(buf[:])

	dr := verso.NewDigestReader(r)
	_, err := b.client.PutObject(ctx, b.bucket, b.tempKey(ref), dr, -1, minio.PutObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to upload temp object: %w", err)
	}

	return &verso.StagedUpload{
		Checksum: dr.Checksum(),
		Size:     dr.Size(),
		TempRef:  ref,
	}, nil
}

func (b *Backend) Promote(ctx context.Context, bucket, tempRef, checksum string) error {
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.bucket, Object: b.blobKey(bucket, checksum)},
		minio.CopySrcOptions{Bucket: b.bucket, Object: b.tempKey(tempRef)})
	if err != nil {
		return fmt.Errorf("failed to promote temp object: %w", err)
	}
	return b.DeleteTemp(ctx, tempRef)
}

func (b *Backend) DeleteTemp(ctx context.Context, tempRef string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, b.tempKey(tempRef), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete temp object: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, bucket, checksum string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, b.blobKey(bucket, checksum), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (b *Backend) OpenRead(ctx context.Context, bucket, checksum string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.bucket, b.blobKey(bucket, checksum), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject is lazy; surface missing blobs now rather than on first read.
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return object, nil
}

func (b *Backend) SupportsRedirect() bool {
	return true
}

func (b *Backend) RedirectURLs(ctx context.Context, bucket, checksum string) ([]string, error) {
	presigned, err := b.client.PresignedGetObject(ctx, b.bucket, b.blobKey(bucket, checksum), b.presignDuration, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("failed to presign get object: %w", err)
	}
	return []string{presigned.String()}, nil
}
