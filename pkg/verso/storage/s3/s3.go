// Package s3 provides an S3-compatible blob store. One backing S3 bucket
// holds every logical bucket as a key prefix: blobs live at
// {prefix}{bucket}/{checksum}, temp uploads at {prefix}.tmp/{ref}. Presigned
// GET URLs provide the redirect capability.
package s3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/verso-archive/verso/pkg/verso"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // Backing S3 bucket name
	KeyPrefix       string // Optional key prefix inside the backing bucket
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	PresignDuration int    // Duration in seconds for presigned URLs (default: 3600)
}

// Backend is an S3-compatible implementation of the verso.BlobStore interface
type Backend struct {
	client          *s3.Client
	uploader        *manager.Uploader
	presignClient   *s3.PresignClient
	bucket          string
	keyPrefix       string
	presignDuration time.Duration
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.PresignDuration == 0 {
		config.PresignDuration = 3600
	}

	var awsCfg aws.Config
	var err error
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	return &Backend{
		client:          client,
		uploader:        manager.NewUploader(client),
		presignClient:   s3.NewPresignClient(client),
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

// markerKey is the zero-byte object recording a logical bucket's existence.
// Checksums are hex, so the name can never collide with a blob.
func (b *Backend) markerKey(bucket string) string {
	return b.keyPrefix + bucket + "/.bucket"
}

func (b *Backend) headExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) || strings.Contains(err.Error(), "NotFound") {
		return false, nil
	}
	return false, err
}

func (b *Backend) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return b.headExists(ctx, b.markerKey(bucket))
}

func (b *Backend) CreateBucket(ctx context.Context, bucket string) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.markerKey(bucket)),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket marker: %w", err)
	}
	return nil
}

func (b *Backend) DeleteBucket(ctx context.Context, bucket string) error {
	prefix := b.keyPrefix + bucket + "/"
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list bucket contents: %w", err)
		}
		for _, object := range page.Contents {
			_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(b.bucket),
				Key:    object.Key,
			})
			if err != nil {
				return fmt.Errorf("failed to delete %s: %w", aws.ToString(object.Key), err)
			}
		}
	}
	return nil
}

func (b *Backend) ObjectExists(ctx context.Context, bucket, checksum string) (bool, error) {
	return b.headExists(ctx, b.blobKey(bucket, checksum))
}

func (b *Backend) UploadTemp(ctx context.Context, r io.Reader) (*verso.StagedUpload, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("failed to generate temp ref: %w", err)
	}
	ref := hex.EncodeToString(buf[:])

	dr := verso.NewDigestReader(r)
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.tempKey(ref)),
		Body:   dr,
	})
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
	source := url.PathEscape(b.bucket + "/" + b.tempKey(tempRef))
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(b.blobKey(bucket, checksum)),
		CopySource: aws.String(source),
	})
	if err != nil {
		return fmt.Errorf("failed to promote temp object: %w", err)
	}
	return b.DeleteTemp(ctx, tempRef)
}

func (b *Backend) DeleteTemp(ctx context.Context, tempRef string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.tempKey(tempRef)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete temp object: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, bucket, checksum string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.blobKey(bucket, checksum)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (b *Backend) OpenRead(ctx context.Context, bucket, checksum string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.blobKey(bucket, checksum)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

func (b *Backend) SupportsRedirect() bool {
	return true
}

func (b *Backend) RedirectURLs(ctx context.Context, bucket, checksum string) ([]string, error) {
	request, err := b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.blobKey(bucket, checksum)),
	}, s3.WithPresignExpires(b.presignDuration))
	if err != nil {
		return nil, fmt.Errorf("failed to presign get object: %w", err)
	}
	return []string{request.URL}, nil
}
