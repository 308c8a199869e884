package verso

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrBucketNotFound indicates the named bucket does not exist
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrBucketExists indicates a bucket with the name already exists
	ErrBucketExists = errors.New("bucket already exists")

	// ErrBucketNotEmpty indicates the bucket still holds active or
	// soft-deleted versions and cannot be removed
	ErrBucketNotEmpty = errors.New("bucket not empty")

	// ErrObjectNotFound indicates no object version matched the lookup
	ErrObjectNotFound = errors.New("object not found")

	// ErrCollectionNotFound indicates no collection version matched the lookup
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrMemberNotFound indicates a collection member reference did not
	// resolve to an existing object version
	ErrMemberNotFound = errors.New("collection member not found")

	// ErrKeyExists indicates a "new" create against a key that already has a version
	ErrKeyExists = errors.New("key already used")

	// ErrNoVersionTarget indicates a "version" create against a key with no
	// existing version to build on
	ErrNoVersionTarget = errors.New("no original to version")

	// ErrInvalidCreateMethod indicates an unsupported create method value
	ErrInvalidCreateMethod = errors.New("invalid create method")

	// ErrEmptyContent indicates zero-length upload content
	ErrEmptyContent = errors.New("content must not be empty")

	// ErrMissingKey indicates a request without the mandatory key field
	ErrMissingKey = errors.New("key is required")

	// ErrMissingBucket indicates a request without the mandatory bucket field
	ErrMissingBucket = errors.New("bucket is required")

	// ErrInvalidTimestamp indicates an unparseable timestamp in the request
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidUUID indicates an unparseable uuid in a filter or member reference
	ErrInvalidUUID = errors.New("invalid uuid")

	// ErrNoFilter indicates a delete without any filter; deletes never guess
	ErrNoFilter = errors.New("no filter entered")

	// ErrAmbiguousTag indicates a tag-only filter matching more than one
	// active version of the key
	ErrAmbiguousTag = errors.New("more than one tagged version")

	// ErrNotDeletable indicates a soft delete against a version that is not USED
	ErrNotDeletable = errors.New("version is not in used status")

	// ErrRedirectUnsupported indicates the blob store has no redirect capability
	ErrRedirectUnsupported = errors.New("storage backend does not support redirect urls")

	// ErrStorageBackendNotFound indicates a storage backend was not found
	ErrStorageBackendNotFound = errors.New("storage backend not found")
)

// IsClientError reports whether err belongs to the request-validation class
// that is never retried and maps to a 400-equivalent.
func IsClientError(err error) bool {
	for _, e := range []error{
		ErrMissingKey, ErrMissingBucket, ErrInvalidCreateMethod,
		ErrInvalidTimestamp, ErrInvalidUUID, ErrNoFilter,
		ErrAmbiguousTag, ErrEmptyContent, ErrNotDeletable,
		ErrRedirectUnsupported,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err belongs to the 404-equivalent class.
func IsNotFound(err error) bool {
	for _, e := range []error{
		ErrBucketNotFound, ErrObjectNotFound, ErrCollectionNotFound,
		ErrMemberNotFound, ErrStorageBackendNotFound,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err belongs to the 409-equivalent class.
func IsConflict(err error) bool {
	return errors.Is(err, ErrKeyExists) || errors.Is(err, ErrBucketExists) ||
		errors.Is(err, ErrBucketNotEmpty) || errors.Is(err, ErrNoVersionTarget)
}

// ObjectError represents an error from an object versioning operation
type ObjectError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object operation %s failed for %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// CollectionError represents an error from a collection versioning operation
type CollectionError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection operation %s failed for %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// StorageError represents an error from a blob store operation
type StorageError struct {
	Bucket   string
	Checksum string
	Op       string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for checksum %s in bucket %s: %v", e.Op, e.Checksum, e.Bucket, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
