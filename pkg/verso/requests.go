package verso

import (
	"io"

	"github.com/google/uuid"
)

// Request DTOs

// CreateObjectRequest contains parameters for creating an object version.
// Content is streamed into the blob store before any metadata is written.
type CreateObjectRequest struct {
	Bucket       string
	Key          string
	Content      io.Reader
	ContentType  string
	DownloadName string
	Tag          string
	UserMetadata map[string]string
	// CreationDate is an optional RFC 3339 timestamp supplied by the
	// client. Empty means "now". An unparseable value is a client error.
	CreationDate string
}

// MemberInput references one object version to be captured by a collection.
// The reference is a filter over the versions of Key: UUID wins over Version
// wins over Tag; an empty reference resolves to the latest used version.
type MemberInput struct {
	Key     string
	Version *int64
	UUID    string
	Tag     string
}

// CreateCollectionRequest contains parameters for creating a collection version.
type CreateCollectionRequest struct {
	Bucket       string
	Key          string
	Tag          string
	UserMetadata map[string]string
	CreationDate string
	Members      []MemberInput
}

// Filter selects one concrete version of a key. Resolution precedence is
// UUID (exact) over Version (exact) over Tag (latest matching used version)
// over the default, which is the latest used version. An empty filter is
// valid for reads but a client error for deletes.
type Filter struct {
	Version *int64
	Tag     string
	UUID    *uuid.UUID
}

// IsEmpty reports whether no selector is set.
func (f Filter) IsEmpty() bool {
	return f.Version == nil && f.Tag == "" && f.UUID == nil
}

// tagOnly reports whether the filter carries a tag and nothing stronger.
func (f Filter) tagOnly() bool {
	return f.UUID == nil && f.Version == nil && f.Tag != ""
}
