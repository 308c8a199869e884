// Package verso is a versioned, content-addressable object and collection
// repository. Clients write and read named, versioned binary objects, and
// collections that group object versions, inside named buckets.
//
// Every write is journaled to an audit trail, deduplicated by content
// checksum, and kept consistent across two independently failing subsystems:
// a relational metadata store (Repository) and a content-addressed blob store
// (BlobStore). Consistency follows a fixed order: stage content first
// (idempotent), commit metadata second (atomic), and on metadata failure
// compensate by deleting only the staged temp content. A failure may leak an
// unreferenced blob; it never exposes a metadata row pointing at missing
// content.
//
// Concurrency control is single-process: a striped lock table serializes
// writers per (bucket, key), which is how version numbers stay gap-free and
// status transitions stay totally ordered per key.
package verso
