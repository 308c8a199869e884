// Package api exposes the versioned repository over HTTP.
//
// Routes (mounted at a prefix of the caller's choosing, typically /api/v1):
//
//	POST   /buckets                                      create bucket
//	GET    /buckets                                      list buckets
//	GET    /buckets/{bucket}                             get bucket
//	DELETE /buckets/{bucket}                             delete empty bucket
//	POST   /buckets/{bucket}/objects                     multipart upload
//	GET    /buckets/{bucket}/objects/{key}               version metadata
//	GET    /buckets/{bucket}/objects/{key}/versions      all versions
//	GET    /buckets/{bucket}/objects/{key}/data          content (or 302)
//	DELETE /buckets/{bucket}/objects/{key}               soft delete / purge
//	POST   /buckets/{bucket}/collections                 create collection
//	GET    /buckets/{bucket}/collections/{key}           version metadata
//	GET    /buckets/{bucket}/collections/{key}/versions  all versions
//	DELETE /buckets/{bucket}/collections/{key}           soft delete
//	GET    /audit                                        audit trail
//
// Reads select a version with version/tag/uuid query parameters; deletes
// require at least one of them.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/verso-archive/verso/pkg/verso"
)

// NewRouter assembles the full API surface on a fresh chi router.
func NewRouter(service verso.Service) chi.Router {
	buckets := NewBucketHandler(service)
	objects := NewObjectHandler(service)
	collections := NewCollectionHandler(service)
	audit := NewAuditHandler(service)

	r := chi.NewRouter()

	r.Route("/buckets", func(r chi.Router) {
		r.Post("/", buckets.CreateBucket)
		r.Get("/", buckets.ListBuckets)

		r.Route("/{bucketName}", func(r chi.Router) {
			r.Get("/", buckets.GetBucket)
			r.Delete("/", buckets.DeleteBucket)

			r.Mount("/objects", objects.Routes())
			r.Mount("/collections", collections.Routes())
		})
	})

	r.Mount("/audit", audit.Routes())

	return r
}
