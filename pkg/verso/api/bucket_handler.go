package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/verso-archive/verso/pkg/verso"
)

// CreateBucketRequest is the request body for creating a bucket
type CreateBucketRequest struct {
	Name string `json:"name"`
}

// BucketHandler handles HTTP requests for buckets
type BucketHandler struct {
	service verso.Service
}

// NewBucketHandler creates a new bucket handler
func NewBucketHandler(service verso.Service) *BucketHandler {
	return &BucketHandler{service: service}
}

// CreateBucket creates a new bucket
func (h *BucketHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	var req CreateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bucket, err := h.service.CreateBucket(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Bucket created", "bucket", bucket.Name)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, bucket)
}

// GetBucket retrieves a bucket by name
func (h *BucketHandler) GetBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucketName")

	bucket, err := h.service.GetBucket(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, bucket)
}

// ListBuckets lists all buckets
func (h *BucketHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.service.ListBuckets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if buckets == nil {
		buckets = []*verso.Bucket{}
	}
	render.JSON(w, r, buckets)
}

// DeleteBucket deletes an empty bucket by name
func (h *BucketHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucketName")

	if err := h.service.DeleteBucket(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Bucket deleted", "bucket", name)
	w.WriteHeader(http.StatusNoContent)
}
