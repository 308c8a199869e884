package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/verso-archive/verso/pkg/verso"
)

// MemberRequest references one object version to capture in a collection
type MemberRequest struct {
	Key     string `json:"key"`
	Version *int64 `json:"version,omitempty"`
	UUID    string `json:"uuid,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

// CreateCollectionRequest is the request body for creating a collection version
type CreateCollectionRequest struct {
	Key          string            `json:"key"`
	Create       string            `json:"create,omitempty"`
	Tag          string            `json:"tag,omitempty"`
	CreationDate string            `json:"creation_date,omitempty"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
	Members      []MemberRequest   `json:"members"`
}

// CollectionHandler handles HTTP requests for collection versions within a bucket
type CollectionHandler struct {
	service verso.Service
}

// NewCollectionHandler creates a new collection handler
func NewCollectionHandler(service verso.Service) *CollectionHandler {
	return &CollectionHandler{service: service}
}

// Routes returns the routes for collections. The router is mounted under
// /buckets/{bucketName}/collections.
func (h *CollectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateCollection)
	r.Get("/{key}", h.GetCollection)
	r.Get("/{key}/versions", h.ListVersions)
	r.Delete("/{key}", h.DeleteCollection)

	return r
}

// CreateCollection creates a new collection version
func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")

	var req CreateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method, err := parseCreateMethod(req.Create)
	if err != nil {
		writeError(w, r, err)
		return
	}

	members := make([]verso.MemberInput, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, verso.MemberInput{
			Key:     m.Key,
			Version: m.Version,
			UUID:    m.UUID,
			Tag:     m.Tag,
		})
	}

	collection, err := h.service.CreateCollection(r.Context(), method, verso.CreateCollectionRequest{
		Bucket:       bucketName,
		Key:          req.Key,
		Tag:          req.Tag,
		UserMetadata: req.UserMetadata,
		CreationDate: req.CreationDate,
		Members:      members,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Collection version created",
		"bucket", bucketName, "key", collection.Key,
		"version", collection.VersionNumber, "members", len(collection.Members))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, collection)
}

// GetCollection retrieves a single collection version selected by the
// version/tag/uuid query parameters.
func (h *CollectionHandler) GetCollection(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	collection, err := h.service.GetCollection(r.Context(), bucketName, key, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, collection)
}

// ListVersions lists every version of a collection key in ascending version order
func (h *CollectionHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	versions, err := h.service.ListCollectionVersions(r.Context(), bucketName, key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if versions == nil {
		versions = []*verso.CollectionVersion{}
	}
	render.JSON(w, r, versions)
}

// DeleteCollection soft-deletes the selected collection version.
// A non-empty filter is required.
func (h *CollectionHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	collection, err := h.service.DeleteCollection(r.Context(), bucketName, key, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Collection version deleted",
		"bucket", bucketName, "key", key, "version", collection.VersionNumber)
	render.JSON(w, r, collection)
}
