package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/verso-archive/verso/pkg/verso"
)

// maxUploadMemory bounds the in-memory portion of a multipart upload;
// larger bodies spill to temp files.
const maxUploadMemory = 32 << 20

// ObjectHandler handles HTTP requests for object versions within a bucket
type ObjectHandler struct {
	service verso.Service
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(service verso.Service) *ObjectHandler {
	return &ObjectHandler{service: service}
}

// Routes returns the routes for objects. The router is mounted under
// /buckets/{bucketName}/objects.
func (h *ObjectHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateObject)
	r.Get("/{key}", h.GetObject)
	r.Get("/{key}/versions", h.ListVersions)
	r.Get("/{key}/data", h.DownloadObject)
	r.Delete("/{key}", h.DeleteObject)

	return r
}

// CreateObject creates a new object version from a multipart upload.
//
// Form fields: key (required), create (new|version|auto, default auto),
// download_name, tag, creation_date (RFC 3339), metadata (JSON object of
// strings), and the content under the "file" part.
func (h *ObjectHandler) CreateObject(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	method, err := parseCreateMethod(r.FormValue("create"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	req := verso.CreateObjectRequest{
		Bucket:       bucketName,
		Key:          r.FormValue("key"),
		Content:      file,
		ContentType:  r.FormValue("content_type"),
		DownloadName: r.FormValue("download_name"),
		Tag:          r.FormValue("tag"),
		CreationDate: r.FormValue("creation_date"),
	}
	if req.DownloadName == "" {
		req.DownloadName = header.Filename
	}
	if req.ContentType == "" {
		// Multipart writers stamp file parts with application/octet-stream
		// when the caller set nothing, so the generic value is
		// indistinguishable from "unset". Leave it empty so a follow-up
		// version inherits the prior version's content type.
		if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
			req.ContentType = ct
		}
	}
	if meta := r.FormValue("metadata"); meta != "" {
		if err := json.Unmarshal([]byte(meta), &req.UserMetadata); err != nil {
			http.Error(w, "invalid metadata json", http.StatusBadRequest)
			return
		}
	}

	version, err := h.service.CreateObject(r.Context(), method, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Object version created",
		"bucket", bucketName, "key", version.Key,
		"version", version.VersionNumber, "uuid", version.UUID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, version)
}

// GetObject retrieves a single object version selected by the
// version/tag/uuid query parameters.
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	version, err := h.service.GetObject(r.Context(), bucketName, key, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, version)
}

// ListVersions lists every version of a key in ascending version order
func (h *ObjectHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	versions, err := h.service.ListObjectVersions(r.Context(), bucketName, key)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if versions == nil {
		versions = []*verso.ObjectVersion{}
	}
	render.JSON(w, r, versions)
}

// DownloadObject streams the content of the selected version. With
// ?redirect=true and a redirect-capable storage backend the response is a
// 302 to a presigned URL instead of a byte stream.
func (h *ObjectHandler) DownloadObject(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		urls, err := h.service.RedirectURLs(r.Context(), bucketName, key, filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		http.Redirect(w, r, urls[0], http.StatusFound)
		return
	}

	reader, version, err := h.service.DownloadObject(r.Context(), bucketName, key, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer reader.Close()

	if version.ContentType != "" {
		w.Header().Set("Content-Type", version.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if version.DownloadName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", version.DownloadName))
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", version.Size))

	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("Failed to stream object content",
			"bucket", bucketName, "key", key, "error", err)
	}
}

// DeleteObject soft-deletes or purges the selected version. A non-empty
// filter is required; ?purge=true escalates to a purge.
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucketName := chi.URLParam(r, "bucketName")
	key := chi.URLParam(r, "key")

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	purge := r.URL.Query().Get("purge") == "true"

	version, err := h.service.DeleteObject(r.Context(), bucketName, key, filter, purge)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Object version deleted",
		"bucket", bucketName, "key", key,
		"version", version.VersionNumber, "purge", purge)
	render.JSON(w, r, version)
}
