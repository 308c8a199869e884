package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/verso-archive/verso/pkg/verso"
)

// AuditHandler handles HTTP requests for the audit trail
type AuditHandler struct {
	service verso.Service
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(service verso.Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// Routes returns the routes for the audit trail
func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListEntries)

	return r
}

// ListEntries lists audit entries in insertion order with offset/limit
// pagination
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	entries, err := h.service.ListAuditEntries(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if entries == nil {
		entries = []*verso.AuditEntry{}
	}
	render.JSON(w, r, entries)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
