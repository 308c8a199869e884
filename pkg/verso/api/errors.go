package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/verso-archive/verso/pkg/verso"
)

// ErrorResponse is the JSON body returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError maps a service error onto the HTTP status taxonomy: client
// errors are 400, not-found 404, conflicts 409, everything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case verso.IsClientError(err), errors.Is(err, errInvalidVersion):
		status = http.StatusBadRequest
	case verso.IsNotFound(err):
		status = http.StatusNotFound
	case verso.IsConflict(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}

// parseFilter reads the version/tag/uuid selector from query parameters.
func parseFilter(r *http.Request) (verso.Filter, error) {
	var f verso.Filter

	q := r.URL.Query()
	if v := q.Get("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errInvalidVersion
		}
		f.Version = &n
	}
	if tag := q.Get("tag"); tag != "" {
		f.Tag = tag
	}
	if u := q.Get("uuid"); u != "" {
		id, err := uuid.Parse(u)
		if err != nil {
			return f, verso.ErrInvalidUUID
		}
		f.UUID = &id
	}

	return f, nil
}

// parseCreateMethod reads the create mode field, defaulting to auto.
func parseCreateMethod(raw string) (verso.CreateMethod, error) {
	if raw == "" {
		return verso.CreateAuto, nil
	}
	method := verso.CreateMethod(raw)
	if !method.IsValid() {
		return "", verso.ErrInvalidCreateMethod
	}
	return method, nil
}

var errInvalidVersion = errors.New("invalid version number")
