package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resource-management-service/internal/core"
	"resource-management-service/internal/middleware"
	"resource-management-service/internal/platform/logger"
	"resource-management-service/internal/service"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const basePath = "/api/v1/resources"

// immutableFields may only be set on create.
var immutableFields = []string{"type", "countryCode"}

// Handler serves the resource API.
type Handler struct {
	svc *service.ResourceService
	log *logger.Logger
}

func NewHandler(svc *service.ResourceService, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code      string                `json:"code"`
	Message   string                `json:"message"`
	Timestamp time.Time             `json:"timestamp"`
	Path      string                `json:"path"`
	Details   []core.FieldViolation `json:"details,omitempty"`
}

// ExportResponse is the body of POST /export-all.
type ExportResponse struct {
	Message        string    `json:"message"`
	TotalResources int       `json:"totalResources"`
	JobID          uuid.UUID `json:"jobId"`
}

// Create handles POST /api/v1/resources.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req core.CreateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}

	created, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", basePath+"/"+created.ID.String())
	setETag(w, created.Version)
	respondJSON(w, created, http.StatusCreated)
}

// Get handles GET /api/v1/resources/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	resource, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	setETag(w, resource.Version)
	respondJSON(w, resource, http.StatusOK)
}

// List handles GET /api/v1/resources?countryCode=&type=&page=&size=&sort=field,dir.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := parsePageRequest(q.Get("page"), q.Get("size"), q.Get("sort"))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	filter := core.ListFilter{
		CountryCode: q.Get("countryCode"),
		Type:        core.ResourceType(q.Get("type")),
	}

	result, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	respondJSON(w, result, http.StatusOK)
}

// Update handles PUT /api/v1/resources/{id}. An If-Match header carries the expected version.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	version, err := parseIfMatch(r.Header.Get("If-Match"))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "unable to read body", nil)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}
	if err := rejectImmutableFields(fields); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var req core.UpdateResourceRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body", nil)
		return
	}

	updated, err := h.svc.Update(r.Context(), id, version, req)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	setETag(w, updated.Version)
	respondJSON(w, updated, http.StatusOK)
}

// Delete handles DELETE /api/v1/resources/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportAll handles POST /api/v1/resources/export-all.
func (h *Handler) ExportAll(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.ExportAll(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.requestLog(r).Info("bulk export requested", "total", total)
	respondJSON(w, ExportResponse{
		Message:        "Export initiated successfully",
		TotalResources: total,
		JobID:          uuid.New(),
	}, http.StatusAccepted)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid UUID format", nil)
		return uuid.Nil, false
	}
	return id, true
}

// handleServiceError maps the core error taxonomy onto status codes.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := h.requestLog(r)
	var (
		validationErr *core.ValidationError
		duplicateErr  *core.DuplicateCharacteristicError
	)

	switch {
	case errors.Is(err, core.ErrNotFound):
		h.respondError(w, r, http.StatusNotFound, "RESOURCE_NOT_FOUND", err.Error(), nil)
	case errors.As(err, &validationErr):
		h.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", validationErr.Violations)
	case errors.As(err, &duplicateErr):
		h.respondError(w, r, http.StatusBadRequest, "DUPLICATE_CHARACTERISTIC", duplicateErr.Error(), nil)
	case errors.Is(err, core.ErrDuplicateCharacteristic):
		h.respondError(w, r, http.StatusBadRequest, "DUPLICATE_CHARACTERISTIC",
			"Duplicate characteristic: combination of code and type already exists for this resource", nil)
	case errors.Is(err, core.ErrConcurrencyConflict):
		h.respondError(w, r, http.StatusConflict, "CONCURRENT_UPDATE",
			"Resource was modified by another request. Please refresh and retry.", nil)
	default:
		log.Error("internal error", "error", err)
		h.respondError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred. Please try again later.", nil)
		return
	}

	if service.IsClientError(err) {
		log.Debug("request rejected", "error", err)
	}
}

// requestLog scopes the handler logger to one request and its authenticated caller.
func (h *Handler) requestLog(r *http.Request) *logger.Logger {
	log := h.log.With("request_id", chimiddleware.GetReqID(r.Context()), "path", r.URL.Path)
	if sub, ok := middleware.Subject(r.Context()); ok {
		log = log.With("subject", sub)
	}
	return log
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details []core.FieldViolation) {
	respondJSON(w, ErrorResponse{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
		Details:   details,
	}, status)
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// parseIfMatch accepts a bare or quoted version number. An empty header means no check.
func parseIfMatch(header string) (*int64, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	header = strings.TrimPrefix(header, "W/")
	header = strings.Trim(header, `"`)

	v, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid If-Match header: %q", header)
	}
	return &v, nil
}

func parsePageRequest(page, size, sort string) (core.PageRequest, error) {
	req := core.DefaultPageRequest()

	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 0 {
			return req, fmt.Errorf("invalid page: %q", page)
		}
		req.Page = n
	}
	if size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n <= 0 {
			return req, fmt.Errorf("invalid size: %q", size)
		}
		req.Size = n
	}
	if sort != "" {
		field, dir, _ := strings.Cut(sort, ",")
		req.Sort = core.SortField(field)
		if !req.Sort.IsValid() {
			return req, fmt.Errorf("unsupported sort field: %q", field)
		}
		switch strings.ToLower(dir) {
		case "", "asc":
			req.Descending = false
		case "desc":
			req.Descending = true
		default:
			return req, fmt.Errorf("invalid sort direction: %q", dir)
		}
	}
	return req.Normalize(), nil
}

func rejectImmutableFields(fields map[string]json.RawMessage) error {
	v := &core.ValidationError{}
	for _, name := range immutableFields {
		if _, ok := fields[name]; ok {
			v.Violations = append(v.Violations, core.FieldViolation{
				Field:   name,
				Message: "Field cannot be changed after creation",
			})
		}
	}
	if len(v.Violations) == 0 {
		return nil
	}
	return v
}
