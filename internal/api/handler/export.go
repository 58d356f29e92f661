package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulseboard/pulseboard/internal/api/middleware"
	"github.com/pulseboard/pulseboard/internal/api/models"
	"github.com/pulseboard/pulseboard/internal/api/response"
	"github.com/pulseboard/pulseboard/internal/export"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// ExportHandler handles export job endpoints.
type ExportHandler struct {
	service  *export.Service
	validate *validator.Validate
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service *export.Service) *ExportHandler {
	return &ExportHandler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateExport handles POST /v1/exports - create an export job.
func (h *ExportHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var input models.ExportCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fields, ok := h.validateStruct(&input); !ok {
		response.BadRequest(w, r, "request validation failed", fields)
		return
	}

	format, ok := export.ParseFormat(input.Format)
	if !ok {
		response.BadRequest(w, r, fmt.Sprintf("unknown export format %q", input.Format), nil)
		return
	}

	job, err := h.service.Create(r.Context(), export.CreateRequest{
		ReportID:    input.ReportID,
		Name:        input.Name,
		Format:      format,
		Parameters:  input.Parameters,
		RequestedBy: GetUserID(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/exports/%s", job.ID)
	response.Created(w, r, location, toAPIExport(job))
}

// ListExports handles GET /v1/exports - list the caller's export jobs.
func (h *ExportHandler) ListExports(w http.ResponseWriter, r *http.Request) {
	filter := export.Filter{RequestedBy: GetUserID(r.Context())}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := export.ParseStatus(raw)
		if !ok {
			response.BadRequest(w, r, fmt.Sprintf("unknown status %q", raw), nil)
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("format"); raw != "" {
		format, ok := export.ParseFormat(raw)
		if !ok {
			response.BadRequest(w, r, fmt.Sprintf("unknown export format %q", raw), nil)
			return
		}
		filter.Format = &format
	}

	limit, offset, err := pagination(r)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	jobs, total, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]models.ExportJob, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toAPIExport(job))
	}

	response.JSON(w, r, http.StatusOK, models.PagedExports{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: limit, Offset: offset, Total: total},
	})
}

// GetExport handles GET /v1/exports/{exportId} - get an export job.
func (h *ExportHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportId")
	if exportID == "" {
		response.BadRequest(w, r, "exportId is required", nil)
		return
	}

	job, err := h.service.GetByID(r.Context(), exportID, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAPIExport(job))
}

// DownloadExport handles GET /v1/exports/{exportId}/download - stream the
// artifact of a completed export.
func (h *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportId")
	if exportID == "" {
		response.BadRequest(w, r, "exportId is required", nil)
		return
	}

	meta, err := h.service.DownloadMeta(r.Context(), exportID, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	file, err := os.Open(meta.FilePath)
	if err != nil {
		response.InternalError(w, r, "failed to open export artifact")
		return
	}
	defer file.Close()

	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("X-Export-Id", exportID)
	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.FileSize, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, file)
}

// CancelExport handles PATCH /v1/exports/{exportId}/cancel - cancel a pending
// or running export job.
func (h *ExportHandler) CancelExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportId")
	if exportID == "" {
		response.BadRequest(w, r, "exportId is required", nil)
		return
	}

	job, err := h.service.Cancel(r.Context(), exportID, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAPIExport(job))
}

// RetryExport handles POST /v1/exports/{exportId}/retry - retry a failed
// export job.
func (h *ExportHandler) RetryExport(w http.ResponseWriter, r *http.Request) {
	exportID := chi.URLParam(r, "exportId")
	if exportID == "" {
		response.BadRequest(w, r, "exportId is required", nil)
		return
	}

	job, err := h.service.Retry(r.Context(), exportID, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAPIExport(job))
}

// writeError maps export domain errors to Problem responses.
func (h *ExportHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stateErr *export.UnprocessableStateError
	switch {
	case errors.Is(err, export.ErrNotFound):
		response.NotFound(w, r, "export job not found")
	case errors.Is(err, export.ErrForbidden):
		response.Forbidden(w, r, "export job belongs to another user")
	case errors.Is(err, export.ErrGone):
		response.Gone(w, r, "export artifact has expired")
	case errors.As(err, &stateErr):
		response.UnprocessableEntity(w, r, stateErr.Error())
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

// validateStruct runs struct validation and converts failures to field errors.
func (h *ExportHandler) validateStruct(input any) ([]models.FieldError, bool) {
	err := h.validate.Struct(input)
	if err == nil {
		return nil, true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	fields := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, models.FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed on the %q rule", fe.Tag()),
			Code:    fe.Tag(),
		})
	}
	return fields, false
}

// pagination parses limit/offset query params with bounds applied.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// toAPIExport converts a domain job to its API representation. The artifact
// path stays internal; clients go through the download endpoint.
func toAPIExport(job *export.Job) models.ExportJob {
	out := models.ExportJob{
		ID:          job.ID,
		ReportID:    job.ReportID,
		Name:        job.Name,
		Format:      string(job.Format),
		Status:      string(job.Status),
		Parameters:  job.Parameters,
		RequestedBy: job.RequestedBy,
		FileSize:    job.FileSize,
		RowCount:    job.RowCount,
		Error:       job.Error,
		Attempt:     job.Attempt,
		CreatedAt:   models.Timestamp(job.CreatedAt),
		UpdatedAt:   models.Timestamp(job.UpdatedAt),
	}
	if job.ExpiresAt != nil {
		ts := models.Timestamp(*job.ExpiresAt)
		out.ExpiresAt = &ts
	}
	if job.StartedAt != nil {
		ts := models.Timestamp(*job.StartedAt)
		out.StartedAt = &ts
	}
	if job.CompletedAt != nil {
		ts := models.Timestamp(*job.CompletedAt)
		out.CompletedAt = &ts
	}
	return out
}
