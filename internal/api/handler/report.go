package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulseboard/pulseboard/internal/api/models"
	"github.com/pulseboard/pulseboard/internal/api/response"
	"github.com/pulseboard/pulseboard/internal/report"
)

// ReportHandler handles saved report endpoints.
type ReportHandler struct {
	service  *report.Service
	validate *validator.Validate
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(service *report.Service) *ReportHandler {
	return &ReportHandler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// CreateReport handles POST /v1/reports - create a saved report.
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var input models.ReportCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fields, ok := h.validateStruct(&input); !ok {
		response.BadRequest(w, r, "request validation failed", fields)
		return
	}

	created, err := h.service.Create(r.Context(), report.CreateRequest{
		OwnerID:     GetUserID(r.Context()),
		Name:        input.Name,
		Description: input.Description,
		Query:       input.Query,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/reports/%s", created.ID)
	response.Created(w, r, location, toAPIReport(created))
}

// ListReports handles GET /v1/reports - list the caller's reports.
func (h *ReportHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	reports, total, err := h.service.List(r.Context(), GetUserID(r.Context()), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]models.Report, 0, len(reports))
	for _, rep := range reports {
		items = append(items, toAPIReport(rep))
	}

	response.JSON(w, r, http.StatusOK, models.PagedReports{
		Items: items,
		Meta:  models.PagedResponseMeta{Limit: limit, Offset: offset, Total: total},
	})
}

// GetReport handles GET /v1/reports/{reportId} - get a saved report.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportId")
	if reportID == "" {
		response.BadRequest(w, r, "reportId is required", nil)
		return
	}

	rep, err := h.service.GetByID(r.Context(), reportID, GetUserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAPIReport(rep))
}

// UpdateReport handles PATCH /v1/reports/{reportId} - partially update a
// saved report.
func (h *ReportHandler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportId")
	if reportID == "" {
		response.BadRequest(w, r, "reportId is required", nil)
		return
	}

	var input models.ReportUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fields, ok := h.validateStruct(&input); !ok {
		response.BadRequest(w, r, "request validation failed", fields)
		return
	}

	rep, err := h.service.Update(r.Context(), reportID, GetUserID(r.Context()), report.UpdateRequest{
		Name:        input.Name,
		Description: input.Description,
		Query:       input.Query,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toAPIReport(rep))
}

// DeleteReport handles DELETE /v1/reports/{reportId} - delete a saved report.
func (h *ReportHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportId")
	if reportID == "" {
		response.BadRequest(w, r, "reportId is required", nil)
		return
	}

	if err := h.service.Delete(r.Context(), reportID, GetUserID(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

// writeError maps report domain errors to Problem responses.
func (h *ReportHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, report.ErrNotFound):
		response.NotFound(w, r, "report not found")
	case errors.Is(err, report.ErrForbidden):
		response.Forbidden(w, r, "report belongs to another user")
	default:
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

// validateStruct runs struct validation and converts failures to field errors.
func (h *ReportHandler) validateStruct(input any) ([]models.FieldError, bool) {
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

// toAPIReport converts a domain report to its API representation.
func toAPIReport(rep *report.Report) models.Report {
	return models.Report{
		ID:          rep.ID,
		OwnerID:     rep.OwnerID,
		Name:        rep.Name,
		Description: rep.Description,
		Query:       rep.Query,
		CreatedAt:   models.Timestamp(rep.CreatedAt),
		UpdatedAt:   models.Timestamp(rep.UpdatedAt),
	}
}
