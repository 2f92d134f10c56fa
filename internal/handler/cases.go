package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/workzone/workzone-mcp/internal/apiclient"
	"github.com/workzone/workzone-mcp/internal/middleware"
	"github.com/workzone/workzone-mcp/internal/models"
	"github.com/workzone/workzone-mcp/internal/security"
	"github.com/workzone/workzone-mcp/internal/tools"
	"github.com/workzone/workzone-mcp/internal/workzone"
)

const maxBodyBytes = 1 << 20

// CaseService is the facade behind the REST case routes.
type CaseService interface {
	GetCase(ctx context.Context, caseID string) (string, error)
	CreateCase(ctx context.Context, in workzone.CaseInput) (string, error)
	UpdateCase(ctx context.Context, caseID string, upd workzone.CaseUpdate) (bool, error)
	SearchCases(ctx context.Context, query string) ([]models.Value, error)
	DeleteCase(ctx context.Context, caseID string) (bool, error)
}

// CasesHandler serves /api/v1/cases
type CasesHandler struct {
	svc   CaseService
	audit *security.AuditLogger

	// CircuitRetryAfter is advertised to callers while the backend circuit
	// is open, in seconds.
	CircuitRetryAfter int
}

func NewCasesHandler(svc CaseService, audit *security.AuditLogger) *CasesHandler {
	return &CasesHandler{svc: svc, audit: audit, CircuitRetryAfter: 30}
}

// Routes mounts the case endpoints on r.
func (h *CasesHandler) Routes(r chi.Router) {
	r.Get("/search", h.Search)
	r.Post("/", h.Create)
	r.Get("/{caseId}", h.Get)
	r.Put("/{caseId}", h.Update)
	r.Delete("/{caseId}", h.Delete)
}

// Get handles GET /api/v1/cases/{caseId} and returns the case document as is.
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	start := time.Now()

	data, err := h.svc.GetCase(r.Context(), caseID)
	if err != nil {
		h.fail(w, r, "get", caseID, start, err)
		return
	}
	h.record(r, "get", caseID, http.StatusOK, start)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(data))
}

// Search handles GET /api/v1/cases/search?q=
func (h *CasesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		models.WriteError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	start := time.Now()

	cases, err := h.svc.SearchCases(r.Context(), query)
	if err != nil {
		h.fail(w, r, "search", "", start, err)
		return
	}
	h.record(r, "search", "", http.StatusOK, start)
	models.WriteJSON(w, http.StatusOK, tools.SearchResult(cases))
}

// Create handles POST /api/v1/cases
func (h *CasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCaseRequest(w, r)
	if !ok {
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		models.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}
	start := time.Now()

	id, err := h.svc.CreateCase(r.Context(), workzone.CaseInput{
		Title:       *req.Title,
		Description: req.Description,
		CaseType:    req.CaseType,
	})
	if err != nil {
		h.fail(w, r, "create", "", start, err)
		return
	}
	h.record(r, "create", id, http.StatusCreated, start)
	models.WriteJSON(w, http.StatusCreated, models.CaseCreatedResponse{
		Success: true,
		CaseID:  id,
		Message: "Case created successfully",
	})
}

// Update handles PUT /api/v1/cases/{caseId}
func (h *CasesHandler) Update(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	req, ok := decodeCaseRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()

	updated, err := h.svc.UpdateCase(r.Context(), caseID, workzone.CaseUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.fail(w, r, "update", caseID, start, err)
		return
	}
	h.record(r, "update", caseID, http.StatusOK, start)
	models.WriteJSON(w, http.StatusOK, tools.UpdateResult(updated))
}

// Delete handles DELETE /api/v1/cases/{caseId}
func (h *CasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	start := time.Now()

	deleted, err := h.svc.DeleteCase(r.Context(), caseID)
	if err != nil {
		h.fail(w, r, "delete", caseID, start, err)
		return
	}
	if !deleted {
		h.record(r, "delete", caseID, http.StatusNotFound, start)
		models.WriteJSON(w, http.StatusNotFound, models.CaseResultResponse{Success: false, Message: "Delete failed"})
		return
	}
	h.record(r, "delete", caseID, http.StatusOK, start)
	models.WriteJSON(w, http.StatusOK, models.CaseResultResponse{Success: true, Message: "Case deleted successfully"})
}

func (h *CasesHandler) record(r *http.Request, op, caseID string, status int, start time.Time) {
	h.audit.LogCaseRequest(op, caseID, middleware.APIKeyFromContext(r.Context()), status, time.Since(start))
}

func (h *CasesHandler) fail(w http.ResponseWriter, r *http.Request, op, caseID string, start time.Time, err error) {
	code := statusFor(err)
	log.Error().
		Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Str("operation", op).
		Str("case_id", caseID).
		Int("status", code).
		Msg("case request failed")
	h.record(r, op, caseID, code, start)
	models.WriteErrorResponse(w, errorResponse(code, err, h.CircuitRetryAfter))
}

// errorResponse describes err for REST callers. Backend failures carry
// their outcome kind; an open circuit tells the caller when to come back.
func errorResponse(code int, err error, retryAfter int) models.ErrorResponse {
	resp := models.ErrorResponse{Code: code, Message: err.Error()}
	if errors.Is(err, workzone.ErrOperationFailed) {
		resp.Reason = "operation_failed"
		return resp
	}
	kind := apiclient.KindOf(err)
	if kind == 0 {
		return resp
	}
	resp.Reason = kind.String()
	switch kind {
	case apiclient.Transient:
		resp.Retryable = true
	case apiclient.CircuitOpen:
		resp.Retryable = true
		resp.RetryAfter = retryAfter
	}
	return resp
}

// statusFor maps a facade error onto the status returned to REST callers.
func statusFor(err error) int {
	if errors.Is(err, workzone.ErrOperationFailed) {
		return http.StatusBadGateway
	}
	switch apiclient.KindOf(err) {
	case apiclient.CircuitOpen:
		return http.StatusServiceUnavailable
	case apiclient.Transient:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case apiclient.Canceled:
		return http.StatusServiceUnavailable
	case apiclient.Permanent:
		switch code := apiclient.StatusCodeOf(err); code {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
			return code
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeCaseRequest(w http.ResponseWriter, r *http.Request) (models.CaseRequest, bool) {
	var req models.CaseRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	return req, true
}
