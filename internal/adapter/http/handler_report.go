package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/fixora/auditreport/internal/domain"
	"github.com/fixora/auditreport/internal/usecase"
	apperror "github.com/fixora/auditreport/pkg/error"
)

const maxCompareBody = 1 << 20

// ReportService defines the behavior the handler depends on.
type ReportService interface {
	BuildReport(ctx context.Context, req usecase.ReportRequest) (*usecase.Report, error)
	Summary(ctx context.Context, req usecase.ReportRequest) (*usecase.ReportSummary, error)
	Compare(ctx context.Context, schema string, raw []byte) (*usecase.EventDetail, error)
}

// reportParams are the query string filters of the report endpoints
type reportParams struct {
	Date     string `validate:"omitempty,datetime=2006-01-02"`
	Month    string `validate:"omitempty,datetime=2006-01"`
	Timezone string `validate:"omitempty,timezone"`
}

// ReportHandler handles HTTP requests for change-audit reports
type ReportHandler struct {
	reportService ReportService
	validate      *validator.Validate
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService ReportService) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		validate:      validator.New(),
	}
}

// RegisterRoutes registers report routes
func (h *ReportHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/reports/{schema}", h.GetReport).Methods("GET")
	router.HandleFunc("/reports/{schema}/summary", h.GetSummary).Methods("GET")
	router.HandleFunc("/reports/{schema}/compare", h.Compare).Methods("POST")
}

// GetReport handles one page of the day-grouped report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	report, err := h.reportService.BuildReport(r.Context(), req)
	if err != nil {
		writeAppError(w, apperror.MapError(err))
		return
	}

	writeSuccessResponse(w, http.StatusOK, "Report retrieved successfully", report)
}

// GetSummary handles the dashboard tile counts
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	summary, err := h.reportService.Summary(r.Context(), req)
	if err != nil {
		writeAppError(w, apperror.MapError(err))
		return
	}

	writeSuccessResponse(w, http.StatusOK, "Summary retrieved successfully", summary)
}

// Compare handles the field comparison of one raw event
func (h *ReportHandler) Compare(w http.ResponseWriter, r *http.Request) {
	schema := mux.Vars(r)["schema"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCompareBody+1))
	if err != nil || len(body) == 0 {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(body) > maxCompareBody {
		writeErrorResponse(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body is too large")
		return
	}

	detail, err := h.reportService.Compare(r.Context(), schema, body)
	if err != nil {
		writeAppError(w, apperror.MapError(err))
		return
	}

	writeSuccessResponse(w, http.StatusOK, "Comparison retrieved successfully", detail)
}

func (h *ReportHandler) parseRequest(w http.ResponseWriter, r *http.Request) (usecase.ReportRequest, bool) {
	schema, err := domain.ParseLogSchema(mux.Vars(r)["schema"])
	if err != nil {
		writeAppError(w, apperror.MapError(err))
		return usecase.ReportRequest{}, false
	}

	q := r.URL.Query()
	params := reportParams{
		Date:     strings.TrimSpace(q.Get("date")),
		Month:    strings.TrimSpace(q.Get("month")),
		Timezone: strings.TrimSpace(q.Get("tz")),
	}
	if err := h.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			if field == "timezone" {
				field = "tz"
			}
			writeErrorResponse(w, http.StatusBadRequest, "invalid_"+field, "Invalid "+field+" parameter")
			return usecase.ReportRequest{}, false
		}
		writeErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid query parameters")
		return usecase.ReportRequest{}, false
	}

	page := 1
	perPage := domain.DefaultPerPage

	if pageStr := q.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if perPageStr := q.Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 {
			if pp > domain.MaxPerPage {
				pp = domain.MaxPerPage
			}
			perPage = pp
		}
	}

	req := usecase.ReportRequest{
		Query: domain.LogQuery{
			Schema:   schema,
			Date:     params.Date,
			Month:    params.Month,
			Search:   strings.TrimSpace(q.Get("search")),
			Action:   strings.TrimSpace(q.Get("action")),
			Table:    strings.TrimSpace(q.Get("table")),
			RecordID: strings.TrimSpace(q.Get("record_id")),
			Page:     page,
			PerPage:  perPage,
		},
	}

	if params.Timezone != "" {
		loc, err := time.LoadLocation(params.Timezone)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid_tz", "Invalid tz parameter")
			return usecase.ReportRequest{}, false
		}
		req.Location = loc
	}

	return req, true
}
