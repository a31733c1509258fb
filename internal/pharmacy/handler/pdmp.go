package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// PDMPHandler handles controlled substance monitoring endpoints
type PDMPHandler struct {
	monitor Monitor
	logger  *logger.Logger
}

// NewPDMPHandler creates a new PDMP handler
func NewPDMPHandler(monitor Monitor, log *logger.Logger) *PDMPHandler {
	return &PDMPHandler{
		monitor: monitor,
		logger:  log,
	}
}

// Check runs the abuse and diversion analysis for a patient
func (h *PDMPHandler) Check(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.CheckPDMP(r.Context(), chi.URLParam(r, "patientID"), r.URL.Query().Get("schedule"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// History lists a patient's controlled substance log, newest first
func (h *PDMPHandler) History(w http.ResponseWriter, r *http.Request) {
	var filter domain.HistoryFilter
	var err error

	if filter.StartDate, err = queryDate(r, "start_date"); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if filter.EndDate, err = queryDate(r, "end_date"); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if filter.Limit, err = httputil.QueryInt(r, "limit", 0); err != nil {
		httputil.Error(w, r, err)
		return
	}
	filter.Schedule = r.URL.Query().Get("schedule")

	entries, err := h.monitor.History(r.Context(), chi.URLParam(r, "patientID"), filter)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entries)
}

// Unreported lists log entries awaiting registry submission
func (h *PDMPHandler) Unreported(w http.ResponseWriter, r *http.Request) {
	entries, err := h.monitor.Unreported(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, entries)
}

// Report submits one log entry
func (h *PDMPHandler) Report(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.ReportToPDMP(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// BulkReport submits every unreported entry
func (h *PDMPHandler) BulkReport(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.BulkReportToPDMP(r.Context())
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Statistics summarises logging and reporting over an optional date range
func (h *PDMPHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	var rng domain.DateRange
	var err error

	if rng.StartDate, err = queryDate(r, "start_date"); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if rng.EndDate, err = queryDate(r, "end_date"); err != nil {
		httputil.Error(w, r, err)
		return
	}

	stats, err := h.monitor.Statistics(r.Context(), rng)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}
