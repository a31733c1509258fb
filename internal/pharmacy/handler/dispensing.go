package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// DispensingHandler handles dispensing endpoints
type DispensingHandler struct {
	service Dispenser
	logger  *logger.Logger
}

// NewDispensingHandler creates a new dispensing handler
func NewDispensingHandler(svc Dispenser, log *logger.Logger) *DispensingHandler {
	return &DispensingHandler{
		service: svc,
		logger:  log,
	}
}

// ReturnRequest is the body of a return.
type ReturnRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=dispensed returned cancelled"`
}

// Dispense fills one prescription item. The pharmacist is always the
// authenticated user; a body naming someone else is refused.
func (h *DispensingHandler) Dispense(w http.ResponseWriter, r *http.Request) {
	var req domain.DispenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	userID := httputil.GetUserID(r.Context())
	if req.PharmacistID != "" && req.PharmacistID != userID {
		httputil.Error(w, r, errors.Forbidden("Cannot dispense on behalf of another pharmacist"))
		return
	}
	req.PharmacistID = userID
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := h.service.Dispense(r.Context(), &req)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.Created(w, result)
}

// Get gets a dispensing record by ID
func (h *DispensingHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDispensing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, d)
}

// Return records a return and restocks the original lot.
func (h *DispensingHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := h.service.ReturnMedication(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// UpdateStatus changes a dispensing record's status
func (h *DispensingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	d, err := h.service.UpdateDispensingStatus(r.Context(), chi.URLParam(r, "id"), domain.DispensingStatus(req.Status))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, d)
}

// PatientHistory lists a patient's dispensings, newest first
func (h *DispensingHandler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	records, err := h.service.PatientHistory(r.Context(), chi.URLParam(r, "patientID"), limit)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, records)
}

// CurrentMedications lists the patient's current medication names
func (h *DispensingHandler) CurrentMedications(w http.ResponseWriter, r *http.Request) {
	names, err := h.service.CurrentMedications(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, names)
}
