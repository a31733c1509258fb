package handler

import (
	"net/http"

	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// SafetyHandler exposes the interaction and allergy checks
type SafetyHandler struct {
	checker SafetyChecker
	logger  *logger.Logger
}

// NewSafetyHandler creates a new safety handler
func NewSafetyHandler(checker SafetyChecker, log *logger.Logger) *SafetyHandler {
	return &SafetyHandler{
		checker: checker,
		logger:  log,
	}
}

// SafetyRequest names the medications to check. PatientID is ignored by the
// interaction-only check.
type SafetyRequest struct {
	PatientID   string   `json:"patient_id"`
	Medications []string `json:"medications" validate:"required,min=1,dive,required"`
}

func (h *SafetyHandler) decode(w http.ResponseWriter, r *http.Request, needPatient bool) (*SafetyRequest, bool) {
	var req SafetyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return nil, false
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return nil, false
	}
	if needPatient && req.PatientID == "" {
		httputil.Error(w, r, errors.Validation(map[string]string{"patient_id": "this field is required"}))
		return nil, false
	}
	return &req, true
}

// Interactions checks drug-drug interactions
func (h *SafetyHandler) Interactions(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, false)
	if !ok {
		return
	}
	result, err := h.checker.CheckInteractions(r.Context(), req.Medications)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Allergies checks the patient's allergies
func (h *SafetyHandler) Allergies(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, true)
	if !ok {
		return
	}
	result, err := h.checker.CheckAllergies(r.Context(), req.PatientID, req.Medications)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// Check runs the composed safety check
func (h *SafetyHandler) Check(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, true)
	if !ok {
		return
	}
	result, err := h.checker.PerformSafetyCheck(r.Context(), req.PatientID, req.Medications)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}
