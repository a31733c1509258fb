package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// InventoryHandler handles inventory lot endpoints
type InventoryHandler struct {
	service      Ledger
	expiringDays int
	logger       *logger.Logger
}

// NewInventoryHandler creates a new inventory handler. expiringDays is the
// window used when a request names none.
func NewInventoryHandler(svc Ledger, expiringDays int, log *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service:      svc,
		expiringDays: expiringDays,
		logger:       log,
	}
}

// AddInventoryRequest creates a lot.
type AddInventoryRequest struct {
	MedicationID   string    `json:"medication_id" validate:"required"`
	PharmacyID     string    `json:"pharmacy_id" validate:"required"`
	LotNumber      string    `json:"lot_number" validate:"required,max=100"`
	Quantity       int       `json:"quantity_on_hand" validate:"gte=0"`
	ExpirationDate time.Time `json:"expiration_date" validate:"required"`
	ReorderLevel   *int      `json:"reorder_level,omitempty" validate:"omitempty,gte=0"`
}

// Create adds an inventory lot
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AddInventoryRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	lot, err := h.service.AddInventory(r.Context(), &domain.InventoryLot{
		MedicationID:   req.MedicationID,
		PharmacyID:     req.PharmacyID,
		LotNumber:      req.LotNumber,
		Quantity:       req.Quantity,
		ExpirationDate: req.ExpirationDate,
		ReorderLevel:   req.ReorderLevel,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, lot)
}

// Update applies a partial update to a lot
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd domain.InventoryUpdate
	if err := httputil.DecodeJSON(r, &upd); err != nil {
		httputil.Error(w, r, err)
		return
	}

	lot, err := h.service.UpdateInventory(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, lot)
}

// Deactivate takes a lot out of service
func (h *InventoryHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateInventory(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// List lists a pharmacy's active lots, optionally for one medication or only
// those expiring soon.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.InventoryFilter{
		MedicationID: r.URL.Query().Get("medication_id"),
		ExpiringSoon: queryBool(r, "expiring_soon"),
	}

	lots, err := h.service.GetPharmacyInventory(r.Context(), chi.URLParam(r, "pharmacyID"), filter)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, lots)
}

// Availability summarises stock for one medication
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	medicationID := r.URL.Query().Get("medication_id")
	if medicationID == "" {
		httputil.Error(w, r, errors.BadRequest("medication_id query parameter is required"))
		return
	}

	qty, err := h.service.GetAvailableQuantity(r.Context(), medicationID, chi.URLParam(r, "pharmacyID"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, qty)
}

// Reorder lists lots due for reorder
func (h *InventoryHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.GetReorderList(r.Context(), chi.URLParam(r, "pharmacyID"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, items)
}

// Expiring lists lots expiring within ?days (default from config, 0 is today)
func (h *InventoryHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	days, err := httputil.QueryInt(r, "days", h.expiringDays)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	lots, err := h.service.GetExpiringMedications(r.Context(), chi.URLParam(r, "pharmacyID"), days)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, lots)
}
