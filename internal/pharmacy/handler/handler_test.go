package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/handler"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/httputil"
	"github.com/medflow/medflow-pharmacy/pkg/i18n"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// ============================================================================
// STUB SERVICES
// ============================================================================

type stubDispenser struct {
	dispense func(*domain.DispenseRequest) (*domain.DispenseResult, error)
	returned func(id string, qty int) (*domain.ReturnResult, error)
	lastUser string
}

func (s *stubDispenser) Dispense(ctx context.Context, req *domain.DispenseRequest) (*domain.DispenseResult, error) {
	s.lastUser = httputil.GetUserID(ctx)
	return s.dispense(req)
}

func (s *stubDispenser) ReturnMedication(_ context.Context, id string, qty int) (*domain.ReturnResult, error) {
	return s.returned(id, qty)
}

func (s *stubDispenser) GetDispensing(_ context.Context, id string) (*domain.Dispensing, error) {
	if id != "disp-1" {
		return nil, errors.NotFound("Dispensing")
	}
	return &domain.Dispensing{ID: id, Status: domain.DispensingDispensed}, nil
}

func (s *stubDispenser) UpdateDispensingStatus(_ context.Context, id string, status domain.DispensingStatus) (*domain.Dispensing, error) {
	return &domain.Dispensing{ID: id, Status: status}, nil
}

func (s *stubDispenser) PatientHistory(_ context.Context, patientID string, limit int) ([]domain.Dispensing, error) {
	return []domain.Dispensing{{ID: "disp-1", PatientID: patientID, Quantity: limit}}, nil
}

func (s *stubDispenser) CurrentMedications(context.Context, string) ([]string, error) {
	return []string{"Aspirin"}, nil
}

type stubLedger struct {
	added  *domain.InventoryLot
	filter domain.InventoryFilter
	days   int
}

func (s *stubLedger) AddInventory(_ context.Context, lot *domain.InventoryLot) (*domain.InventoryLot, error) {
	s.added = lot
	lot.ID = "lot-1"
	return lot, nil
}

func (s *stubLedger) GetAvailableQuantity(_ context.Context, medicationID, pharmacyID string) (*domain.AvailableQuantity, error) {
	return &domain.AvailableQuantity{TotalOnHand: 70, TotalAvailable: 70}, nil
}

func (s *stubLedger) GetPharmacyInventory(_ context.Context, _ string, filter domain.InventoryFilter) ([]domain.InventoryLot, error) {
	s.filter = filter
	return []domain.InventoryLot{}, nil
}

func (s *stubLedger) UpdateInventory(_ context.Context, id string, upd domain.InventoryUpdate) (*domain.InventoryLot, error) {
	lot := &domain.InventoryLot{ID: id}
	if upd.Quantity != nil {
		lot.Quantity = *upd.Quantity
	}
	return lot, nil
}

func (s *stubLedger) DeactivateInventory(context.Context, string) error { return nil }

func (s *stubLedger) GetReorderList(context.Context, string) ([]domain.ReorderItem, error) {
	return []domain.ReorderItem{}, nil
}

func (s *stubLedger) GetExpiringMedications(_ context.Context, _ string, days int) ([]domain.InventoryLot, error) {
	s.days = days
	return []domain.InventoryLot{}, nil
}

type stubChecker struct{}

func (stubChecker) CheckInteractions(context.Context, []string) (*domain.InteractionResult, error) {
	return &domain.InteractionResult{Interactions: []domain.DrugInteraction{}}, nil
}

func (stubChecker) CheckAllergies(context.Context, string, []string) (*domain.AllergyResult, error) {
	return &domain.AllergyResult{HasAllergies: true}, nil
}

func (stubChecker) PerformSafetyCheck(context.Context, string, []string) (*domain.SafetyCheck, error) {
	return &domain.SafetyCheck{IsSafe: true}, nil
}

type stubMonitor struct {
	filter domain.HistoryFilter
}

func (s *stubMonitor) CheckPDMP(_ context.Context, patientID, _ string) (*domain.PDMPResult, error) {
	return &domain.PDMPResult{PatientID: patientID, Alerts: []string{}}, nil
}

func (s *stubMonitor) History(_ context.Context, _ string, filter domain.HistoryFilter) ([]domain.ControlledSubstanceLog, error) {
	s.filter = filter
	return []domain.ControlledSubstanceLog{}, nil
}

func (s *stubMonitor) Unreported(context.Context) ([]domain.ControlledSubstanceLog, error) {
	return []domain.ControlledSubstanceLog{}, nil
}

func (s *stubMonitor) ReportToPDMP(_ context.Context, id string) (*domain.ReportResult, error) {
	return nil, errors.AlreadyReported(id, "PDMP-1")
}

func (s *stubMonitor) BulkReportToPDMP(context.Context) (*domain.BulkReportResult, error) {
	return &domain.BulkReportResult{Total: 2, Successful: 1, Failed: 1}, nil
}

func (s *stubMonitor) Statistics(context.Context, domain.DateRange) (*domain.PDMPStatistics, error) {
	return &domain.PDMPStatistics{}, nil
}

// ============================================================================
// HELPERS
// ============================================================================

type fixture struct {
	router    http.Handler
	dispenser *stubDispenser
	ledger    *stubLedger
	monitor   *stubMonitor
}

const testExpiringDays = 30

func newFixture() *fixture {
	log := logger.Nop()
	f := &fixture{
		dispenser: &stubDispenser{},
		ledger:    &stubLedger{},
		monitor:   &stubMonitor{},
	}

	r := chi.NewRouter()
	r.Use(httputil.UserContext)
	r.Use(i18n.Middleware)
	handler.Mount(r, handler.Handlers{
		Dispensing: handler.NewDispensingHandler(f.dispenser, log),
		Inventory:  handler.NewInventoryHandler(f.ledger, testExpiringDays, log),
		Safety:     handler.NewSafetyHandler(stubChecker{}, log),
		PDMP:       handler.NewPDMPHandler(f.monitor, log),
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, httputil.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-7")
	req.Header.Set("X-User-Permissions", `["pharmacy.*"]`)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp httputil.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

const dispenseBody = `{
	"prescription_id": "rx-1",
	"prescription_item_id": "item-1",
	"medication_id": "med-1",
	"pharmacy_id": "pharm-1",
	"quantity": 30
}`

// ============================================================================
// DISPENSING
// ============================================================================

func TestDispense_Created(t *testing.T) {
	f := newFixture()
	f.dispenser.dispense = func(req *domain.DispenseRequest) (*domain.DispenseResult, error) {
		assert.Equal(t, "user-7", req.PharmacistID)
		assert.Equal(t, 30, req.Quantity)
		return &domain.DispenseResult{Dispensing: &domain.Dispensing{ID: "disp-1"}}, nil
	}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", dispenseBody, "X-User-ID", "user-7")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "user-7", f.dispenser.lastUser)
}

func TestDispense_PharmacistIsAuthenticatedUser(t *testing.T) {
	tests := []struct {
		name       string
		pharmacist string
		wantStatus int
	}{
		{"same user", "user-7", http.StatusCreated},
		{"another pharmacist", "user-9", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			called := false
			f.dispenser.dispense = func(req *domain.DispenseRequest) (*domain.DispenseResult, error) {
				called = true
				assert.Equal(t, "user-7", req.PharmacistID)
				return &domain.DispenseResult{Dispensing: &domain.Dispensing{ID: "disp-1"}}, nil
			}

			body := strings.Replace(dispenseBody, `"quantity": 30`, `"quantity": 30, "pharmacist_id": "`+tt.pharmacist+`"`, 1)
			rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusCreated, called)
			if tt.wantStatus == http.StatusForbidden {
				require.NotNil(t, resp.Error)
				assert.Equal(t, "FORBIDDEN", resp.Error.Code)
			}
		})
	}
}

func TestDispense_ValidationFailure(t *testing.T) {
	f := newFixture()

	rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", `{"prescription_id": "rx-1", "quantity": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "Validation failed", resp.Error.Message)
	assert.Contains(t, resp.Error.Details, "prescription_item_id")
	assert.Contains(t, resp.Error.Details, "quantity")
	assert.NotContains(t, resp.Error.Details, "pharmacist_id")
}

func TestDispense_UnknownField(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", `{"bogus": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispense_RejectionsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid state", errors.InvalidState("cancelled"), http.StatusConflict, "INVALID_STATE"},
		{"refills", errors.RefillsExhausted(2, 2), http.StatusConflict, "REFILLS_EXHAUSTED"},
		{"safety", errors.SafetyBlock(), http.StatusUnprocessableEntity, "SAFETY_BLOCK"},
		{"pdmp", errors.PDMPBlock([]string{"Overlapping controlled substance prescriptions detected"}), http.StatusUnprocessableEntity, "PDMP_BLOCK"},
		{"infrastructure", errors.Infrastructure(context.DeadlineExceeded, "db down"), http.StatusServiceUnavailable, "INFRASTRUCTURE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.dispenser.dispense = func(*domain.DispenseRequest) (*domain.DispenseResult, error) {
				return nil, tt.err
			}

			rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", dispenseBody, "X-User-ID", "user-7")
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestDispense_PDMPBlockCarriesAlerts(t *testing.T) {
	f := newFixture()
	f.dispenser.dispense = func(*domain.DispenseRequest) (*domain.DispenseResult, error) {
		return nil, errors.PDMPBlock([]string{"Concurrent opioid and benzodiazepine use detected"})
	}

	_, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", dispenseBody, "X-User-ID", "user-7")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Concurrent opioid and benzodiazepine use detected", resp.Error.Details["alert_1"])
}

func TestReturn(t *testing.T) {
	f := newFixture()
	f.dispenser.returned = func(id string, qty int) (*domain.ReturnResult, error) {
		if qty > 10 {
			return nil, errors.InvalidQuantity("Cannot return more than dispensed quantity")
		}
		return &domain.ReturnResult{Success: true, QuantityReturned: qty}, nil
	}

	rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispensings/disp-1/return", `{"quantity": 4}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, resp = f.do(t, http.MethodPost, "/api/v1/pharmacy/dispensings/disp-1/return", `{"quantity": 11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUANTITY", resp.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/pharmacy/dispensings/disp-1/return", `{"quantity": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDispensing(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/pharmacy/dispensings/disp-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/pharmacy/dispensings/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Dispensing not found", resp.Error.Message)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPatch, "/api/v1/pharmacy/dispensings/disp-1/status", `{"status": "cancelled"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodPatch, "/api/v1/pharmacy/dispensings/disp-1/status", `{"status": "lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Details, "status")
}

func TestPatientEndpoints(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/pharmacy/patients/patient-1/dispensings?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/patients/patient-1/dispensings?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := f.do(t, http.MethodGet, "/api/v1/pharmacy/patients/patient-1/current-medications", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Aspirin"}, resp.Data)
}

func TestPermissions(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		headers []string
		status  int
	}{
		{"no actor", http.MethodGet, "/api/v1/pharmacy/dispensings/disp-1", []string{"X-User-ID", ""}, http.StatusUnauthorized},
		{"read only cannot dispense", http.MethodPost, "/api/v1/pharmacy/dispense", []string{"X-User-Permissions", `["pharmacy.read"]`}, http.StatusForbidden},
		{"read only can read", http.MethodGet, "/api/v1/pharmacy/dispensings/disp-1", []string{"X-User-Permissions", `["pharmacy.read"]`}, http.StatusOK},
		{"pdmp reader cannot report", http.MethodPost, "/api/v1/pharmacy/pdmp/report", []string{"X-User-Permissions", `["pharmacy.pdmp.read"]`}, http.StatusForbidden},
		{"malformed permissions grant nothing", http.MethodGet, "/api/v1/pharmacy/pdmp/unreported", []string{"X-User-Permissions", `pharmacy.*`}, http.StatusForbidden},
		{"full access", http.MethodGet, "/api/v1/pharmacy/pdmp/unreported", []string{"X-User-Permissions", `["*"]`}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rec, _ := f.do(t, tt.method, tt.path, dispenseBody, tt.headers...)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

// ============================================================================
// INVENTORY
// ============================================================================

func TestAddInventory(t *testing.T) {
	f := newFixture()
	body := `{
		"medication_id": "med-1",
		"pharmacy_id": "pharm-1",
		"lot_number": "A100",
		"quantity_on_hand": 50,
		"expiration_date": "2027-01-31T00:00:00Z"
	}`

	rec, _ := f.do(t, http.MethodPost, "/api/v1/pharmacy/inventory", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, f.ledger.added)
	assert.Equal(t, "A100", f.ledger.added.LotNumber)
	assert.Equal(t, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), f.ledger.added.ExpirationDate.UTC())
	assert.Nil(t, f.ledger.added.ReorderLevel)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/pharmacy/inventory", `{"medication_id": "med-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInventoryQueries(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/inventory?medication_id=med-1&expiring_soon=true", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.InventoryFilter{MedicationID: "med-1", ExpiringSoon: true}, f.ledger.filter)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/expiring?days=14", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, f.ledger.days)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/expiring?days=0", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.ledger.days)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/expiring", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testExpiringDays, f.ledger.days)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/availability", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/availability?medication_id=med-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pharmacies/pharm-1/reorder", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPatch, "/api/v1/pharmacy/inventory/lot-1", `{"quantity_on_hand": 12}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/v1/pharmacy/inventory/lot-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// ============================================================================
// SAFETY AND PDMP
// ============================================================================

func TestSafetyEndpoints(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodPost, "/api/v1/pharmacy/safety/interactions", `{"medications": ["Warfarin", "Aspirin"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/safety/allergies", `{"medications": ["Penicillin"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Error.Details, "patient_id")

	rec, _ = f.do(t, http.MethodPost, "/api/v1/pharmacy/safety/check", `{"patient_id": "p1", "medications": ["Penicillin"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/pharmacy/safety/check", `{"patient_id": "p1", "medications": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPDMPEndpoints(t *testing.T) {
	f := newFixture()

	rec, _ := f.do(t, http.MethodGet, "/api/v1/pharmacy/pdmp/patients/patient-1/check?schedule=II", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pdmp/patients/patient-1/history?start_date=2026-01-01&schedule=II&limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.monitor.filter.StartDate)
	assert.Equal(t, 2026, f.monitor.filter.StartDate.Year())
	assert.Nil(t, f.monitor.filter.EndDate)
	assert.Equal(t, "II", f.monitor.filter.Schedule)
	assert.Equal(t, 10, f.monitor.filter.Limit)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pdmp/patients/patient-1/history?end_date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := f.do(t, http.MethodPost, "/api/v1/pharmacy/pdmp/logs/csl-1/report", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_REPORTED", resp.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/pharmacy/pdmp/report", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pdmp/unreported", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/pharmacy/pdmp/statistics?start_date=2026-01-01T00:00:00Z", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorsAreLocalized(t *testing.T) {
	f := newFixture()
	f.dispenser.dispense = func(*domain.DispenseRequest) (*domain.DispenseResult, error) {
		return nil, errors.SafetyBlock()
	}

	_, en := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", dispenseBody, "X-User-ID", "u")
	_, de := f.do(t, http.MethodPost, "/api/v1/pharmacy/dispense", dispenseBody, "X-User-ID", "u", "Accept-Language", "de-DE")

	assert.Equal(t, "Critical drug interaction or allergy detected", en.Error.Message)
	assert.NotEqual(t, en.Error.Message, de.Error.Message)
}
