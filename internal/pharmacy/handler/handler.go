// Package handler exposes the dispensing engine over HTTP. Handlers decode and
// validate input, call one service operation and encode the result.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

// Dispenser is implemented by service.DispensingOrchestrator.
type Dispenser interface {
	Dispense(ctx context.Context, req *domain.DispenseRequest) (*domain.DispenseResult, error)
	ReturnMedication(ctx context.Context, dispensingID string, qty int) (*domain.ReturnResult, error)
	GetDispensing(ctx context.Context, id string) (*domain.Dispensing, error)
	UpdateDispensingStatus(ctx context.Context, id string, status domain.DispensingStatus) (*domain.Dispensing, error)
	PatientHistory(ctx context.Context, patientID string, limit int) ([]domain.Dispensing, error)
	CurrentMedications(ctx context.Context, patientID string) ([]string, error)
}

// Ledger is implemented by service.InventoryLedger.
type Ledger interface {
	AddInventory(ctx context.Context, lot *domain.InventoryLot) (*domain.InventoryLot, error)
	GetAvailableQuantity(ctx context.Context, medicationID, pharmacyID string) (*domain.AvailableQuantity, error)
	GetPharmacyInventory(ctx context.Context, pharmacyID string, filter domain.InventoryFilter) ([]domain.InventoryLot, error)
	UpdateInventory(ctx context.Context, id string, upd domain.InventoryUpdate) (*domain.InventoryLot, error)
	DeactivateInventory(ctx context.Context, id string) error
	GetReorderList(ctx context.Context, pharmacyID string) ([]domain.ReorderItem, error)
	GetExpiringMedications(ctx context.Context, pharmacyID string, daysAhead int) ([]domain.InventoryLot, error)
}

// SafetyChecker is implemented by service.InteractionChecker.
type SafetyChecker interface {
	CheckInteractions(ctx context.Context, medications []string) (*domain.InteractionResult, error)
	CheckAllergies(ctx context.Context, patientID string, medications []string) (*domain.AllergyResult, error)
	PerformSafetyCheck(ctx context.Context, patientID string, medications []string) (*domain.SafetyCheck, error)
}

// Monitor is implemented by service.ControlledSubstanceMonitor.
type Monitor interface {
	CheckPDMP(ctx context.Context, patientID, schedule string) (*domain.PDMPResult, error)
	History(ctx context.Context, patientID string, filter domain.HistoryFilter) ([]domain.ControlledSubstanceLog, error)
	Unreported(ctx context.Context) ([]domain.ControlledSubstanceLog, error)
	ReportToPDMP(ctx context.Context, logID string) (*domain.ReportResult, error)
	BulkReportToPDMP(ctx context.Context) (*domain.BulkReportResult, error)
	Statistics(ctx context.Context, rng domain.DateRange) (*domain.PDMPStatistics, error)
}

// queryDate parses an optional date query parameter. Both 2006-01-02 and
// RFC 3339 are accepted.
func queryDate(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Validation(map[string]string{key: "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"})
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
