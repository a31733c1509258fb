// Package service holds the dispensing engine: the interaction and allergy
// checker, the controlled substance monitor, the inventory ledger and the
// dispensing orchestrator that composes them.
package service

import (
	"context"
	"time"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/repository"
)

// TxRunner runs fn in a transaction carried by ctx. *database.DB satisfies it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PrescriptionStore is the external prescription store.
type PrescriptionStore interface {
	GetByID(ctx context.Context, id string) (*domain.Prescription, error)
	IncrementRefillUsed(ctx context.Context, itemID string) (int, error)
}

// MedicationStore reads formulary medications.
type MedicationStore interface {
	GetByID(ctx context.Context, id string) (*domain.Medication, error)
}

// PharmacyStore reads pharmacies.
type PharmacyStore interface {
	GetByID(ctx context.Context, id string) (*domain.Pharmacy, error)
}

// InventoryStore persists inventory lots.
type InventoryStore interface {
	Create(ctx context.Context, lot *domain.InventoryLot) error
	GetByID(ctx context.Context, id string) (*domain.InventoryLot, error)
	Update(ctx context.Context, id string, upd domain.InventoryUpdate) (*domain.InventoryLot, error)
	Deactivate(ctx context.Context, id string) error
	LockAvailableLots(ctx context.Context, medicationID, pharmacyID string) ([]domain.InventoryLot, error)
	ListAvailable(ctx context.Context, medicationID, pharmacyID string) ([]domain.InventoryLot, error)
	SumAvailable(ctx context.Context, medicationID, pharmacyID string) (int, error)
	ApplyDraw(ctx context.Context, lotID string, qty int) (int, error)
	Increment(ctx context.Context, medicationID, pharmacyID, lotNumber string, qty int) (*domain.InventoryLot, error)
	ListByPharmacy(ctx context.Context, pharmacyID string, filter domain.InventoryFilter, expiringBefore time.Time) ([]domain.InventoryLot, error)
	ListReorder(ctx context.Context, pharmacyID string) ([]domain.InventoryLot, error)
	ListExpiring(ctx context.Context, pharmacyID string, from, until time.Time) ([]domain.InventoryLot, error)
}

// DispensingStore persists dispensing records.
type DispensingStore interface {
	Create(ctx context.Context, d *domain.Dispensing) error
	GetByID(ctx context.Context, id string) (*domain.Dispensing, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Dispensing, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]domain.Dispensing, error)
	CurrentMedicationNames(ctx context.Context, patientID string, since time.Time) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status domain.DispensingStatus) (*domain.Dispensing, error)
	RecordReturn(ctx context.Context, id string, qty int, note string) (*domain.Dispensing, error)
}

// ControlledLogStore persists the controlled substance register.
type ControlledLogStore interface {
	Create(ctx context.Context, entry *domain.ControlledSubstanceLog) error
	GetByID(ctx context.Context, id string) (*domain.ControlledSubstanceLog, error)
	ListByPatientSince(ctx context.Context, patientID string, since time.Time) ([]domain.ControlledSubstanceLog, error)
	History(ctx context.Context, patientID string, filter domain.HistoryFilter) ([]domain.ControlledSubstanceLog, error)
	ListUnreported(ctx context.Context) ([]domain.ControlledSubstanceLog, error)
	CountUnreported(ctx context.Context) (int, error)
	MarkReported(ctx context.Context, id, reportID string, at time.Time) error
	Statistics(ctx context.Context, rng domain.DateRange) (*domain.PDMPStatistics, error)
}

// ReferenceStore reads interaction and allergy reference data.
type ReferenceStore interface {
	FindInteractions(ctx context.Context, drug1, drug2 string) ([]domain.DrugInteraction, error)
	ActiveAllergies(ctx context.Context, patientID string) ([]domain.DrugAllergy, error)
}

// AuditStore appends audit trail entries.
type AuditStore interface {
	Create(ctx context.Context, entry *repository.AuditEntry) error
}

// EventPublisher emits pharmacy domain events. Implementations are best-effort.
type EventPublisher interface {
	DispensingCompleted(ctx context.Context, d *domain.Dispensing, controlled bool)
	DispensingReturned(ctx context.Context, d *domain.Dispensing, qty int, restocked bool)
	DispensingRejected(ctx context.Context, req *domain.DispenseRequest, err error)
	PDMPReported(ctx context.Context, entry *domain.ControlledSubstanceLog, reportID string)
	LowStock(ctx context.Context, lot *domain.InventoryLot)
}

// Clock returns the current time.
type Clock func() time.Time

type nopEvents struct{}

func (nopEvents) DispensingCompleted(context.Context, *domain.Dispensing, bool)        {}
func (nopEvents) DispensingReturned(context.Context, *domain.Dispensing, int, bool)    {}
func (nopEvents) DispensingRejected(context.Context, *domain.DispenseRequest, error)   {}
func (nopEvents) PDMPReported(context.Context, *domain.ControlledSubstanceLog, string) {}
func (nopEvents) LowStock(context.Context, *domain.InventoryLot)                       {}

func orNop(e EventPublisher) EventPublisher {
	if e == nil {
		return nopEvents{}
	}
	return e
}
