package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
)

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Pharmacy creates a pharmacy fixture with defaults
func (f *FixtureFactory) Pharmacy(opts ...func(*domain.Pharmacy)) domain.Pharmacy {
	seq := f.nextSeq()
	p := domain.Pharmacy{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("Test Pharmacy %d", seq),
		DEANumber: PtrString(fmt.Sprintf("AB%07d", seq)),
		IsActive:  true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Medication creates a non-controlled medication fixture
func (f *FixtureFactory) Medication(opts ...func(*domain.Medication)) domain.Medication {
	seq := f.nextSeq()
	m := domain.Medication{
		ID:   uuid.New().String(),
		Name: fmt.Sprintf("Medication %d", seq),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Controlled marks a medication as controlled under the given schedule
func Controlled(schedule string) func(*domain.Medication) {
	return func(m *domain.Medication) {
		m.Controlled = true
		m.DEASchedule = &schedule
	}
}

// Named sets the medication name
func Named(name string) func(*domain.Medication) {
	return func(m *domain.Medication) {
		m.Name = name
	}
}

// Prescription creates an active prescription with one item for medicationName
func (f *FixtureFactory) Prescription(medicationName string, refillsAllowed int, opts ...func(*domain.Prescription)) domain.Prescription {
	f.nextSeq()
	p := domain.Prescription{
		ID:           uuid.New().String(),
		PatientID:    uuid.New().String(),
		PrescriberID: uuid.New().String(),
		Status:       domain.PrescriptionActive,
		WrittenAt:    time.Now().Add(-24 * time.Hour).UTC(),
	}
	p.Items = []domain.PrescriptionItem{{
		ID:             uuid.New().String(),
		PrescriptionID: p.ID,
		MedicationName: medicationName,
		RefillsAllowed: refillsAllowed,
	}}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Lot creates an inventory lot fixture
func (f *FixtureFactory) Lot(medicationID, pharmacyID string, qty int, expiresIn time.Duration) domain.InventoryLot {
	seq := f.nextSeq()
	return domain.InventoryLot{
		ID:             uuid.New().String(),
		MedicationID:   medicationID,
		PharmacyID:     pharmacyID,
		LotNumber:      fmt.Sprintf("LOT-%04d", seq),
		Quantity:       qty,
		ExpirationDate: time.Now().Add(expiresIn).UTC().Truncate(24 * time.Hour),
		ReorderLevel:   PtrInt(10),
		IsActive:       true,
	}
}

// InsertPharmacy inserts a pharmacy fixture
func InsertPharmacy(ctx context.Context, db *sqlx.DB, p domain.Pharmacy) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO pharmacies (id, name, dea_number, ncpdp_id, is_active) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.DEANumber, p.NCPDPID, p.IsActive)
	return err
}

// InsertMedication inserts a medication fixture
func InsertMedication(ctx context.Context, db *sqlx.DB, m domain.Medication) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO medications (id, name, generic_name, is_controlled, dea_schedule) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.GenericName, m.Controlled, m.DEASchedule)
	return err
}

// InsertPrescription inserts a prescription and its items
func InsertPrescription(ctx context.Context, db *sqlx.DB, p domain.Prescription) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO prescriptions (id, patient_id, prescriber_id, status, valid_until, written_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PatientID, p.PrescriberID, p.Status, p.ValidUntil, p.WrittenAt)
	if err != nil {
		return err
	}
	for _, item := range p.Items {
		_, err := db.ExecContext(ctx,
			`INSERT INTO prescription_items (id, prescription_id, medication_name, refills_allowed, refills_used, dea_schedule) VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, p.ID, item.MedicationName, item.RefillsAllowed, item.RefillsUsed, item.DEASchedule)
		if err != nil {
			return err
		}
	}
	return nil
}
