package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/database"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

const dispensingColumns = `id, prescription_id, prescription_item_id, medication_id, medication_name,
	patient_id, pharmacy_id, pharmacist_id, quantity_dispensed, quantity_returned, lot_number,
	lot_draws, refill_number, days_supply, status, safety_check, notes, dispensed_at, updated_at`

// DispensingRepository persists dispensing records. Records are never deleted.
type DispensingRepository struct {
	db *database.DB
}

// NewDispensingRepository creates a new dispensing repository
func NewDispensingRepository(db *database.DB) *DispensingRepository {
	return &DispensingRepository{db: db}
}

// Create inserts a dispensing record
func (r *DispensingRepository) Create(ctx context.Context, d *domain.Dispensing) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = domain.DispensingDispensed
	}

	query := `
		INSERT INTO dispensings (
			id, prescription_id, prescription_item_id, medication_id, medication_name,
			patient_id, pharmacy_id, pharmacist_id, quantity_dispensed, lot_number,
			lot_draws, refill_number, days_supply, status, safety_check, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING dispensed_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		d.ID, d.PrescriptionID, d.PrescriptionItemID, d.MedicationID, d.MedicationName,
		d.PatientID, d.PharmacyID, d.PharmacistID, d.Quantity, d.LotNumber,
		d.Draws, d.RefillNumber, d.DaysSupply, d.Status, d.SafetyCheck, d.Notes,
	).Scan(&d.DispensedAt, &d.UpdatedAt)
	return database.MapError(err)
}

// GetByID gets a dispensing record by ID
func (r *DispensingRepository) GetByID(ctx context.Context, id string) (*domain.Dispensing, error) {
	return r.get(ctx, `SELECT `+dispensingColumns+` FROM dispensings WHERE id = $1`, id)
}

// GetForUpdate loads a record and locks it for the surrounding transaction.
func (r *DispensingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Dispensing, error) {
	return r.get(ctx, `SELECT `+dispensingColumns+` FROM dispensings WHERE id = $1 FOR UPDATE`, id)
}

func (r *DispensingRepository) get(ctx context.Context, query, id string) (*domain.Dispensing, error) {
	var d domain.Dispensing
	if err := r.db.Conn(ctx).GetContext(ctx, &d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Dispensing")
		}
		return nil, err
	}
	return &d, nil
}

// ListByPatient lists a patient's dispensings, newest first.
func (r *DispensingRepository) ListByPatient(ctx context.Context, patientID string, limit int) ([]domain.Dispensing, error) {
	var records []domain.Dispensing
	query := `
		SELECT ` + dispensingColumns + `
		FROM dispensings
		WHERE patient_id = $1
		ORDER BY dispensed_at DESC
		LIMIT $2
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &records, query, patientID, limit); err != nil {
		return nil, err
	}
	return records, nil
}

// CurrentMedicationNames returns the distinct medication names dispensed to a
// patient since the given time whose record is still in dispensed status.
func (r *DispensingRepository) CurrentMedicationNames(ctx context.Context, patientID string, since time.Time) ([]string, error) {
	var names []string
	query := `
		SELECT DISTINCT medication_name
		FROM dispensings
		WHERE patient_id = $1 AND status = 'dispensed' AND dispensed_at >= $2
		ORDER BY medication_name
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &names, query, patientID, since); err != nil {
		return nil, err
	}
	return names, nil
}

// UpdateStatus sets the status of a record and returns it.
func (r *DispensingRepository) UpdateStatus(ctx context.Context, id string, status domain.DispensingStatus) (*domain.Dispensing, error) {
	var d domain.Dispensing
	query := `
		UPDATE dispensings SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + dispensingColumns
	if err := r.db.Conn(ctx).GetContext(ctx, &d, query, id, status); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Dispensing")
		}
		return nil, database.MapError(err)
	}
	return &d, nil
}

// RecordReturn marks a record returned, adds to its returned quantity and
// appends note to its notes.
func (r *DispensingRepository) RecordReturn(ctx context.Context, id string, qty int, note string) (*domain.Dispensing, error) {
	var d domain.Dispensing
	query := `
		UPDATE dispensings SET
			status = 'returned',
			quantity_returned = quantity_returned + $2,
			notes = CASE WHEN notes IS NULL OR notes = '' THEN $3 ELSE notes || E'\n' || $3 END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + dispensingColumns
	if err := r.db.Conn(ctx).GetContext(ctx, &d, query, id, qty, note); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Dispensing")
		}
		return nil, database.MapError(err)
	}
	return &d, nil
}
