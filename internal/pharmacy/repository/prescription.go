package repository

import (
	"context"
	"database/sql"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/database"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

// PrescriptionRepository reads prescriptions and owns the refill counter.
type PrescriptionRepository struct {
	db *database.DB
}

// NewPrescriptionRepository creates a new prescription repository
func NewPrescriptionRepository(db *database.DB) *PrescriptionRepository {
	return &PrescriptionRepository{db: db}
}

// GetByID loads a prescription with its items.
func (r *PrescriptionRepository) GetByID(ctx context.Context, id string) (*domain.Prescription, error) {
	conn := r.db.Conn(ctx)

	var p domain.Prescription
	query := `
		SELECT id, patient_id, prescriber_id, status, valid_until, written_at
		FROM prescriptions WHERE id = $1
	`
	if err := conn.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Prescription")
		}
		return nil, err
	}

	itemsQuery := `
		SELECT id, prescription_id, medication_name, refills_allowed, refills_used, dea_schedule
		FROM prescription_items WHERE prescription_id = $1
		ORDER BY id
	`
	if err := conn.SelectContext(ctx, &p.Items, itemsQuery, id); err != nil {
		return nil, err
	}

	return &p, nil
}

// IncrementRefillUsed adds exactly one to refills_used. The guard in the WHERE
// clause makes the increment atomic against concurrent dispenses of the same
// item; a lost race surfaces as RefillsExhausted.
func (r *PrescriptionRepository) IncrementRefillUsed(ctx context.Context, itemID string) (int, error) {
	conn := r.db.Conn(ctx)

	var used int
	query := `
		UPDATE prescription_items
		SET refills_used = refills_used + 1
		WHERE id = $1 AND refills_used < refills_allowed
		RETURNING refills_used
	`
	err := conn.QueryRowxContext(ctx, query, itemID).Scan(&used)
	if err == nil {
		return used, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	var item domain.PrescriptionItem
	lookup := `SELECT id, prescription_id, medication_name, refills_allowed, refills_used, dea_schedule FROM prescription_items WHERE id = $1`
	if err := conn.GetContext(ctx, &item, lookup, itemID); err != nil {
		if err == sql.ErrNoRows {
			return 0, errors.NotFound("Prescription item")
		}
		return 0, err
	}
	return 0, errors.RefillsExhausted(item.RefillsUsed, item.RefillsAllowed)
}
