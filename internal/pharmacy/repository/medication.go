package repository

import (
	"context"
	"database/sql"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/database"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

// MedicationRepository reads formulary medications.
type MedicationRepository struct {
	db *database.DB
}

// NewMedicationRepository creates a new medication repository
func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

// GetByID gets a medication by ID
func (r *MedicationRepository) GetByID(ctx context.Context, id string) (*domain.Medication, error) {
	var m domain.Medication
	query := `SELECT id, name, generic_name, is_controlled, dea_schedule FROM medications WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &m, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Medication")
		}
		return nil, err
	}
	return &m, nil
}

// PharmacyRepository reads pharmacies.
type PharmacyRepository struct {
	db *database.DB
}

// NewPharmacyRepository creates a new pharmacy repository
func NewPharmacyRepository(db *database.DB) *PharmacyRepository {
	return &PharmacyRepository{db: db}
}

// GetByID gets a pharmacy by ID
func (r *PharmacyRepository) GetByID(ctx context.Context, id string) (*domain.Pharmacy, error) {
	var p domain.Pharmacy
	query := `SELECT id, name, dea_number, ncpdp_id, is_active FROM pharmacies WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Pharmacy")
		}
		return nil, err
	}
	return &p, nil
}
