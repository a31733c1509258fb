package repository

import (
	"context"
	"strings"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/database"
)

// ReferenceRepository reads drug interaction and allergy reference data.
type ReferenceRepository struct {
	db *database.DB
}

// NewReferenceRepository creates a new reference data repository
func NewReferenceRepository(db *database.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// FindInteractions returns reference interactions between two drugs in either
// order, matched case-insensitively by substring.
func (r *ReferenceRepository) FindInteractions(ctx context.Context, drug1, drug2 string) ([]domain.DrugInteraction, error) {
	var interactions []domain.DrugInteraction
	query := `
		SELECT id, drug1, drug2, severity, description, recommendation
		FROM drug_interactions
		WHERE (drug1 ILIKE $1 AND drug2 ILIKE $2)
		   OR (drug1 ILIKE $2 AND drug2 ILIKE $1)
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &interactions, query, containsPattern(drug1), containsPattern(drug2)); err != nil {
		return nil, err
	}
	return interactions, nil
}

// ActiveAllergies returns a patient's active allergy records.
func (r *ReferenceRepository) ActiveAllergies(ctx context.Context, patientID string) ([]domain.DrugAllergy, error) {
	var allergies []domain.DrugAllergy
	query := `
		SELECT id, patient_id, allergen, reaction_type, severity, is_active
		FROM drug_allergies
		WHERE patient_id = $1 AND is_active = true
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &allergies, query, patientID); err != nil {
		return nil, err
	}
	return allergies, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s anywhere in a column. Wildcards in s match literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
