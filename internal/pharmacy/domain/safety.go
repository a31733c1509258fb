package domain

import "strings"

// InteractionSeverity grades a drug-drug interaction.
type InteractionSeverity string

const (
	SeverityContraindicated InteractionSeverity = "contraindicated"
	SeveritySevere          InteractionSeverity = "severe"
	SeverityModerate        InteractionSeverity = "moderate"
	SeverityMinor           InteractionSeverity = "minor"
)

// DrugInteraction is a reference pair of interacting drugs.
type DrugInteraction struct {
	ID             string              `db:"id" json:"id"`
	Drug1          string              `db:"drug1" json:"drug1"`
	Drug2          string              `db:"drug2" json:"drug2"`
	Severity       InteractionSeverity `db:"severity" json:"severity"`
	Description    string              `db:"description" json:"description"`
	Recommendation *string             `db:"recommendation" json:"recommendation,omitempty"`
}

// DrugAllergy is a patient allergy record.
type DrugAllergy struct {
	ID           string  `db:"id" json:"id"`
	PatientID    string  `db:"patient_id" json:"patient_id"`
	Allergen     string  `db:"allergen" json:"allergen"`
	ReactionType *string `db:"reaction_type" json:"reaction_type,omitempty"`
	Severity     *string `db:"severity" json:"severity,omitempty"`
	IsActive     bool    `db:"is_active" json:"is_active"`
}

// Critical reports whether the allergy is anaphylactic or severe.
func (a *DrugAllergy) Critical() bool {
	if a.ReactionType != nil && strings.EqualFold(*a.ReactionType, "anaphylaxis") {
		return true
	}
	return a.Severity != nil && strings.EqualFold(*a.Severity, "severe")
}

// InteractionResult is the outcome of a pairwise interaction check.
type InteractionResult struct {
	HasCriticalInteractions bool              `json:"has_critical_interactions"`
	HasSevereInteractions   bool              `json:"has_severe_interactions"`
	HasModerateInteractions bool              `json:"has_moderate_interactions"`
	Interactions            []DrugInteraction `json:"interactions"`
}

// AllergyMatch pairs an allergy record with the medication that triggered it.
type AllergyMatch struct {
	DrugAllergy
	Medication string `json:"medication"`
}

// AllergyResult is the outcome of an allergy check.
type AllergyResult struct {
	HasAllergies         bool           `json:"has_allergies"`
	HasCriticalAllergies bool           `json:"has_critical_allergies"`
	Allergies            []AllergyMatch `json:"allergies"`
}

// SafetyCheck composes the interaction and allergy checks.
type SafetyCheck struct {
	IsSafe           bool              `json:"is_safe"`
	RequiresReview   bool              `json:"requires_review"`
	InteractionCheck InteractionResult `json:"interaction_check"`
	AllergyCheck     AllergyResult     `json:"allergy_check"`
}
