// Package domain holds the pharmacy data model shared by the repositories,
// services and handlers.
package domain

import "time"

// PrescriptionStatus is the lifecycle state of a prescription.
type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
	PrescriptionExpired   PrescriptionStatus = "expired"
)

// Prescription is owned by the prescription service and read here.
type Prescription struct {
	ID           string             `db:"id" json:"id"`
	PatientID    string             `db:"patient_id" json:"patient_id"`
	PrescriberID string             `db:"prescriber_id" json:"prescriber_id"`
	Status       PrescriptionStatus `db:"status" json:"status"`
	ValidUntil   *time.Time         `db:"valid_until" json:"valid_until,omitempty"`
	WrittenAt    time.Time          `db:"written_at" json:"written_at"`
	Items        []PrescriptionItem `db:"-" json:"items"`
}

// Item returns the item with the given id, or nil.
func (p *Prescription) Item(id string) *PrescriptionItem {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return &p.Items[i]
		}
	}
	return nil
}

// ExpiredAt reports whether the prescription is past its valid-until time.
func (p *Prescription) ExpiredAt(now time.Time) bool {
	return p.ValidUntil != nil && p.ValidUntil.Before(now)
}

// PrescriptionItem is one medication line on a prescription.
type PrescriptionItem struct {
	ID             string  `db:"id" json:"id"`
	PrescriptionID string  `db:"prescription_id" json:"prescription_id"`
	MedicationName string  `db:"medication_name" json:"medication_name"`
	RefillsAllowed int     `db:"refills_allowed" json:"refills_allowed"`
	RefillsUsed    int     `db:"refills_used" json:"refills_used"`
	DEASchedule    *string `db:"dea_schedule" json:"dea_schedule,omitempty"`
}

// HasRefillRemaining reports whether another fill may be dispensed.
func (i *PrescriptionItem) HasRefillRemaining() bool {
	return i.RefillsUsed < i.RefillsAllowed
}

// Medication is formulary reference data.
type Medication struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	GenericName *string `db:"generic_name" json:"generic_name,omitempty"`
	Controlled  bool    `db:"is_controlled" json:"is_controlled"`
	DEASchedule *string `db:"dea_schedule" json:"dea_schedule,omitempty"`
}

// Schedule returns the DEA schedule, or "" for non-controlled medications.
func (m *Medication) Schedule() string {
	if m.DEASchedule == nil {
		return ""
	}
	return *m.DEASchedule
}

// Pharmacy is the dispensing location.
type Pharmacy struct {
	ID        string  `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	DEANumber *string `db:"dea_number" json:"dea_number,omitempty"`
	NCPDPID   *string `db:"ncpdp_id" json:"ncpdp_id,omitempty"`
	IsActive  bool    `db:"is_active" json:"is_active"`
}
