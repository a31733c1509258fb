package domain

import "time"

// ControlledSubstanceLog is the append-only compliance entry written for every
// controlled dispense. Only the report fields ever change, exactly once.
type ControlledSubstanceLog struct {
	ID                string     `db:"id" json:"id"`
	DispensingID      string     `db:"dispensing_id" json:"dispensing_id"`
	PatientID         string     `db:"patient_id" json:"patient_id"`
	PrescriberID      string     `db:"prescriber_id" json:"prescriber_id"`
	PharmacistID      string     `db:"pharmacist_id" json:"pharmacist_id"`
	PharmacyID        string     `db:"pharmacy_id" json:"pharmacy_id"`
	PharmacyDEANumber *string    `db:"pharmacy_dea_number" json:"pharmacy_dea_number,omitempty"`
	MedicationName    string     `db:"medication_name" json:"medication_name"`
	DEASchedule       string     `db:"dea_schedule" json:"dea_schedule"`
	Quantity          int        `db:"quantity" json:"quantity"`
	DaysSupply        *int       `db:"days_supply" json:"days_supply,omitempty"`
	DispenseDate      time.Time  `db:"dispense_date" json:"dispense_date"`
	PrescriptionDate  time.Time  `db:"prescription_date" json:"prescription_date"`
	RefillNumber      int        `db:"refill_number" json:"refill_number"`
	ReportedToPDMP    bool       `db:"reported_to_pdmp" json:"reported_to_pdmp"`
	ReportedAt        *time.Time `db:"reported_at" json:"reported_at,omitempty"`
	ReportID          *string    `db:"report_id" json:"report_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// SupplyDays returns the recorded days supply, or fallback when none was recorded.
func (l *ControlledSubstanceLog) SupplyDays(fallback int) int {
	if l.DaysSupply != nil && *l.DaysSupply > 0 {
		return *l.DaysSupply
	}
	return fallback
}

// HistoryFilter narrows a controlled substance history query.
type HistoryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Schedule  string
	Limit     int
}

// DateRange bounds statistics queries. Nil ends are open.
type DateRange struct {
	StartDate *time.Time
	EndDate   *time.Time
}
