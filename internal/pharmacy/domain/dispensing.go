package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DispensingStatus is the state of a dispensing record.
type DispensingStatus string

const (
	DispensingDispensed DispensingStatus = "dispensed"
	DispensingReturned  DispensingStatus = "returned"
	DispensingCancelled DispensingStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s DispensingStatus) Valid() bool {
	switch s {
	case DispensingDispensed, DispensingReturned, DispensingCancelled:
		return true
	}
	return false
}

// Dispensing is the record of one fill handed to a patient. It is never
// deleted; only its status and return bookkeeping change.
type Dispensing struct {
	ID                 string           `db:"id" json:"id"`
	PrescriptionID     string           `db:"prescription_id" json:"prescription_id"`
	PrescriptionItemID string           `db:"prescription_item_id" json:"prescription_item_id"`
	MedicationID       string           `db:"medication_id" json:"medication_id"`
	MedicationName     string           `db:"medication_name" json:"medication_name"`
	PatientID          string           `db:"patient_id" json:"patient_id"`
	PharmacyID         string           `db:"pharmacy_id" json:"pharmacy_id"`
	PharmacistID       string           `db:"pharmacist_id" json:"pharmacist_id"`
	Quantity           int              `db:"quantity_dispensed" json:"quantity_dispensed"`
	QuantityReturned   int              `db:"quantity_returned" json:"quantity_returned"`
	LotNumber          *string          `db:"lot_number" json:"lot_number,omitempty"`
	Draws              LotDraws         `db:"lot_draws" json:"lot_draws,omitempty"`
	RefillNumber       int              `db:"refill_number" json:"refill_number"`
	DaysSupply         *int             `db:"days_supply" json:"days_supply,omitempty"`
	Status             DispensingStatus `db:"status" json:"status"`
	SafetyCheck        *SafetySnapshot  `db:"safety_check" json:"safety_check,omitempty"`
	Notes              *string          `db:"notes" json:"notes,omitempty"`
	DispensedAt        time.Time        `db:"dispensed_at" json:"dispensed_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Lot returns the recorded lot number or "".
func (d *Dispensing) Lot() string {
	if d.LotNumber == nil {
		return ""
	}
	return *d.LotNumber
}

// ReturnCredits splits a return of qty across the lots the fill drew from,
// latest draw first and skipping units already returned. A record without a
// draw breakdown credits its recorded lot; one without a lot credits nothing.
func (d *Dispensing) ReturnCredits(qty int) []LotDraw {
	if len(d.Draws) == 0 {
		if lot := d.Lot(); lot != "" {
			return []LotDraw{{LotNumber: lot, Quantity: qty}}
		}
		return nil
	}

	skip := d.QuantityReturned
	var credits []LotDraw
	for i := len(d.Draws) - 1; i >= 0 && qty > 0; i-- {
		open := d.Draws[i].Quantity
		if skip >= open {
			skip -= open
			continue
		}
		open -= skip
		skip = 0

		n := min(open, qty)
		credits = append(credits, LotDraw{LotID: d.Draws[i].LotID, LotNumber: d.Draws[i].LotNumber, Quantity: n})
		qty -= n
	}
	return credits
}

// LotDraws is the per-lot breakdown of a fill. It is stored as JSONB.
type LotDraws []LotDraw

// Value implements driver.Valuer.
func (l LotDraws) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LotDraws) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("lot draws: unsupported type %T", src)
	}
}

// SafetySnapshot is the safety check embedded on a dispensing record. It is
// stored as JSONB.
type SafetySnapshot SafetyCheck

// Value implements driver.Valuer.
func (s *SafetySnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *SafetySnapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("safety snapshot: unsupported type %T", src)
	}
}

// DispenseRequest asks the orchestrator to fill one prescription item.
type DispenseRequest struct {
	PrescriptionID     string  `json:"prescription_id" validate:"required"`
	PrescriptionItemID string  `json:"prescription_item_id" validate:"required"`
	MedicationID       string  `json:"medication_id" validate:"required"`
	PharmacyID         string  `json:"pharmacy_id" validate:"required"`
	PharmacistID       string  `json:"pharmacist_id" validate:"required"`
	Quantity           int     `json:"quantity" validate:"required,gt=0"`
	LotNumber          *string `json:"lot_number,omitempty"`
	DaysSupply         *int    `json:"days_supply,omitempty" validate:"omitempty,gt=0"`
	Notes              *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// DispenseResult is returned by a successful dispense.
type DispenseResult struct {
	Dispensing             *Dispensing             `json:"dispensing"`
	ControlledSubstanceLog *ControlledSubstanceLog `json:"controlled_substance_log,omitempty"`
	SafetyCheck            *SafetyCheck            `json:"safety_check"`
	PDMPCheck              *PDMPResult             `json:"pdmp_check,omitempty"`
	Draws                  []LotDraw               `json:"draws"`
}

// ReturnResult is returned by a successful return.
type ReturnResult struct {
	Success          bool        `json:"success"`
	QuantityReturned int         `json:"quantity_returned"`
	Restocked        bool        `json:"restocked"`
	Dispensing       *Dispensing `json:"dispensing"`
}
