package domain

import "time"

// InventoryLot is the on-hand quantity of one manufactured lot at a pharmacy.
type InventoryLot struct {
	ID             string    `db:"id" json:"id"`
	MedicationID   string    `db:"medication_id" json:"medication_id"`
	PharmacyID     string    `db:"pharmacy_id" json:"pharmacy_id"`
	LotNumber      string    `db:"lot_number" json:"lot_number"`
	Quantity       int       `db:"quantity_on_hand" json:"quantity_on_hand"`
	ExpirationDate time.Time `db:"expiration_date" json:"expiration_date"`
	ReorderLevel   *int      `db:"reorder_level" json:"reorder_level,omitempty"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AtOrBelowReorder reports whether the lot needs restocking.
func (l *InventoryLot) AtOrBelowReorder() bool {
	return l.ReorderLevel != nil && l.Quantity <= *l.ReorderLevel
}

// LotDraw is the quantity taken from one lot by a decrement.
type LotDraw struct {
	LotID     string `json:"lot_id"`
	LotNumber string `json:"lot_number"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
}

// DecrementResult describes a committed decrement.
type DecrementResult struct {
	Draws []LotDraw `json:"draws"`
	// LowStock holds the touched lots now at or below their reorder level.
	LowStock []InventoryLot `json:"low_stock,omitempty"`
}

// PrimaryLot returns the first lot drawn from, which is recorded on the
// dispensing record.
func (r *DecrementResult) PrimaryLot() string {
	if r == nil || len(r.Draws) == 0 {
		return ""
	}
	return r.Draws[0].LotNumber
}

// Total returns the quantity removed across all lots.
func (r *DecrementResult) Total() int {
	total := 0
	for _, d := range r.Draws {
		total += d.Quantity
	}
	return total
}

// AvailableQuantity summarises stock for a medication at a pharmacy.
type AvailableQuantity struct {
	TotalOnHand    int            `json:"total_on_hand"`
	TotalAvailable int            `json:"total_available"`
	Lots           []InventoryLot `json:"lots"`
}

// ReorderItem is a lot due for reorder with the recommended order quantity.
type ReorderItem struct {
	InventoryLot
	RecommendedOrderQuantity int `json:"recommended_order_quantity"`
}

// InventoryFilter narrows a pharmacy inventory listing.
type InventoryFilter struct {
	MedicationID string
	ExpiringSoon bool
}

// InventoryUpdate is a partial update of a lot. Nil fields are left unchanged.
type InventoryUpdate struct {
	Quantity       *int       `json:"quantity_on_hand,omitempty"`
	ReorderLevel   *int       `json:"reorder_level,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	IsActive       *bool      `json:"is_active,omitempty"`
}
