package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventDispensingCompleted = "pharmacy.dispensing.completed"
	EventDispensingReturned  = "pharmacy.dispensing.returned"
	EventDispensingRejected  = "pharmacy.dispensing.rejected"
	EventPDMPReported        = "pharmacy.pdmp.reported"
	EventInventoryLowStock   = "pharmacy.inventory.low_stock"
)

// ExchangePharmacyEvents is the topic exchange all pharmacy events go to.
const ExchangePharmacyEvents = "pharmacy.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// DispensingCompletedEvent is published after a dispense commits.
type DispensingCompletedEvent struct {
	DispensingID   string `json:"dispensing_id"`
	PrescriptionID string `json:"prescription_id"`
	PatientID      string `json:"patient_id"`
	PharmacyID     string `json:"pharmacy_id"`
	MedicationID   string `json:"medication_id"`
	Quantity       int    `json:"quantity"`
	LotNumber      string `json:"lot_number,omitempty"`
	RefillNumber   int    `json:"refill_number"`
	Controlled     bool   `json:"controlled"`
	RequiresReview bool   `json:"requires_review"`
}

// DispensingReturnedEvent is published when medication is returned to stock.
type DispensingReturnedEvent struct {
	DispensingID     string `json:"dispensing_id"`
	PharmacyID       string `json:"pharmacy_id"`
	MedicationID     string `json:"medication_id"`
	QuantityReturned int    `json:"quantity_returned"`
	LotNumber        string `json:"lot_number,omitempty"`
	Restocked        bool   `json:"restocked"`
}

// DispensingRejectedEvent is published when a dispense is refused by a gate.
type DispensingRejectedEvent struct {
	PrescriptionID     string   `json:"prescription_id"`
	PrescriptionItemID string   `json:"prescription_item_id"`
	PharmacyID         string   `json:"pharmacy_id"`
	PharmacistID       string   `json:"pharmacist_id"`
	Reason             string   `json:"reason"`
	Message            string   `json:"message"`
	Alerts             []string `json:"alerts,omitempty"`
}

// PDMPReportedEvent is published when a controlled substance log is reported.
type PDMPReportedEvent struct {
	LogID        string    `json:"log_id"`
	DispensingID string    `json:"dispensing_id"`
	PatientID    string    `json:"patient_id"`
	ReportID     string    `json:"report_id"`
	ReportedAt   time.Time `json:"reported_at"`
}

// LowStockEvent is published when a lot drops to or below its reorder level.
type LowStockEvent struct {
	LotID        string `json:"lot_id"`
	MedicationID string `json:"medication_id"`
	PharmacyID   string `json:"pharmacy_id"`
	LotNumber    string `json:"lot_number"`
	Quantity     int    `json:"quantity"`
	ReorderLevel int    `json:"reorder_level"`
}
