package events

import (
	"context"
	"strconv"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
	"github.com/medflow/medflow-pharmacy/pkg/messaging"
)

const source = "pharmacy-service"

// PharmacyEventPublisher publishes pharmacy domain events. Publish failures are
// logged and never returned; a nil publisher drops every event.
type PharmacyEventPublisher struct {
	publisher messaging.EventPublisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher declares the pharmacy exchange and returns a
// publisher bound to it.
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, source, log)
	if err != nil {
		return nil, err
	}
	return New(publisher, log), nil
}

// New wraps an existing publisher.
func New(publisher messaging.EventPublisher, log *logger.Logger) *PharmacyEventPublisher {
	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("events"),
	}
}

func (p *PharmacyEventPublisher) publish(ctx context.Context, eventType string, data any, key, id string) {
	if p == nil || p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Str(key, id).Msg("failed to publish event")
	}
}

// DispensingCompleted publishes a dispensing completed event
func (p *PharmacyEventPublisher) DispensingCompleted(ctx context.Context, d *domain.Dispensing, controlled bool) {
	data := messaging.DispensingCompletedEvent{
		DispensingID:   d.ID,
		PrescriptionID: d.PrescriptionID,
		PatientID:      d.PatientID,
		PharmacyID:     d.PharmacyID,
		MedicationID:   d.MedicationID,
		Quantity:       d.Quantity,
		LotNumber:      d.Lot(),
		RefillNumber:   d.RefillNumber,
		Controlled:     controlled,
	}
	if d.SafetyCheck != nil {
		data.RequiresReview = d.SafetyCheck.RequiresReview
	}
	p.publish(ctx, messaging.EventDispensingCompleted, data, "dispensing_id", d.ID)
}

// DispensingReturned publishes a dispensing returned event
func (p *PharmacyEventPublisher) DispensingReturned(ctx context.Context, d *domain.Dispensing, qty int, restocked bool) {
	data := messaging.DispensingReturnedEvent{
		DispensingID:     d.ID,
		PharmacyID:       d.PharmacyID,
		MedicationID:     d.MedicationID,
		QuantityReturned: qty,
		LotNumber:        d.Lot(),
		Restocked:        restocked,
	}
	p.publish(ctx, messaging.EventDispensingReturned, data, "dispensing_id", d.ID)
}

// DispensingRejected publishes the refusal reason for a dispense request.
func (p *PharmacyEventPublisher) DispensingRejected(ctx context.Context, req *domain.DispenseRequest, err error) {
	data := messaging.DispensingRejectedEvent{
		PrescriptionID:     req.PrescriptionID,
		PrescriptionItemID: req.PrescriptionItemID,
		PharmacyID:         req.PharmacyID,
		PharmacistID:       req.PharmacistID,
		Reason:             errors.Code(err),
		Message:            err.Error(),
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		data.Message = appErr.Message
		if errors.Is(err, errors.ErrPDMPBlock) {
			for i := 1; i <= len(appErr.Details); i++ {
				if a, ok := appErr.Details[alertKey(i)]; ok {
					data.Alerts = append(data.Alerts, a)
				}
			}
		}
	}
	p.publish(ctx, messaging.EventDispensingRejected, data, "prescription_id", req.PrescriptionID)
}

// PDMPReported publishes a registry report confirmation
func (p *PharmacyEventPublisher) PDMPReported(ctx context.Context, entry *domain.ControlledSubstanceLog, reportID string) {
	data := messaging.PDMPReportedEvent{
		LogID:        entry.ID,
		DispensingID: entry.DispensingID,
		PatientID:    entry.PatientID,
		ReportID:     reportID,
	}
	if entry.ReportedAt != nil {
		data.ReportedAt = *entry.ReportedAt
	}
	p.publish(ctx, messaging.EventPDMPReported, data, "log_id", entry.ID)
}

// LowStock publishes a low stock alert for a lot
func (p *PharmacyEventPublisher) LowStock(ctx context.Context, lot *domain.InventoryLot) {
	data := messaging.LowStockEvent{
		LotID:        lot.ID,
		MedicationID: lot.MedicationID,
		PharmacyID:   lot.PharmacyID,
		LotNumber:    lot.LotNumber,
		Quantity:     lot.Quantity,
	}
	if lot.ReorderLevel != nil {
		data.ReorderLevel = *lot.ReorderLevel
	}
	p.publish(ctx, messaging.EventInventoryLowStock, data, "lot_id", lot.ID)
}

func alertKey(i int) string {
	return "alert_" + strconv.Itoa(i)
}
