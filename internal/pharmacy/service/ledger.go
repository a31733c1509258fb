package service

import (
	"context"
	"time"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/config"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
	"github.com/medflow/medflow-pharmacy/pkg/metrics"
)

// InventoryLedger owns every mutation of inventory lots. Cross-lot decrements
// follow FEFO: earliest expiration first.
type InventoryLedger struct {
	tx      TxRunner
	lots    InventoryStore
	events  EventPublisher
	cfg     config.InventoryConfig
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     Clock
}

// NewInventoryLedger creates a ledger.
func NewInventoryLedger(tx TxRunner, lots InventoryStore, events EventPublisher, cfg config.InventoryConfig, m *metrics.Metrics, log *logger.Logger) *InventoryLedger {
	return &InventoryLedger{
		tx:      tx,
		lots:    lots,
		events:  orNop(events),
		cfg:     cfg,
		metrics: m,
		logger:  log.WithComponent("inventory_ledger"),
		now:     time.Now,
	}
}

// CheckAvailability reports whether active stock covers qty. It holds no
// reservation; Decrement re-verifies under lock.
func (l *InventoryLedger) CheckAvailability(ctx context.Context, medicationID, pharmacyID string, qty int) (bool, error) {
	total, err := l.Available(ctx, medicationID, pharmacyID)
	if err != nil {
		return false, err
	}
	return total >= qty, nil
}

// Available sums stock across active lots.
func (l *InventoryLedger) Available(ctx context.Context, medicationID, pharmacyID string) (int, error) {
	total, err := l.lots.SumAvailable(ctx, medicationID, pharmacyID)
	if err != nil {
		return 0, infra(err, "failed to check inventory availability")
	}
	return total, nil
}

// GetAvailableQuantity summarises active stock for a medication at a pharmacy.
func (l *InventoryLedger) GetAvailableQuantity(ctx context.Context, medicationID, pharmacyID string) (*domain.AvailableQuantity, error) {
	lots, err := l.lots.ListAvailable(ctx, medicationID, pharmacyID)
	if err != nil {
		return nil, infra(err, "failed to list inventory lots")
	}
	if lots == nil {
		lots = []domain.InventoryLot{}
	}

	total := 0
	for _, lot := range lots {
		total += lot.Quantity
	}
	return &domain.AvailableQuantity{TotalOnHand: total, TotalAvailable: total, Lots: lots}, nil
}

// Decrement removes qty from the medication's stock at a pharmacy in one
// transaction. A preferred lot holding enough is drawn from alone; otherwise
// lots are drawn in FEFO order. Insufficient stock fails before any lot is
// touched.
func (l *InventoryLedger) Decrement(ctx context.Context, medicationID, pharmacyID string, qty int, preferredLot string) (*domain.DecrementResult, error) {
	var result *domain.DecrementResult
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = l.decrement(ctx, medicationID, pharmacyID, qty, preferredLot)
		return err
	})
	if err != nil {
		return nil, infra(err, "failed to decrement inventory")
	}

	l.notifyLowStock(ctx, result)
	return result, nil
}

// decrement must run inside a transaction: the lots it reads stay locked until
// that transaction ends.
func (l *InventoryLedger) decrement(ctx context.Context, medicationID, pharmacyID string, qty int, preferredLot string) (*domain.DecrementResult, error) {
	started := l.now()
	if qty <= 0 {
		return nil, errors.InvalidQuantity("quantity must be greater than zero")
	}

	lots, err := l.lots.LockAvailableLots(ctx, medicationID, pharmacyID)
	if err != nil {
		l.metrics.ObserveDecrement("error", started)
		return nil, err
	}

	draws, err := allocate(lots, qty, preferredLot)
	if err != nil {
		l.metrics.ObserveDecrement("insufficient", started)
		return nil, err
	}

	byID := make(map[string]domain.InventoryLot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	result := &domain.DecrementResult{Draws: draws}
	for i := range result.Draws {
		d := &result.Draws[i]
		remaining, err := l.lots.ApplyDraw(ctx, d.LotID, d.Quantity)
		if err != nil {
			l.metrics.ObserveDecrement("error", started)
			return nil, err
		}
		d.Remaining = remaining

		lot := byID[d.LotID]
		lot.Quantity = remaining
		if lot.AtOrBelowReorder() {
			result.LowStock = append(result.LowStock, lot)
		}
	}

	l.metrics.ObserveDecrement("success", started)
	l.logger.Debug().
		Str("medication_id", medicationID).
		Str("pharmacy_id", pharmacyID).
		Int("quantity", qty).
		Int("lots", len(draws)).
		Msg("inventory decremented")
	return result, nil
}

// allocate plans the draws for qty against lots already in FEFO order.
func allocate(lots []domain.InventoryLot, qty int, preferredLot string) ([]domain.LotDraw, error) {
	total := 0
	for _, lot := range lots {
		total += lot.Quantity
	}
	if total < qty {
		return nil, errors.InsufficientInventory(total, qty)
	}

	if preferredLot != "" {
		for _, lot := range lots {
			if lot.LotNumber == preferredLot && lot.Quantity >= qty {
				return []domain.LotDraw{{LotID: lot.ID, LotNumber: lot.LotNumber, Quantity: qty}}, nil
			}
		}
	}

	var draws []domain.LotDraw
	need := qty
	for _, lot := range lots {
		if need == 0 {
			break
		}
		take := min(need, lot.Quantity)
		if take <= 0 {
			continue
		}
		draws = append(draws, domain.LotDraw{LotID: lot.ID, LotNumber: lot.LotNumber, Quantity: take})
		need -= take
	}
	return draws, nil
}

func (l *InventoryLedger) notifyLowStock(ctx context.Context, result *domain.DecrementResult) {
	if result == nil {
		return
	}
	for i := range result.LowStock {
		lot := &result.LowStock[i]
		l.metrics.IncLowStock()
		l.events.LowStock(ctx, lot)
		l.logger.Warn().
			Str("lot_id", lot.ID).
			Str("lot_number", lot.LotNumber).
			Int("quantity", lot.Quantity).
			Msg("lot at or below reorder level")
	}
}

// Increment credits qty back to an existing lot and reactivates it.
func (l *InventoryLedger) Increment(ctx context.Context, medicationID, pharmacyID string, qty int, lotNumber string) (*domain.InventoryLot, error) {
	if qty <= 0 {
		return nil, errors.InvalidQuantity("quantity must be greater than zero")
	}
	lot, err := l.lots.Increment(ctx, medicationID, pharmacyID, lotNumber, qty)
	if err != nil {
		return nil, infra(err, "failed to increment inventory")
	}
	return lot, nil
}

// AddInventory creates a lot. The reorder level defaults from config.
func (l *InventoryLedger) AddInventory(ctx context.Context, lot *domain.InventoryLot) (*domain.InventoryLot, error) {
	if lot.Quantity < 0 {
		return nil, errors.InvalidQuantity("quantity must not be negative")
	}
	if lot.ReorderLevel == nil {
		level := l.cfg.DefaultReorderLevel
		lot.ReorderLevel = &level
	}
	lot.IsActive = true

	if err := l.lots.Create(ctx, lot); err != nil {
		return nil, infra(err, "failed to add inventory")
	}
	l.logger.Info().
		Str("lot_id", lot.ID).
		Str("medication_id", lot.MedicationID).
		Str("pharmacy_id", lot.PharmacyID).
		Int("quantity", lot.Quantity).
		Msg("inventory lot added")
	return lot, nil
}

// GetPharmacyInventory lists active lots at a pharmacy in FEFO order.
func (l *InventoryLedger) GetPharmacyInventory(ctx context.Context, pharmacyID string, filter domain.InventoryFilter) ([]domain.InventoryLot, error) {
	until := l.now().AddDate(0, 0, l.cfg.ExpiringDays)
	lots, err := l.lots.ListByPharmacy(ctx, pharmacyID, filter, until)
	if err != nil {
		return nil, infra(err, "failed to list pharmacy inventory")
	}
	if lots == nil {
		lots = []domain.InventoryLot{}
	}
	return lots, nil
}

// UpdateInventory applies a partial update to a lot.
func (l *InventoryLedger) UpdateInventory(ctx context.Context, id string, upd domain.InventoryUpdate) (*domain.InventoryLot, error) {
	if upd.Quantity != nil && *upd.Quantity < 0 {
		return nil, errors.InvalidQuantity("quantity must not be negative")
	}
	if upd.ReorderLevel != nil && *upd.ReorderLevel < 0 {
		return nil, errors.Validation(map[string]string{"reorder_level": "must not be negative"})
	}
	lot, err := l.lots.Update(ctx, id, upd)
	if err != nil {
		return nil, infra(err, "failed to update inventory")
	}
	return lot, nil
}

// DeactivateInventory takes a lot out of service without deleting it.
func (l *InventoryLedger) DeactivateInventory(ctx context.Context, id string) error {
	if err := l.lots.Deactivate(ctx, id); err != nil {
		return infra(err, "failed to deactivate inventory")
	}
	return nil
}

// GetReorderList lists lots at or below their reorder level, recommending an
// order of the reorder level itself.
func (l *InventoryLedger) GetReorderList(ctx context.Context, pharmacyID string) ([]domain.ReorderItem, error) {
	lots, err := l.lots.ListReorder(ctx, pharmacyID)
	if err != nil {
		return nil, infra(err, "failed to list reorder items")
	}

	items := make([]domain.ReorderItem, 0, len(lots))
	for _, lot := range lots {
		if lot.ReorderLevel == nil {
			continue
		}
		items = append(items, domain.ReorderItem{InventoryLot: lot, RecommendedOrderQuantity: *lot.ReorderLevel})
	}
	return items, nil
}

// GetExpiringMedications lists lots with stock expiring within daysAhead.
// Zero means lots expiring today.
func (l *InventoryLedger) GetExpiringMedications(ctx context.Context, pharmacyID string, daysAhead int) ([]domain.InventoryLot, error) {
	if daysAhead < 0 {
		return nil, errors.Validation(map[string]string{"days": "must not be negative"})
	}
	now := l.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	until := now.AddDate(0, 0, daysAhead)

	lots, err := l.lots.ListExpiring(ctx, pharmacyID, from, until)
	if err != nil {
		return nil, infra(err, "failed to list expiring inventory")
	}
	if lots == nil {
		lots = []domain.InventoryLot{}
	}
	return lots, nil
}
