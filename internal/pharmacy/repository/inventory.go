package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/database"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

const lotColumns = `id, medication_id, pharmacy_id, lot_number, quantity_on_hand, expiration_date,
	reorder_level, is_active, created_at, updated_at`

// InventoryRepository persists inventory lots. Every method joins the
// transaction carried by ctx, if any.
type InventoryRepository struct {
	db *database.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *database.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Create inserts a new lot
func (r *InventoryRepository) Create(ctx context.Context, lot *domain.InventoryLot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO inventory_lots (
			id, medication_id, pharmacy_id, lot_number, quantity_on_hand,
			expiration_date, reorder_level, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		lot.ID, lot.MedicationID, lot.PharmacyID, lot.LotNumber, lot.Quantity,
		lot.ExpirationDate, lot.ReorderLevel, lot.IsActive,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return database.MapError(err)
	}
	return nil
}

// GetByID gets a lot by ID
func (r *InventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryLot, error) {
	var lot domain.InventoryLot
	query := `SELECT ` + lotColumns + ` FROM inventory_lots WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &lot, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Inventory item")
		}
		return nil, err
	}
	return &lot, nil
}

// Update applies the non-nil fields of upd and returns the updated lot.
func (r *InventoryRepository) Update(ctx context.Context, id string, upd domain.InventoryUpdate) (*domain.InventoryLot, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Quantity != nil {
		add("quantity_on_hand", *upd.Quantity)
	}
	if upd.ReorderLevel != nil {
		add("reorder_level", *upd.ReorderLevel)
	}
	if upd.ExpirationDate != nil {
		add("expiration_date", *upd.ExpirationDate)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}

	query := `UPDATE inventory_lots SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + lotColumns

	var lot domain.InventoryLot
	if err := r.db.Conn(ctx).GetContext(ctx, &lot, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Inventory item")
		}
		return nil, database.MapError(err)
	}
	return &lot, nil
}

// Deactivate marks a lot inactive. Lots are never deleted.
func (r *InventoryRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE inventory_lots SET is_active = false, updated_at = NOW() WHERE id = $1`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("Inventory item")
	}
	return nil
}

// LockAvailableLots returns the active lots with stock for a medication at a
// pharmacy in FEFO order, holding row locks until the surrounding transaction
// ends. Must be called inside database.DB.InTx.
func (r *InventoryRepository) LockAvailableLots(ctx context.Context, medicationID, pharmacyID string) ([]domain.InventoryLot, error) {
	var lots []domain.InventoryLot
	query := `
		SELECT ` + lotColumns + `
		FROM inventory_lots
		WHERE medication_id = $1 AND pharmacy_id = $2 AND is_active = true AND quantity_on_hand > 0
		ORDER BY expiration_date, id
		FOR UPDATE
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &lots, query, medicationID, pharmacyID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListAvailable returns active lots with stock in FEFO order without locking.
func (r *InventoryRepository) ListAvailable(ctx context.Context, medicationID, pharmacyID string) ([]domain.InventoryLot, error) {
	var lots []domain.InventoryLot
	query := `
		SELECT ` + lotColumns + `
		FROM inventory_lots
		WHERE medication_id = $1 AND pharmacy_id = $2 AND is_active = true AND quantity_on_hand > 0
		ORDER BY expiration_date, id
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &lots, query, medicationID, pharmacyID); err != nil {
		return nil, err
	}
	return lots, nil
}

// SumAvailable sums stock across active lots.
func (r *InventoryRepository) SumAvailable(ctx context.Context, medicationID, pharmacyID string) (int, error) {
	var total sql.NullInt64
	query := `
		SELECT SUM(quantity_on_hand) FROM inventory_lots
		WHERE medication_id = $1 AND pharmacy_id = $2 AND is_active = true AND quantity_on_hand > 0
	`
	if err := r.db.Conn(ctx).GetContext(ctx, &total, query, medicationID, pharmacyID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}

// ApplyDraw removes qty from a lot and returns what remains. The guard keeps
// the lot from going negative even if the caller's plan was stale.
func (r *InventoryRepository) ApplyDraw(ctx context.Context, lotID string, qty int) (int, error) {
	var remaining int
	query := `
		UPDATE inventory_lots
		SET quantity_on_hand = quantity_on_hand - $2, updated_at = NOW()
		WHERE id = $1 AND quantity_on_hand >= $2
		RETURNING quantity_on_hand
	`
	err := r.db.Conn(ctx).QueryRowxContext(ctx, query, lotID, qty).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, errors.InsufficientInventory(0, qty)
	}
	if err != nil {
		return 0, database.MapError(err)
	}
	return remaining, nil
}

// Increment credits qty to an existing lot and reactivates it.
func (r *InventoryRepository) Increment(ctx context.Context, medicationID, pharmacyID, lotNumber string, qty int) (*domain.InventoryLot, error) {
	var lot domain.InventoryLot
	query := `
		UPDATE inventory_lots
		SET quantity_on_hand = quantity_on_hand + $4, is_active = true, updated_at = NOW()
		WHERE medication_id = $1 AND pharmacy_id = $2 AND lot_number = $3
		RETURNING ` + lotColumns
	err := r.db.Conn(ctx).GetContext(ctx, &lot, query, medicationID, pharmacyID, lotNumber, qty)
	if err == sql.ErrNoRows {
		return nil, errors.LotNotFound(lotNumber)
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// ListByPharmacy lists active lots at a pharmacy in FEFO order.
func (r *InventoryRepository) ListByPharmacy(ctx context.Context, pharmacyID string, filter domain.InventoryFilter, expiringBefore time.Time) ([]domain.InventoryLot, error) {
	conds := []string{"pharmacy_id = $1", "is_active = true"}
	args := []any{pharmacyID}

	if filter.MedicationID != "" {
		args = append(args, filter.MedicationID)
		conds = append(conds, fmt.Sprintf("medication_id = $%d", len(args)))
	}
	if filter.ExpiringSoon {
		args = append(args, expiringBefore)
		conds = append(conds, fmt.Sprintf("expiration_date >= CURRENT_DATE AND expiration_date <= $%d", len(args)))
	}

	query := `SELECT ` + lotColumns + ` FROM inventory_lots WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY expiration_date, id`

	var lots []domain.InventoryLot
	if err := r.db.Conn(ctx).SelectContext(ctx, &lots, query, args...); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListReorder lists lots at or below their reorder level.
func (r *InventoryRepository) ListReorder(ctx context.Context, pharmacyID string) ([]domain.InventoryLot, error) {
	var lots []domain.InventoryLot
	query := `
		SELECT ` + lotColumns + `
		FROM inventory_lots
		WHERE pharmacy_id = $1 AND is_active = true
		AND reorder_level IS NOT NULL AND quantity_on_hand <= reorder_level
		ORDER BY quantity_on_hand, expiration_date
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &lots, query, pharmacyID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListExpiring lists active lots with stock expiring in [from, until].
func (r *InventoryRepository) ListExpiring(ctx context.Context, pharmacyID string, from, until time.Time) ([]domain.InventoryLot, error) {
	var lots []domain.InventoryLot
	query := `
		SELECT ` + lotColumns + `
		FROM inventory_lots
		WHERE pharmacy_id = $1 AND is_active = true AND quantity_on_hand > 0
		AND expiration_date >= $2 AND expiration_date <= $3
		ORDER BY expiration_date, id
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &lots, query, pharmacyID, from, until); err != nil {
		return nil, err
	}
	return lots, nil
}
