package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-pharmacy/pkg/database"
)

// AuditEntry is one append-only audit trail row.
type AuditEntry struct {
	ID          string    `db:"id" json:"id"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Action      string    `db:"action" json:"action"`
	Metadata    *string   `db:"metadata" json:"metadata,omitempty"`
	PerformedBy *string   `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AuditTrailRepository handles audit trail persistence.
// All operations are append-only: no UPDATE or DELETE is permitted.
type AuditTrailRepository struct {
	db *database.DB
}

// NewAuditTrailRepository creates a new audit trail repository
func NewAuditTrailRepository(db *database.DB) *AuditTrailRepository {
	return &AuditTrailRepository{db: db}
}

// Create appends an audit trail entry
func (r *AuditTrailRepository) Create(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_trail (id, entity_type, entity_id, action, metadata, performed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	return r.db.Conn(ctx).QueryRowxContext(ctx, query,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.Metadata, entry.PerformedBy,
	).Scan(&entry.CreatedAt)
}

// ListByEntity lists audit entries for an entity, newest first.
func (r *AuditTrailRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]AuditEntry, error) {
	var entries []AuditEntry
	query := `
		SELECT id, entity_type, entity_id, action, metadata, performed_by, created_at
		FROM audit_trail
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query, entityType, entityID, limit); err != nil {
		return nil, err
	}
	return entries, nil
}
