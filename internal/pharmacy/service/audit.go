package service

import (
	"context"
	"encoding/json"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/repository"
	"github.com/medflow/medflow-pharmacy/pkg/actor"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// Audit entity types and actions.
const (
	AuditEntityDispensing   = "dispensing"
	AuditEntityPrescription = "prescription"
	AuditEntityInventory    = "inventory_lot"
	AuditEntityControlled   = "controlled_substance_log"

	AuditActionDispensed       = "dispensed"
	AuditActionDispenseRefused = "dispense_rejected"
	AuditActionReturned        = "returned"
	AuditActionStatusChanged   = "status_changed"
	AuditActionReported        = "reported"
)

// AuditService records append-only audit trail entries.
type AuditService struct {
	repo   AuditStore
	logger *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(repo AuditStore, log *logger.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: log.WithComponent("audit"),
	}
}

// RecordAction records an action in the audit trail. It joins the transaction
// carried by ctx, if any.
func (s *AuditService) RecordAction(ctx context.Context, entityType, entityID, action string, metadata map[string]any) error {
	if s == nil || s.repo == nil {
		return nil
	}

	entry := &repository.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
	}

	if who := actor.ID(ctx); who != "" {
		entry.PerformedBy = &who
	}

	if metadata != nil {
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			s.logger.Error().Err(err).Str("entity_type", entityType).Str("entity_id", entityID).Msg("failed to marshal metadata")
		} else {
			metaStr := string(metadataJSON)
			entry.Metadata = &metaStr
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Str("action", action).
			Msg("failed to create audit entry")
		return err
	}

	return nil
}

// RecordBestEffort records an action and only logs a failure.
func (s *AuditService) RecordBestEffort(ctx context.Context, entityType, entityID, action string, metadata map[string]any) {
	_ = s.RecordAction(ctx, entityType, entityID, action, metadata)
}
