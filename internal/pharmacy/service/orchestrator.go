package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/config"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
	"github.com/medflow/medflow-pharmacy/pkg/metrics"
	"github.com/medflow/medflow-pharmacy/pkg/tracing"
)

// Stores groups the persistence collaborators of the orchestrator.
type Stores struct {
	Prescriptions PrescriptionStore
	Medications   MedicationStore
	Pharmacies    PharmacyStore
	Dispensings   DispensingStore
	Controlled    ControlledLogStore
}

// DispensingOrchestrator runs the dispensing gate and commits a fill. It is the
// only component that sequences the ledger, checker and monitor.
type DispensingOrchestrator struct {
	tx      TxRunner
	stores  Stores
	ledger  *InventoryLedger
	checker *InteractionChecker
	monitor *ControlledSubstanceMonitor
	audit   *AuditService
	events  EventPublisher
	cfg     config.DispensingConfig
	metrics *metrics.Metrics
	logger  *logger.Logger
	tracer  trace.Tracer
	now     Clock
}

// NewDispensingOrchestrator creates an orchestrator.
func NewDispensingOrchestrator(
	tx TxRunner,
	stores Stores,
	ledger *InventoryLedger,
	checker *InteractionChecker,
	monitor *ControlledSubstanceMonitor,
	audit *AuditService,
	events EventPublisher,
	cfg config.DispensingConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *DispensingOrchestrator {
	return &DispensingOrchestrator{
		tx:      tx,
		stores:  stores,
		ledger:  ledger,
		checker: checker,
		monitor: monitor,
		audit:   audit,
		events:  orNop(events),
		cfg:     cfg,
		metrics: m,
		logger:  log.WithComponent("dispensing"),
		tracer:  tracing.Tracer(),
		now:     time.Now,
	}
}

// gate carries what the validation steps resolved for the commit.
type gate struct {
	prescription *domain.Prescription
	item         *domain.PrescriptionItem
	medication   *domain.Medication
	safety       *domain.SafetyCheck
	pdmp         *domain.PDMPResult
}

// Dispense validates the request through every gate and, only if all pass,
// commits the dispensing record, inventory decrement and refill increment in
// one transaction. Controlled fills are then reported to the registry; a
// reporting failure leaves the entry unreported and does not fail the call.
func (s *DispensingOrchestrator) Dispense(ctx context.Context, req *domain.DispenseRequest) (*domain.DispenseResult, error) {
	started := s.now()
	ctx, span := s.tracer.Start(ctx, "dispensing.Dispense", trace.WithAttributes(
		attribute.String("prescription.id", req.PrescriptionID),
		attribute.String("pharmacy.id", req.PharmacyID),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	result, err := s.dispense(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.Code(err))
		s.reject(ctx, req, err, started)
		return nil, err
	}

	s.metrics.ObserveDispense("dispensed", started)
	return result, nil
}

func (s *DispensingOrchestrator) dispense(ctx context.Context, req *domain.DispenseRequest) (*domain.DispenseResult, error) {
	if req.Quantity <= 0 {
		return nil, errors.InvalidQuantity("quantity must be greater than zero")
	}

	g, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	controlled := g.medication.Controlled
	var pharmacyDEA *string
	if controlled {
		pharmacyDEA = s.pharmacyDEA(ctx, req.PharmacyID)
	}

	var (
		record    *domain.Dispensing
		logEntry  *domain.ControlledSubstanceLog
		decrement *domain.DecrementResult
	)
	err = s.step(ctx, "commit", func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context) error {
			var err error
			decrement, err = s.ledger.decrement(ctx, g.medication.ID, req.PharmacyID, req.Quantity, deref(req.LotNumber))
			if err != nil {
				return err
			}

			used, err := s.stores.Prescriptions.IncrementRefillUsed(ctx, g.item.ID)
			if err != nil {
				return err
			}

			record = s.newRecord(req, g, decrement, used-1)
			if err := s.stores.Dispensings.Create(ctx, record); err != nil {
				return err
			}

			if controlled {
				logEntry = s.newLogEntry(req, g, record, pharmacyDEA)
				if err := s.stores.Controlled.Create(ctx, logEntry); err != nil {
					return err
				}
			}

			return s.audit.RecordAction(ctx, AuditEntityDispensing, record.ID, AuditActionDispensed, map[string]any{
				"prescription_id":      req.PrescriptionID,
				"prescription_item_id": req.PrescriptionItemID,
				"quantity":             req.Quantity,
				"lots":                 decrement.Draws,
				"refill_number":        record.RefillNumber,
				"requires_review":      g.safety.RequiresReview,
				"controlled":           controlled,
			})
		})
	})
	if err != nil {
		return nil, infra(err, "failed to commit dispensing")
	}

	s.ledger.notifyLowStock(ctx, decrement)

	if logEntry != nil {
		s.report(ctx, logEntry)
	}

	s.events.DispensingCompleted(ctx, record, controlled)
	s.logger.Info().
		Str("dispensing_id", record.ID).
		Str("prescription_id", req.PrescriptionID).
		Str("medication", g.medication.Name).
		Int("quantity", req.Quantity).
		Bool("controlled", controlled).
		Bool("requires_review", g.safety.RequiresReview).
		Msg("medication dispensed")

	return &domain.DispenseResult{
		Dispensing:             record,
		ControlledSubstanceLog: logEntry,
		SafetyCheck:            g.safety,
		PDMPCheck:              g.pdmp,
		Draws:                  decrement.Draws,
	}, nil
}

// validate runs gate steps 1 through 7. Nothing is written.
func (s *DispensingOrchestrator) validate(ctx context.Context, req *domain.DispenseRequest) (*gate, error) {
	g := &gate{}

	err := s.step(ctx, "prescription", func(ctx context.Context) error {
		rx, err := s.stores.Prescriptions.GetByID(ctx, req.PrescriptionID)
		if err != nil {
			return infra(err, "failed to load prescription")
		}
		if rx.Status != domain.PrescriptionActive {
			return errors.InvalidState(string(rx.Status))
		}
		if rx.ExpiredAt(s.now()) {
			return errors.Expired()
		}

		item := rx.Item(req.PrescriptionItemID)
		if item == nil {
			return errors.NotFound("Prescription item")
		}
		if !item.HasRefillRemaining() {
			return errors.RefillsExhausted(item.RefillsUsed, item.RefillsAllowed)
		}

		g.prescription, g.item = rx, item
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.step(ctx, "medication", func(ctx context.Context) error {
		med, err := s.stores.Medications.GetByID(ctx, req.MedicationID)
		if err != nil {
			return infra(err, "failed to load medication")
		}
		if !strings.EqualFold(strings.TrimSpace(med.Name), strings.TrimSpace(g.item.MedicationName)) {
			return errors.MedicationMismatch(g.item.MedicationName, med.Name)
		}
		if sched := deref(g.item.DEASchedule); sched != "" && !strings.EqualFold(sched, med.Schedule()) {
			return errors.MedicationMismatch(withSchedule(g.item.MedicationName, sched), withSchedule(med.Name, med.Schedule()))
		}
		g.medication = med
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.step(ctx, "availability", func(ctx context.Context) error {
		available, err := s.ledger.Available(ctx, g.medication.ID, req.PharmacyID)
		if err != nil {
			return err
		}
		if available < req.Quantity {
			return errors.InsufficientInventory(available, req.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.step(ctx, "safety", func(ctx context.Context) error {
		current, err := s.CurrentMedications(ctx, g.prescription.PatientID)
		if err != nil {
			return err
		}
		safety, err := s.checker.PerformSafetyCheck(ctx, g.prescription.PatientID, append(current, g.medication.Name))
		if err != nil {
			return err
		}
		g.safety = safety
		if !safety.IsSafe {
			return errors.SafetyBlock()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if g.medication.Controlled {
		err = s.step(ctx, "pdmp", func(ctx context.Context) error {
			result, err := s.monitor.CheckPDMP(ctx, g.prescription.PatientID, g.medication.Schedule())
			if err != nil {
				return err
			}
			g.pdmp = result
			if result.RequiresIntervention {
				return errors.PDMPBlock(result.Alerts)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (s *DispensingOrchestrator) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "dispensing."+name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.Code(err))
		return err
	}
	return nil
}

func (s *DispensingOrchestrator) newRecord(req *domain.DispenseRequest, g *gate, dec *domain.DecrementResult, refillNumber int) *domain.Dispensing {
	record := &domain.Dispensing{
		PrescriptionID:     req.PrescriptionID,
		PrescriptionItemID: req.PrescriptionItemID,
		MedicationID:       g.medication.ID,
		MedicationName:     g.medication.Name,
		PatientID:          g.prescription.PatientID,
		PharmacyID:         req.PharmacyID,
		PharmacistID:       req.PharmacistID,
		Quantity:           req.Quantity,
		RefillNumber:       refillNumber,
		DaysSupply:         req.DaysSupply,
		Status:             domain.DispensingDispensed,
		SafetyCheck:        (*domain.SafetySnapshot)(g.safety),
		Notes:              req.Notes,
	}
	if lot := dec.PrimaryLot(); lot != "" {
		record.LotNumber = &lot
	}
	record.Draws = append(domain.LotDraws(nil), dec.Draws...)
	return record
}

func (s *DispensingOrchestrator) newLogEntry(req *domain.DispenseRequest, g *gate, record *domain.Dispensing, pharmacyDEA *string) *domain.ControlledSubstanceLog {
	dispensedAt := record.DispensedAt
	if dispensedAt.IsZero() {
		dispensedAt = s.now()
	}
	return &domain.ControlledSubstanceLog{
		DispensingID:      record.ID,
		PatientID:         g.prescription.PatientID,
		PrescriberID:      g.prescription.PrescriberID,
		PharmacistID:      req.PharmacistID,
		PharmacyID:        req.PharmacyID,
		PharmacyDEANumber: pharmacyDEA,
		MedicationName:    g.medication.Name,
		DEASchedule:       g.medication.Schedule(),
		Quantity:          req.Quantity,
		DaysSupply:        req.DaysSupply,
		DispenseDate:      dispensedAt,
		PrescriptionDate:  g.prescription.WrittenAt,
		RefillNumber:      record.RefillNumber,
	}
}

// pharmacyDEA returns the pharmacy's DEA number. A lookup failure is logged
// and leaves the number empty.
func (s *DispensingOrchestrator) pharmacyDEA(ctx context.Context, pharmacyID string) *string {
	if s.stores.Pharmacies == nil {
		return nil
	}
	p, err := s.stores.Pharmacies.GetByID(ctx, pharmacyID)
	if err != nil {
		s.logger.Warn().Err(err).Str("pharmacy_id", pharmacyID).Msg("pharmacy lookup failed, logging without DEA number")
		return nil
	}
	return p.DEANumber
}

// report submits a freshly committed log entry. Failure is logged only.
func (s *DispensingOrchestrator) report(ctx context.Context, entry *domain.ControlledSubstanceLog) {
	res, err := s.monitor.ReportToPDMP(ctx, entry.ID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("log_id", entry.ID).
			Str("dispensing_id", entry.DispensingID).
			Msg("pdmp report failed, entry left for bulk reporting")
		return
	}
	reportedAt := s.now()
	entry.ReportedToPDMP = true
	entry.ReportedAt = &reportedAt
	entry.ReportID = &res.ReportID
}

// reject records a failed dispense. Business refusals are audited and
// published; infrastructure failures are only logged.
func (s *DispensingOrchestrator) reject(ctx context.Context, req *domain.DispenseRequest, err error, started time.Time) {
	code := errors.Code(err)

	if !errors.IsBusiness(err) {
		s.metrics.ObserveDispense("error", started)
		s.logger.Error().Err(err).
			Str("prescription_id", req.PrescriptionID).
			Str("code", code).
			Msg("dispense failed")
		return
	}

	s.metrics.ObserveDispense(strings.ToLower(code), started)
	s.logger.Info().
		Str("prescription_id", req.PrescriptionID).
		Str("prescription_item_id", req.PrescriptionItemID).
		Str("code", code).
		Str("reason", err.Error()).
		Msg("dispense rejected")

	s.audit.RecordBestEffort(ctx, AuditEntityPrescription, req.PrescriptionID, AuditActionDispenseRefused, map[string]any{
		"prescription_item_id": req.PrescriptionItemID,
		"pharmacy_id":          req.PharmacyID,
		"pharmacist_id":        req.PharmacistID,
		"quantity":             req.Quantity,
		"code":                 code,
	})
	s.events.DispensingRejected(ctx, req, err)
}

// ReturnMedication records a return against a dispensing and credits the
// quantity back to the lots it was drawn from. Records without a lot are not
// restocked.
func (s *DispensingOrchestrator) ReturnMedication(ctx context.Context, dispensingID string, qty int) (*domain.ReturnResult, error) {
	if qty <= 0 {
		return nil, errors.InvalidQuantity("quantity must be greater than zero")
	}

	result := &domain.ReturnResult{QuantityReturned: qty}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		d, err := s.stores.Dispensings.GetForUpdate(ctx, dispensingID)
		if err != nil {
			return err
		}
		if qty > d.Quantity-d.QuantityReturned {
			return errors.InvalidQuantity("Cannot return more than dispensed quantity")
		}

		note := fmt.Sprintf("Returned %d units on %s", qty, s.now().UTC().Format(time.RFC3339))
		updated, err := s.stores.Dispensings.RecordReturn(ctx, d.ID, qty, note)
		if err != nil {
			return err
		}

		credits := d.ReturnCredits(qty)
		for i := range credits {
			lot, err := s.ledger.Increment(ctx, d.MedicationID, d.PharmacyID, credits[i].Quantity, credits[i].LotNumber)
			if err != nil {
				return err
			}
			credits[i].LotID = lot.ID
			credits[i].Remaining = lot.Quantity
		}
		result.Restocked = len(credits) > 0

		result.Dispensing = updated
		return s.audit.RecordAction(ctx, AuditEntityDispensing, d.ID, AuditActionReturned, map[string]any{
			"quantity":  qty,
			"lots":      credits,
			"restocked": result.Restocked,
		})
	})
	if err != nil {
		return nil, infra(err, "failed to return medication")
	}

	result.Success = true
	s.metrics.IncReturn()
	s.events.DispensingReturned(ctx, result.Dispensing, qty, result.Restocked)
	s.logger.Info().
		Str("dispensing_id", dispensingID).
		Int("quantity", qty).
		Bool("restocked", result.Restocked).
		Msg("medication returned")
	return result, nil
}

// GetDispensing returns a dispensing record.
func (s *DispensingOrchestrator) GetDispensing(ctx context.Context, id string) (*domain.Dispensing, error) {
	d, err := s.stores.Dispensings.GetByID(ctx, id)
	if err != nil {
		return nil, infra(err, "failed to load dispensing")
	}
	return d, nil
}

// UpdateDispensingStatus moves a record to another known status.
func (s *DispensingOrchestrator) UpdateDispensingStatus(ctx context.Context, id string, status domain.DispensingStatus) (*domain.Dispensing, error) {
	if !status.Valid() {
		return nil, errors.Validation(map[string]string{"status": "must be one of: dispensed, returned, cancelled"})
	}

	var d *domain.Dispensing
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.stores.Dispensings.UpdateStatus(ctx, id, status)
		if err != nil {
			return err
		}
		return s.audit.RecordAction(ctx, AuditEntityDispensing, id, AuditActionStatusChanged, map[string]any{"status": status})
	})
	if err != nil {
		return nil, infra(err, "failed to update dispensing status")
	}
	return d, nil
}

// PatientHistory lists a patient's dispensings, newest first.
func (s *DispensingOrchestrator) PatientHistory(ctx context.Context, patientID string, limit int) ([]domain.Dispensing, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	records, err := s.stores.Dispensings.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, infra(err, "failed to load dispensing history")
	}
	if records == nil {
		records = []domain.Dispensing{}
	}
	return records, nil
}

// CurrentMedications returns the distinct medication names dispensed to the
// patient within the current medication window and still in dispensed status.
func (s *DispensingOrchestrator) CurrentMedications(ctx context.Context, patientID string) ([]string, error) {
	since := s.now().Add(-s.cfg.CurrentMedicationWindow)
	names, err := s.stores.Dispensings.CurrentMedicationNames(ctx, patientID, since)
	if err != nil {
		return nil, infra(err, "failed to load current medications")
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func withSchedule(name, schedule string) string {
	if schedule == "" {
		return name
	}
	return name + " (schedule " + schedule + ")"
}
