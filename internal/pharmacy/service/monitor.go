package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/pdmp"
	"github.com/medflow/medflow-pharmacy/pkg/actor"
	"github.com/medflow/medflow-pharmacy/pkg/config"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
	"github.com/medflow/medflow-pharmacy/pkg/metrics"
)

const scheduleII = "II"

// ControlledSubstanceMonitor analyses controlled substance history for abuse
// and diversion patterns and owns registry reporting of log entries.
type ControlledSubstanceMonitor struct {
	logs       ControlledLogStore
	submitter  pdmp.Submitter
	classifier DrugClassifier
	events     EventPublisher
	cfg        config.PDMPConfig
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        Clock
}

// NewControlledSubstanceMonitor creates a monitor. A nil classifier defaults to
// the built-in name lists.
func NewControlledSubstanceMonitor(
	logs ControlledLogStore,
	submitter pdmp.Submitter,
	classifier DrugClassifier,
	events EventPublisher,
	cfg config.PDMPConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *ControlledSubstanceMonitor {
	if classifier == nil {
		classifier = NewNameListClassifier()
	}
	return &ControlledSubstanceMonitor{
		logs:       logs,
		submitter:  submitter,
		classifier: classifier,
		events:     orNop(events),
		cfg:        cfg,
		metrics:    m,
		logger:     log.WithComponent("pdmp_monitor"),
		now:        time.Now,
	}
}

// CheckPDMP evaluates the patient's controlled substance history over the
// lookback window. Every rule runs over the full history; schedule only labels
// the check in logs.
func (s *ControlledSubstanceMonitor) CheckPDMP(ctx context.Context, patientID, schedule string) (*domain.PDMPResult, error) {
	now := s.now()
	since := now.AddDate(0, -s.cfg.LookbackMonths, 0)

	history, err := s.logs.ListByPatientSince(ctx, patientID, since)
	if err != nil {
		return nil, infra(err, "failed to load controlled substance history")
	}

	result := s.analyze(patientID, history, now)

	if result.HasAlerts {
		s.logger.Info().
			Str("patient_id", patientID).
			Str("schedule", schedule).
			Strs("alerts", result.Alerts).
			Bool("requires_intervention", result.RequiresIntervention).
			Msg("pdmp alerts raised")
	}
	return result, nil
}

// analyze applies the detection rules to one history snapshot.
func (s *ControlledSubstanceMonitor) analyze(patientID string, history []domain.ControlledSubstanceLog, now time.Time) *domain.PDMPResult {
	if history == nil {
		history = []domain.ControlledSubstanceLog{}
	}
	result := &domain.PDMPResult{
		PatientID:                  patientID,
		Alerts:                     []string{},
		EarlyRefills:               []domain.EarlyRefill{},
		RecentControlledSubstances: history,
		CheckedAt:                  now,
	}
	months := s.cfg.LookbackMonths

	prescribers := make(map[string]struct{})
	pharmacies := make(map[string]struct{})
	for _, h := range history {
		prescribers[h.PrescriberID] = struct{}{}
		if h.PharmacyID != "" {
			pharmacies[h.PharmacyID] = struct{}{}
		}
	}
	result.ProviderCount = len(prescribers)
	result.PharmacyCount = len(pharmacies)

	if result.ProviderCount > s.cfg.MaxPrescribers {
		result.MultipleProviders = true
		s.alert(result, "multiple_providers", fmt.Sprintf(
			"Patient has received controlled substances from %d different prescribers in the last %d months",
			result.ProviderCount, months))
	}

	if result.PharmacyCount > s.cfg.MaxPharmacies {
		result.MultiplePharmacies = true
		s.alert(result, "multiple_pharmacies", fmt.Sprintf(
			"Patient has filled controlled substances at %d different pharmacies in the last %d months",
			result.PharmacyCount, months))
	}

	if s.overlapping(history) {
		result.OverlappingPrescriptions = true
		result.RequiresIntervention = true
		s.alert(result, "overlapping_prescriptions", "Overlapping controlled substance prescriptions detected")
	}

	result.EarlyRefills = s.earlyRefills(history)
	if len(result.EarlyRefills) > 0 {
		result.RequiresIntervention = true
		s.alert(result, "early_refill", fmt.Sprintf(
			"%d early refill(s) detected for Schedule II substances", len(result.EarlyRefills)))
	}

	for _, h := range history {
		if h.DEASchedule == scheduleII && h.Quantity > s.cfg.HighDoseQuantity {
			result.HighDoseOpioid = true
			break
		}
	}
	if result.HighDoseOpioid {
		s.alert(result, "high_dose_opioid", "High-dose opioid prescriptions detected")
	}

	var opioid, benzo bool
	for _, h := range history {
		opioid = opioid || s.classifier.IsOpioid(h.MedicationName)
		benzo = benzo || s.classifier.IsBenzodiazepine(h.MedicationName)
	}
	if opioid && benzo {
		result.ConcurrentOpioidBenzo = true
		result.RequiresIntervention = true
		s.alert(result, "opioid_benzodiazepine", "Concurrent opioid and benzodiazepine use detected")
	}

	result.HasAlerts = len(result.Alerts) > 0
	return result
}

func (s *ControlledSubstanceMonitor) alert(result *domain.PDMPResult, rule, message string) {
	result.Alerts = append(result.Alerts, message)
	s.metrics.IncPDMPAlert(rule)
}

// overlapping reports whether any fill of a medication started before the
// previous fill of the same medication ran out.
func (s *ControlledSubstanceMonitor) overlapping(history []domain.ControlledSubstanceLog) bool {
	for _, fills := range groupByMedication(history, "") {
		for i := 0; i+1 < len(fills); i++ {
			runsOut := fills[i].DispenseDate.AddDate(0, 0, fills[i].SupplyDays(s.cfg.AssumedDaysSupply))
			if fills[i+1].DispenseDate.Before(runsOut) {
				return true
			}
		}
	}
	return false
}

// earlyRefills lists Schedule II fills made more than the tolerance ahead of
// the expected refill date.
func (s *ControlledSubstanceMonitor) earlyRefills(history []domain.ControlledSubstanceLog) []domain.EarlyRefill {
	refills := []domain.EarlyRefill{}
	tolerance := float64(s.cfg.EarlyRefillToleranceDays)

	for name, fills := range groupByMedication(history, scheduleII) {
		for i := 0; i+1 < len(fills); i++ {
			expected := fills[i].DispenseDate.AddDate(0, 0, fills[i].SupplyDays(s.cfg.AssumedDaysSupply))
			early := expected.Sub(fills[i+1].DispenseDate).Hours() / 24
			if early > tolerance {
				refills = append(refills, domain.EarlyRefill{
					MedicationName: name,
					DispenseDate:   fills[i+1].DispenseDate,
					ExpectedDate:   expected,
					DaysEarly:      int(math.Round(early)),
				})
			}
		}
	}

	sort.Slice(refills, func(i, j int) bool {
		return refills[i].DispenseDate.Before(refills[j].DispenseDate)
	})
	return refills
}

// groupByMedication groups fills by exact medication name, each group sorted
// oldest first. A non-empty schedule keeps only that schedule.
func groupByMedication(history []domain.ControlledSubstanceLog, schedule string) map[string][]domain.ControlledSubstanceLog {
	groups := make(map[string][]domain.ControlledSubstanceLog)
	for _, h := range history {
		if schedule != "" && h.DEASchedule != schedule {
			continue
		}
		groups[h.MedicationName] = append(groups[h.MedicationName], h)
	}
	for _, fills := range groups {
		sort.SliceStable(fills, func(i, j int) bool {
			return fills[i].DispenseDate.Before(fills[j].DispenseDate)
		})
	}
	return groups
}

// ReportToPDMP submits one log entry to the registry and marks it reported.
// An entry already reported fails with AlreadyReported and is never
// resubmitted.
func (s *ControlledSubstanceMonitor) ReportToPDMP(ctx context.Context, logID string) (*domain.ReportResult, error) {
	entry, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return nil, infra(err, "failed to load controlled substance log")
	}
	if entry.ReportedToPDMP {
		var existing string
		if entry.ReportID != nil {
			existing = *entry.ReportID
		}
		return nil, errors.AlreadyReported(entry.ID, existing)
	}

	reportID, err := s.submitter.Submit(ctx, entry)
	if err != nil {
		s.metrics.IncPDMPReport("failed")
		return nil, errors.Infrastructure(err, "PDMP registry submission failed")
	}

	reportedAt := s.now()
	if err := s.logs.MarkReported(ctx, entry.ID, reportID, reportedAt); err != nil {
		s.metrics.IncPDMPReport("failed")
		return nil, infra(err, "failed to record PDMP report")
	}

	entry.ReportedToPDMP = true
	entry.ReportedAt = &reportedAt
	entry.ReportID = &reportID

	s.metrics.IncPDMPReport("success")
	s.events.PDMPReported(ctx, entry, reportID)
	s.logger.Info().
		Str("log_id", entry.ID).
		Str("report_id", reportID).
		Str("reported_by", actor.FromContext(ctx).String()).
		Msg("reported to pdmp")

	return &domain.ReportResult{LogID: entry.ID, Success: true, ReportID: reportID}, nil
}

// BulkReportToPDMP reports every unreported entry. Failures are collected per
// entry and never stop the run.
func (s *ControlledSubstanceMonitor) BulkReportToPDMP(ctx context.Context) (*domain.BulkReportResult, error) {
	unreported, err := s.logs.ListUnreported(ctx)
	if err != nil {
		return nil, infra(err, "failed to list unreported dispensings")
	}

	results := make([]domain.ReportResult, len(unreported))

	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.ReportConcurrency))
	for i := range unreported {
		g.Go(func() error {
			id := unreported[i].ID
			res, err := s.ReportToPDMP(ctx, id)
			if err != nil {
				results[i] = domain.ReportResult{LogID: id, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	bulk := &domain.BulkReportResult{Total: len(unreported), Results: results}
	for _, r := range results {
		if r.Success {
			bulk.Successful++
		} else {
			bulk.Failed++
		}
	}

	if n, err := s.logs.CountUnreported(ctx); err == nil {
		s.metrics.SetUnreported(n)
	}

	return bulk, nil
}

// History returns a patient's controlled substance history, newest first.
func (s *ControlledSubstanceMonitor) History(ctx context.Context, patientID string, filter domain.HistoryFilter) ([]domain.ControlledSubstanceLog, error) {
	if filter.Limit <= 0 {
		filter.Limit = s.cfg.HistoryLimit
	}
	entries, err := s.logs.History(ctx, patientID, filter)
	if err != nil {
		return nil, infra(err, "failed to load controlled substance history")
	}
	return entries, nil
}

// Unreported returns entries not yet reported, oldest first.
func (s *ControlledSubstanceMonitor) Unreported(ctx context.Context) ([]domain.ControlledSubstanceLog, error) {
	entries, err := s.logs.ListUnreported(ctx)
	if err != nil {
		return nil, infra(err, "failed to list unreported dispensings")
	}
	s.metrics.SetUnreported(len(entries))
	return entries, nil
}

// Statistics summarises logging and reporting over a date range.
func (s *ControlledSubstanceMonitor) Statistics(ctx context.Context, rng domain.DateRange) (*domain.PDMPStatistics, error) {
	stats, err := s.logs.Statistics(ctx, rng)
	if err != nil {
		return nil, infra(err, "failed to compute pdmp statistics")
	}
	return stats, nil
}
