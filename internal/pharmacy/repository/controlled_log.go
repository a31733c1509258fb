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

const controlledLogColumns = `id, dispensing_id, patient_id, prescriber_id, pharmacist_id, pharmacy_id,
	pharmacy_dea_number, medication_name, dea_schedule, quantity, days_supply, dispense_date,
	prescription_date, refill_number, reported_to_pdmp, reported_at, report_id, created_at`

// ControlledLogRepository persists the controlled substance register.
// Entries are append-only; only the report fields are ever written after insert.
type ControlledLogRepository struct {
	db *database.DB
}

// NewControlledLogRepository creates a new controlled substance log repository
func NewControlledLogRepository(db *database.DB) *ControlledLogRepository {
	return &ControlledLogRepository{db: db}
}

// Create appends a log entry
func (r *ControlledLogRepository) Create(ctx context.Context, entry *domain.ControlledSubstanceLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO controlled_substance_logs (
			id, dispensing_id, patient_id, prescriber_id, pharmacist_id, pharmacy_id,
			pharmacy_dea_number, medication_name, dea_schedule, quantity, days_supply,
			dispense_date, prescription_date, refill_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	err := r.db.Conn(ctx).QueryRowxContext(ctx, query,
		entry.ID, entry.DispensingID, entry.PatientID, entry.PrescriberID, entry.PharmacistID,
		entry.PharmacyID, entry.PharmacyDEANumber, entry.MedicationName, entry.DEASchedule,
		entry.Quantity, entry.DaysSupply, entry.DispenseDate, entry.PrescriptionDate,
		entry.RefillNumber,
	).Scan(&entry.CreatedAt)
	return database.MapError(err)
}

// GetByID gets a log entry by ID
func (r *ControlledLogRepository) GetByID(ctx context.Context, id string) (*domain.ControlledSubstanceLog, error) {
	var entry domain.ControlledSubstanceLog
	query := `SELECT ` + controlledLogColumns + ` FROM controlled_substance_logs WHERE id = $1`
	if err := r.db.Conn(ctx).GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("Controlled substance log")
		}
		return nil, err
	}
	return &entry, nil
}

// ListByPatientSince returns a patient's entries dispensed at or after since,
// newest first.
func (r *ControlledLogRepository) ListByPatientSince(ctx context.Context, patientID string, since time.Time) ([]domain.ControlledSubstanceLog, error) {
	return r.History(ctx, patientID, domain.HistoryFilter{StartDate: &since})
}

// History returns a patient's entries matching filter, newest first. A zero
// limit returns every match.
func (r *ControlledLogRepository) History(ctx context.Context, patientID string, filter domain.HistoryFilter) ([]domain.ControlledSubstanceLog, error) {
	conds := []string{"patient_id = $1"}
	args := []any{patientID}

	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		conds = append(conds, fmt.Sprintf("dispense_date >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		conds = append(conds, fmt.Sprintf("dispense_date <= $%d", len(args)))
	}
	if filter.Schedule != "" {
		args = append(args, filter.Schedule)
		conds = append(conds, fmt.Sprintf("dea_schedule = $%d", len(args)))
	}

	query := `SELECT ` + controlledLogColumns + ` FROM controlled_substance_logs WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY dispense_date DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var entries []domain.ControlledSubstanceLog
	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListUnreported returns entries not yet reported, oldest first.
func (r *ControlledLogRepository) ListUnreported(ctx context.Context) ([]domain.ControlledSubstanceLog, error) {
	var entries []domain.ControlledSubstanceLog
	query := `
		SELECT ` + controlledLogColumns + `
		FROM controlled_substance_logs
		WHERE reported_to_pdmp = false
		ORDER BY dispense_date ASC
	`
	if err := r.db.Conn(ctx).SelectContext(ctx, &entries, query); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountUnreported counts entries not yet reported.
func (r *ControlledLogRepository) CountUnreported(ctx context.Context) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM controlled_substance_logs WHERE reported_to_pdmp = false`
	if err := r.db.Conn(ctx).GetContext(ctx, &n, query); err != nil {
		return 0, err
	}
	return n, nil
}

// MarkReported flips reported_to_pdmp from false to true. It returns
// AlreadyReported when another caller got there first.
func (r *ControlledLogRepository) MarkReported(ctx context.Context, id, reportID string, at time.Time) error {
	query := `
		UPDATE controlled_substance_logs
		SET reported_to_pdmp = true, reported_at = $2, report_id = $3
		WHERE id = $1 AND reported_to_pdmp = false
	`
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, id, at, reportID)
	if err != nil {
		return database.MapError(err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	var existingReport string
	if existing.ReportID != nil {
		existingReport = *existing.ReportID
	}
	return errors.AlreadyReported(id, existingReport)
}

// Statistics counts entries within the range by schedule and report status.
// ReportingRate is a percentage.
func (r *ControlledLogRepository) Statistics(ctx context.Context, rng domain.DateRange) (*domain.PDMPStatistics, error) {
	conds := []string{"1 = 1"}
	var args []any

	if rng.StartDate != nil {
		args = append(args, *rng.StartDate)
		conds = append(conds, fmt.Sprintf("dispense_date >= $%d", len(args)))
	}
	if rng.EndDate != nil {
		args = append(args, *rng.EndDate)
		conds = append(conds, fmt.Sprintf("dispense_date <= $%d", len(args)))
	}

	query := `
		SELECT
			COUNT(*) AS total_dispensings,
			COUNT(*) FILTER (WHERE dea_schedule = 'II') AS schedule_ii,
			COUNT(*) FILTER (WHERE dea_schedule = 'III') AS schedule_iii,
			COUNT(*) FILTER (WHERE dea_schedule = 'IV') AS schedule_iv,
			COUNT(*) FILTER (WHERE dea_schedule = 'V') AS schedule_v,
			COUNT(*) FILTER (WHERE reported_to_pdmp) AS reported,
			COUNT(*) FILTER (WHERE NOT reported_to_pdmp) AS unreported
		FROM controlled_substance_logs
		WHERE ` + strings.Join(conds, " AND ")

	var stats domain.PDMPStatistics
	row := r.db.Conn(ctx).QueryRowxContext(ctx, query, args...)
	if err := row.Scan(
		&stats.TotalDispensings, &stats.ScheduleII, &stats.ScheduleIII,
		&stats.ScheduleIV, &stats.ScheduleV, &stats.Reported, &stats.Unreported,
	); err != nil {
		return nil, err
	}
	if stats.TotalDispensings > 0 {
		stats.ReportingRate = float64(stats.Reported) / float64(stats.TotalDispensings) * 100
	}
	return &stats, nil
}
