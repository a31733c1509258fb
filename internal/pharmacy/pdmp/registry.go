// Package pdmp submits controlled substance dispensings to the state
// prescription drug monitoring registry.
package pdmp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/circuitbreaker"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
)

// Submitter sends one log entry to the registry and returns the registry's
// report id.
type Submitter interface {
	Submit(ctx context.Context, entry *domain.ControlledSubstanceLog) (string, error)
}

// SimulatedRegistry stands in for a state registry integration. It validates
// the submission and issues a report id locally.
type SimulatedRegistry struct {
	stateCode string
	now       func() time.Time
	logger    *logger.Logger
}

// NewSimulatedRegistry creates a simulated registry. stateCode, when set,
// prefixes every report id.
func NewSimulatedRegistry(stateCode string, log *logger.Logger) *SimulatedRegistry {
	return &SimulatedRegistry{
		stateCode: strings.ToUpper(strings.TrimSpace(stateCode)),
		now:       time.Now,
		logger:    log.WithComponent("pdmp_registry"),
	}
}

// Submit implements Submitter.
func (r *SimulatedRegistry) Submit(ctx context.Context, entry *domain.ControlledSubstanceLog) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validate(entry); err != nil {
		return "", err
	}

	reportID := r.reportID()
	r.logger.Debug().
		Str("log_id", entry.ID).
		Str("report_id", reportID).
		Str("schedule", entry.DEASchedule).
		Msg("submission accepted")
	return reportID, nil
}

// reportID builds PDMP-<unix millis>-<9 random chars>.
func (r *SimulatedRegistry) reportID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	id := fmt.Sprintf("PDMP-%d-%s", r.now().UnixMilli(), suffix)
	if r.stateCode != "" {
		id = r.stateCode + "-" + id
	}
	return id
}

func validate(entry *domain.ControlledSubstanceLog) error {
	var missing []string
	if entry.ID == "" {
		missing = append(missing, "id")
	}
	if entry.PatientID == "" {
		missing = append(missing, "patient_id")
	}
	if entry.PrescriberID == "" {
		missing = append(missing, "prescriber_id")
	}
	if entry.DEASchedule == "" {
		missing = append(missing, "dea_schedule")
	}
	if entry.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return fmt.Errorf("pdmp submission incomplete: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BreakerSubmitter guards a Submitter with a circuit breaker. An open circuit
// fails the submission without calling the registry.
type BreakerSubmitter struct {
	next Submitter
	cb   *circuitbreaker.CircuitBreaker
}

// NewBreakerSubmitter wraps next with cb.
func NewBreakerSubmitter(next Submitter, cb *circuitbreaker.CircuitBreaker) *BreakerSubmitter {
	return &BreakerSubmitter{next: next, cb: cb}
}

// Submit implements Submitter.
func (b *BreakerSubmitter) Submit(ctx context.Context, entry *domain.ControlledSubstanceLog) (string, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Submit(ctx, entry)
	})
	if err != nil {
		return "", fmt.Errorf("pdmp registry: %w", err)
	}
	return res.(string), nil
}
