package service

import (
	"context"
	"strings"

	"github.com/medflow/medflow-pharmacy/internal/pharmacy/domain"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
	"github.com/medflow/medflow-pharmacy/pkg/logger"
	"github.com/medflow/medflow-pharmacy/pkg/metrics"
)

// InteractionChecker grades drug-drug interactions and patient allergies
// against reference data. It has no side effects.
type InteractionChecker struct {
	refs    ReferenceStore
	matcher NameMatcher
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewInteractionChecker creates a checker. A nil matcher defaults to
// SubstringMatcher.
func NewInteractionChecker(refs ReferenceStore, matcher NameMatcher, m *metrics.Metrics, log *logger.Logger) *InteractionChecker {
	if matcher == nil {
		matcher = SubstringMatcher{}
	}
	return &InteractionChecker{
		refs:    refs,
		matcher: matcher,
		metrics: m,
		logger:  log.WithComponent("interaction_checker"),
	}
}

// CheckInteractions looks up every unordered pair of distinct names. Fewer than
// two names yields an empty result.
func (c *InteractionChecker) CheckInteractions(ctx context.Context, medications []string) (*domain.InteractionResult, error) {
	names := distinctNames(medications)
	result := &domain.InteractionResult{Interactions: []domain.DrugInteraction{}}
	if len(names) < 2 {
		return result, nil
	}

	seen := make(map[string]bool)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			found, err := c.refs.FindInteractions(ctx, names[i], names[j])
			if err != nil {
				return nil, infra(err, "failed to look up drug interactions")
			}
			for _, ix := range found {
				key := ix.ID
				if key == "" {
					key = strings.ToLower(ix.Drug1 + "|" + ix.Drug2)
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				result.Interactions = append(result.Interactions, ix)

				switch ix.Severity {
				case domain.SeverityContraindicated:
					result.HasCriticalInteractions = true
				case domain.SeveritySevere:
					result.HasSevereInteractions = true
				case domain.SeverityModerate:
					result.HasModerateInteractions = true
				}
				c.metrics.IncSafetyFinding("interaction", string(ix.Severity))
			}
		}
	}

	return result, nil
}

// CheckAllergies matches the patient's active allergies against the names.
func (c *InteractionChecker) CheckAllergies(ctx context.Context, patientID string, medications []string) (*domain.AllergyResult, error) {
	allergies, err := c.refs.ActiveAllergies(ctx, patientID)
	if err != nil {
		return nil, infra(err, "failed to look up patient allergies")
	}

	result := &domain.AllergyResult{Allergies: []domain.AllergyMatch{}}
	names := distinctNames(medications)

	for _, allergy := range allergies {
		for _, name := range names {
			if !c.matcher.Match(allergy.Allergen, name) {
				continue
			}
			result.Allergies = append(result.Allergies, domain.AllergyMatch{DrugAllergy: allergy, Medication: name})
			result.HasAllergies = true

			severity := "non_critical"
			if allergy.Critical() {
				result.HasCriticalAllergies = true
				severity = "critical"
			}
			c.metrics.IncSafetyFinding("allergy", severity)
		}
	}

	return result, nil
}

// PerformSafetyCheck composes the interaction and allergy checks.
func (c *InteractionChecker) PerformSafetyCheck(ctx context.Context, patientID string, medications []string) (*domain.SafetyCheck, error) {
	interactions, err := c.CheckInteractions(ctx, medications)
	if err != nil {
		return nil, err
	}
	allergies, err := c.CheckAllergies(ctx, patientID, medications)
	if err != nil {
		return nil, err
	}

	check := &domain.SafetyCheck{
		InteractionCheck: *interactions,
		AllergyCheck:     *allergies,
	}
	check.IsSafe = !interactions.HasCriticalInteractions &&
		!interactions.HasSevereInteractions &&
		!allergies.HasCriticalAllergies
	// A review can be required even when the dispense is allowed.
	check.RequiresReview = interactions.HasSevereInteractions ||
		interactions.HasModerateInteractions ||
		allergies.HasAllergies

	if !check.IsSafe || check.RequiresReview {
		c.logger.Info().
			Str("patient_id", patientID).
			Bool("is_safe", check.IsSafe).
			Bool("requires_review", check.RequiresReview).
			Int("interactions", len(interactions.Interactions)).
			Int("allergies", len(allergies.Allergies)).
			Msg("safety check findings")
	}

	return check, nil
}

// distinctNames trims, drops blanks and removes case-insensitive duplicates
// while keeping first-seen order.
func distinctNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

// infra passes AppErrors through and wraps anything else as an
// infrastructure failure.
func infra(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return errors.Infrastructure(err, message)
}
