package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/medflow-pharmacy/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError.
// Returns nil if the error is not a pq.Error or has no business meaning.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514": // check_violation
		return mapCheckConstraint(pqErr)
	case "23505": // unique_violation
		return errors.Conflict(formatConstraintMessage(pqErr))
	case "23503": // foreign_key_violation
		return errors.BadRequest("referenced record does not exist")
	case "23502": // not_null_violation
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{col: "must not be empty"})
	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.InvalidQuantity("quantity must not be negative")
	case strings.Contains(constraint, "return_within_dispensed"):
		return errors.InvalidQuantity("quantity returned exceeds quantity dispensed")
	case strings.Contains(constraint, "refills_within_allowed"):
		return errors.Validation(map[string]string{"refills_used": "must not exceed refills_allowed"})
	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{"status": "must be one of: dispensed, returned, cancelled"})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "inventory_lot"):
		return "a lot with this number already exists for this medication at this pharmacy"
	case strings.Contains(pqErr.Constraint, "report_id"):
		return "a controlled substance report with this id already exists"
	default:
		return "a record with these values already exists"
	}
}

// MapError returns the AppError for a constraint violation, or err unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}
