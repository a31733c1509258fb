package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/medflow/medflow-pharmacy/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternal       = errors.New("internal server error")
	ErrValidation     = errors.New("validation error")
	ErrInfrastructure = errors.New("infrastructure unavailable")
)

// Dispensing rejection kinds. These are business-rule refusals and are not retryable.
var (
	ErrInvalidState          = errors.New("invalid state")
	ErrExpired               = errors.New("expired")
	ErrRefillsExhausted      = errors.New("refills exhausted")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrSafetyBlock           = errors.New("safety block")
	ErrPDMPBlock             = errors.New("pdmp block")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrLotNotFound           = errors.New("lot not found")
	ErrAlreadyReported       = errors.New("already reported")
	ErrMedicationMismatch    = errors.New("medication mismatch")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		MessageKey: "errors.forbidden",
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		MessageKey: "errors.conflict",
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Infrastructure wraps a store or broker failure. It never matches a business kind.
func Infrastructure(err error, message string) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %v", ErrInfrastructure, err),
		Code:       "INFRASTRUCTURE_ERROR",
		Message:    message,
		MessageKey: "errors.infrastructure",
		StatusCode: http.StatusServiceUnavailable,
	}
}

// Dispensing rejections

func InvalidState(status string) *AppError {
	return &AppError{
		Err:        ErrInvalidState,
		Code:       "INVALID_STATE",
		Message:    fmt.Sprintf("Prescription status is %s", status),
		MessageKey: "errors.invalid_state",
		Params:     map[string]string{"status": status},
		StatusCode: http.StatusConflict,
	}
}

func Expired() *AppError {
	return &AppError{
		Err:        ErrExpired,
		Code:       "PRESCRIPTION_EXPIRED",
		Message:    "Prescription has expired",
		MessageKey: "errors.expired",
		StatusCode: http.StatusConflict,
	}
}

func RefillsExhausted(used, allowed int) *AppError {
	return &AppError{
		Err:        ErrRefillsExhausted,
		Code:       "REFILLS_EXHAUSTED",
		Message:    "No refills remaining",
		MessageKey: "errors.refills_exhausted",
		Params:     map[string]string{"used": fmt.Sprint(used), "allowed": fmt.Sprint(allowed)},
		StatusCode: http.StatusConflict,
	}
}

func InsufficientInventory(available, requested int) *AppError {
	return &AppError{
		Err:        ErrInsufficientInventory,
		Code:       "INSUFFICIENT_INVENTORY",
		Message:    fmt.Sprintf("Insufficient inventory: %d available, %d requested", available, requested),
		MessageKey: "errors.insufficient_inventory",
		Params:     map[string]string{"available": fmt.Sprint(available), "requested": fmt.Sprint(requested)},
		StatusCode: http.StatusConflict,
	}
}

func SafetyBlock() *AppError {
	return &AppError{
		Err:        ErrSafetyBlock,
		Code:       "SAFETY_BLOCK",
		Message:    "Critical drug interaction or allergy detected",
		MessageKey: "errors.safety_block",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func PDMPBlock(alerts []string) *AppError {
	e := &AppError{
		Err:        ErrPDMPBlock,
		Code:       "PDMP_BLOCK",
		Message:    "PDMP alert requires intervention",
		MessageKey: "errors.pdmp_block",
		StatusCode: http.StatusUnprocessableEntity,
	}
	if len(alerts) > 0 {
		e.Details = make(map[string]string, len(alerts))
		for i, a := range alerts {
			e.Details[fmt.Sprintf("alert_%d", i+1)] = a
		}
	}
	return e
}

func InvalidQuantity(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidQuantity,
		Code:       "INVALID_QUANTITY",
		Message:    message,
		MessageKey: "errors.invalid_quantity",
		StatusCode: http.StatusBadRequest,
	}
}

func LotNotFound(lotNumber string) *AppError {
	return &AppError{
		Err:        ErrLotNotFound,
		Code:       "LOT_NOT_FOUND",
		Message:    fmt.Sprintf("Inventory item not found for lot %s", lotNumber),
		MessageKey: "errors.lot_not_found",
		Params:     map[string]string{"lot": lotNumber},
		StatusCode: http.StatusNotFound,
	}
}

func AlreadyReported(logID, reportID string) *AppError {
	return &AppError{
		Err:        ErrAlreadyReported,
		Code:       "ALREADY_REPORTED",
		Message:    fmt.Sprintf("Controlled substance log %s already reported as %s", logID, reportID),
		MessageKey: "errors.already_reported",
		Params:     map[string]string{"id": logID, "report_id": reportID},
		StatusCode: http.StatusConflict,
	}
}

// MedicationMismatch rejects a fill whose medication is not the one the
// prescription item was written for.
func MedicationMismatch(prescribed, requested string) *AppError {
	return (&AppError{
		Err:        ErrMedicationMismatch,
		Code:       "MEDICATION_MISMATCH",
		Message:    fmt.Sprintf("Prescription item is for %s, not %s", prescribed, requested),
		MessageKey: "errors.medication_mismatch",
		Params:     map[string]string{"prescribed": prescribed, "requested": requested},
		StatusCode: http.StatusUnprocessableEntity,
	}).WithDetails(map[string]string{"prescribed": prescribed, "requested": requested})
}

// IsBusiness reports whether err is a business-rule rejection as opposed to an
// infrastructure or internal failure.
func IsBusiness(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return !errors.Is(err, ErrInfrastructure) && !errors.Is(err, ErrInternal)
}

// Code returns the AppError code for err, or INTERNAL_ERROR.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
