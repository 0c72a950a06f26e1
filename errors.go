package cloudbill

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("cloudbill: not found")
	ErrAlreadyExists = errors.New("cloudbill: already exists")
	ErrInvalidInput  = errors.New("cloudbill: invalid input")

	// Catalog errors
	ErrResourceNotFound      = errors.New("cloudbill: resource not found")
	ErrCategoryNotFound      = errors.New("cloudbill: category not found")
	ErrConfigurationNotFound = errors.New("cloudbill: configuration not found")
	ErrConfigurationConflict = errors.New("cloudbill: configuration belongs to another category")

	// Client errors
	ErrClientNotFound   = errors.New("cloudbill: client not found")
	ErrInstanceNotFound = errors.New("cloudbill: instance not found")
	ErrInvalidNIT       = errors.New("cloudbill: invalid NIT")

	// Consumption errors
	ErrConsumptionNotFound      = errors.New("cloudbill: consumption not found")
	ErrConsumptionAlreadyBilled = errors.New("cloudbill: consumption already billed")
	ErrInvalidDate              = errors.New("cloudbill: invalid date")
	ErrInvalidQuantity          = errors.New("cloudbill: invalid quantity")

	// Invoice errors
	ErrInvoiceNotFound        = errors.New("cloudbill: invoice not found")
	ErrDuplicateInvoiceNumber = errors.New("cloudbill: duplicate invoice number")
	ErrInvalidAnalysisMode    = errors.New("cloudbill: invalid analysis mode")

	// Store errors
	ErrStoreNotReady   = errors.New("cloudbill: store not ready")
	ErrStoreClosed     = errors.New("cloudbill: store is closed")
	ErrMigrationFailed = errors.New("cloudbill: migration failed")

	// Lock errors
	ErrGenerationInProgress = errors.New("cloudbill: invoice generation already in progress")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("cloudbill: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IntegrityError reports a violated store invariant, such as a reused
// invoice number or a consumption id that does not exist. Nothing is
// persisted when one is returned.
type IntegrityError struct {
	Err    error
	Detail string
}

func (e IntegrityError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError wraps a sentinel with the offending key.
func NewIntegrityError(err error, detail string) error {
	return IntegrityError{Err: err, Detail: detail}
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "cloudbill: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("cloudbill: %d errors occurred", len(e.Errors))
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrConfigurationNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsValidation returns true if the error was caused by malformed input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidNIT) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidAnalysisMode)
}

// IsIntegrity returns true if the error is a store integrity violation.
// Consumption lookups by id report ErrConsumptionNotFound inside an
// IntegrityError when they abort a billing run.
func IsIntegrity(err error) bool {
	var ie IntegrityError
	return errors.As(err, &ie) ||
		errors.Is(err, ErrDuplicateInvoiceNumber) ||
		errors.Is(err, ErrConsumptionAlreadyBilled) ||
		errors.Is(err, ErrConfigurationConflict)
}

// IsConflict returns true if the error means the operation clashes with
// work already in progress.
func IsConflict(err error) bool {
	return errors.Is(err, ErrGenerationInProgress) ||
		errors.Is(err, ErrAlreadyExists)
}
