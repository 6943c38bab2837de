package xlform

import (
	"errors"
	"fmt"
	"strings"
)

// Codec-level failures, fatal to the whole operation.
var (
	// ErrMalformedSpreadsheet indicates the bytes could not be decoded as a workbook.
	ErrMalformedSpreadsheet = errors.New("malformed spreadsheet")
	// ErrEmptySpreadsheet indicates the first sheet has no usable range.
	ErrEmptySpreadsheet = errors.New("empty spreadsheet")
)

// ErrInvalidAddress indicates malformed cell address text.
var ErrInvalidAddress = errors.New("invalid cell address")

var (
	ErrTemplateNotFound        = errors.New("template not found")
	ErrEmployeeNotFound        = errors.New("employee not found")
	ErrMissingEmployeeIDColumn = errors.New("could not find Employee ID column")
	ErrMissingEmployeeID       = errors.New("missing Employee ID")
	ErrValidationFailed        = errors.New("file validation failed")
	ErrFormulaEvaluation       = errors.New("formula evaluation error")
	ErrBatchNotFound           = errors.New("no data found for this batch")
)

// Store-level errors.
var (
	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	// It is the authoritative conflict signal between concurrent creates.
	ErrDuplicate          = errors.New("duplicate record")
	ErrEmployeeHasReports = errors.New("employee has active direct reports")
	ErrInvalidEmployee    = errors.New("invalid employee")
)

// FormulaError describes a formula that could not be evaluated for a row.
type FormulaError struct {
	Formula string
	Row     int // 1-based row number, for diagnostics
	Err     error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("evaluate formula %q at row %d: %v", e.Formula, e.Row, e.Err)
}

func (e *FormulaError) Unwrap() error {
	return e.Err
}

// ValidationError carries the hard errors that blocked an upload.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(e.Errors, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// RowError is a row-scoped failure. It is collected into a batch result and
// never aborts the batch.
type RowError struct {
	RowNumber  int    `json:"rowNumber"`
	EmployeeID string `json:"employeeId,omitempty"`
	Message    string `json:"error"`
	Err        error  `json:"-"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowNumber, e.Message)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
