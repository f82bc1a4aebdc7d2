// Package errors defines the stable error code system for forge.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract; scripts match on these.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Configuration error codes
	ENoConfig      Code = "E_NO_CONFIG"
	EInvalidConfig Code = "E_INVALID_CONFIG"
	EInvalidSteps  Code = "E_INVALID_STEPS"

	// Step registry error codes
	EStepNotFound Code = "E_STEP_NOT_FOUND"

	// Lock store error codes
	ELocked            Code = "E_LOCKED"              // check: step is locked
	ELockWriteFailed   Code = "E_LOCK_WRITE_FAILED"   // lock record persist failed
	EBackupFailed      Code = "E_BACKUP_FAILED"       // backup snapshot copy failed
	EDefinitionMissing Code = "E_DEFINITION_MISSING"  // step definition file absent
	EStoreCorrupt      Code = "E_STORE_CORRUPT"       // lock record exists but unreadable
	EMatrixWriteFailed Code = "E_MATRIX_WRITE_FAILED" // matrix document persist failed

	// Executor error codes
	EPrereqMissing  Code = "E_PREREQ_MISSING"   // hard prerequisite absent before invocation
	EPhaseFailed    Code = "E_PHASE_FAILED"     // external build command exited non-zero
	ELogOpenFailed  Code = "E_LOG_OPEN_FAILED"  // run log file could not be opened
	EScriptNotFound Code = "E_SCRIPT_NOT_FOUND" // phase command script missing

	// Strike controller error codes
	EArchiveFailed Code = "E_ARCHIVE_FAILED" // error excerpt archive write failed
	EJournalFailed Code = "E_JOURNAL_FAILED" // journal append failed
)

// ForgeError is the standard error type for forge errors.
type ForgeError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *ForgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ForgeError) Unwrap() error {
	return e.Cause
}

// ExitCodeError wraps an error with an explicit process exit code.
// Used where the exit code itself is the contract (check, build).
type ExitCodeError struct {
	Err  error
	Code int
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func (e *ExitCodeError) ExitCode() int {
	return e.Code
}

// WithExitCode wraps err with a specific process exit code.
func WithExitCode(err error, code int) error {
	return &ExitCodeError{Err: err, Code: code}
}

// Silent returns an error that carries only an exit code and produces no
// stderr output. Used by `forge check`, whose status is its exit code.
func Silent(code int) error {
	return &ExitCodeError{Code: code}
}

// New creates a new ForgeError with the given code and message.
func New(code Code, msg string) error {
	return &ForgeError{Code: code, Msg: msg}
}

// NewWithDetails creates a new ForgeError with code, message, and details.
// Details map is defensively copied (nil if empty).
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &ForgeError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new ForgeError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &ForgeError{Code: code, Msg: msg, Cause: err}
}

// GetCode extracts the error code from an error, or empty string if not a ForgeError.
func GetCode(err error) Code {
	var fe *ForgeError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// AsForgeError returns (*ForgeError, true) if err is or wraps a ForgeError.
func AsForgeError(err error) (*ForgeError, bool) {
	var fe *ForgeError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// copyDetails returns a defensive copy of the details map, or nil if empty/nil.
func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
// ExitCodeError takes precedence so commands can propagate external
// command exit codes unchanged.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(interface{ ExitCode() int }); ok {
		return ec.ExitCode()
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
//
// Errors created via Silent produce no output.
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ece *ExitCodeError
	if errors.As(err, &ece) && ece.Err == nil {
		return
	}
	var fe *ForgeError
	if errors.As(err, &fe) {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", fe.Code)
		_, _ = fmt.Fprintln(w, fe.Msg)
	} else {
		_, _ = fmt.Fprintln(w, err.Error())
	}
}
