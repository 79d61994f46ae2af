package entities

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a fatal stage failure
type ErrorKind string

// Stage failure kinds. Every kind is terminal for its pipeline instance.
const (
	ErrCheckout         ErrorKind = "CheckoutError"
	ErrProvisioning     ErrorKind = "ProvisioningError"
	ErrFormat           ErrorKind = "FormatViolation"
	ErrTest             ErrorKind = "TestFailure"
	ErrLicensePolicy    ErrorKind = "LicensePolicyViolation"
	ErrManifestAssembly ErrorKind = "ManifestAssemblyError"
	ErrCompilation      ErrorKind = "CompilationError"
	ErrPublish          ErrorKind = "PublishError"
)

// StageError is the error every stage returns on failure
type StageError struct {
	Kind        ErrorKind
	Stage       StageName
	Diagnostics string
	Err         error
}

// NewStageError creates a stage error
func NewStageError(kind ErrorKind, stage StageName, diagnostics string, err error) *StageError {
	return &StageError{
		Kind:        kind,
		Stage:       stage,
		Diagnostics: diagnostics,
		Err:         err,
	}
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s in stage %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s in stage %s", e.Kind, e.Stage)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries a StageError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind == kind
	}
	return false
}
