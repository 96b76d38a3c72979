package report

import (
	"errors"
	"fmt"

	"faultline/internal/bincode"
	"faultline/internal/taxonomy"
)

var (
	// ErrNoReporter is returned by methods called on a nil *Reporter.
	ErrNoReporter = errors.New("no reporter configured")
	// ErrInvalidCode is wrapped by InvalidCodeError.
	ErrInvalidCode = errors.New("invalid binary code")
	// ErrPipeline is wrapped by PipelineError.
	ErrPipeline = errors.New("reporting pipeline failed")
)

// Reserved codes used by the facade to report its own problems.
var (
	// MetaInvalidCode marks a report whose code argument was malformed.
	MetaInvalidCode = reserved(taxonomy.CategoryValidation, taxonomy.SevError, 0xFFFF)
	// PipelineFailureCode marks a failure inside the reporting pipeline.
	PipelineFailureCode = reserved(taxonomy.CategoryRuntime, taxonomy.SevCritical, 0xFFFE)
	// RejectedComposeCode marks a code the factory refused to build.
	RejectedComposeCode = reserved(taxonomy.CategoryValidation, taxonomy.SevError, 0xFFFD)
)

func reserved(c taxonomy.Category, s taxonomy.Severity, offset uint16) bincode.Code {
	return bincode.Components{
		Domain:   uint16(taxonomy.DomainSystem),
		Category: uint16(c),
		Severity: uint8(s),
		Source:   uint8(taxonomy.SourceSystem),
		Offset:   offset,
	}.Code()
}

// InvalidCodeError names the axis that did not resolve.
type InvalidCodeError struct {
	Code bincode.Code
	Axis string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("code %s: unknown %s", e.Code, e.Axis)
}

func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCode }

// PipelineError carries a recovered panic from the pipeline.
type PipelineError struct {
	Code  bincode.Code
	Cause any
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("reporting %s: %v", e.Code, e.Cause)
}

func (e *PipelineError) Unwrap() error { return ErrPipeline }

// FatalError is the panic value of Throw for should_throw severities.
type FatalError struct {
	Code     bincode.Code
	Severity string
	Context  map[string]any
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s report %s", e.Severity, e.Code)
}
