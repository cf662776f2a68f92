// Package classifier implements the Error Classifier (C7): it maps a raw
// exception-equivalent value (kind, message, optional stack) plus the
// call context into an (ErrorCategory, ErrorSeverity) pair, pattern
// matching against the lowercased message and applying severity bumps
// for core components and for components already failing frequently.
package classifier

import (
	"time"

	"github.com/toolrun-ai/toolrund/pkg/types"
)

// RawError is the exception-equivalent value presented to the classifier.
type RawError struct {
	Kind    string
	Message string
	Stack   string
}

// Input bundles a RawError with the context the classifier needs to apply
// component-aware severity bumps.
type Input struct {
	Error     RawError
	Component string
	Call      types.CallContext

	// IsCoreComponent reports whether Component is one of the components
	// whose failures must never classify below medium severity.
	IsCoreComponent bool

	// FailuresLastHour is Component's observed failure count in the last
	// hour (from the Health/Failure Ledger), used for the frequency bump.
	FailuresLastHour int
}

// Classifier is the Error Classifier interface.
type Classifier interface {
	// Classify returns the category and severity for in. It builds no
	// ErrorEvent; ToErrorEvent does that.
	Classify(in Input) (types.Category, types.Severity)

	// ToErrorEvent is a convenience that classifies in and assembles the
	// full ErrorEvent, stamping the given id and timestamp.
	ToErrorEvent(in Input, id string, at time.Time) types.ErrorEvent
}
