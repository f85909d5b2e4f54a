// Package engineerr defines the single error taxonomy surfaced by the
// engine and its validators (§7). Every boundary-level failure --
// validation, policy resolution, loop configuration, the max-steps
// guard, and internal canonicalization failures -- is carried as an
// *Error, never a bare fmt.Errorf string, so callers (HTTP, CLI,
// library) can switch on Kind without parsing messages.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy discriminator from §7.
type Kind string

const (
	// KindValidation covers primitive-rule and schema-layer failures (C2).
	KindValidation Kind = "validation_error"
	// KindPolicy covers unknown policy, unknown/duplicate step (C3/C4).
	KindPolicy Kind = "policy_error"
	// KindLoopConfig covers malformed settings.loop (C5).
	KindLoopConfig Kind = "loop_config_error"
	// KindMaxSteps covers the C8 preamble's max-steps guard.
	KindMaxSteps Kind = "max_steps_exceeded"
	// KindNonCanonicalJSON covers C1 canonicalization failures (NaN/Inf).
	// Fatal and internal; surfaced as validation-equivalent at the boundary.
	KindNonCanonicalJSON Kind = "non_canonical_json"
)

// Error is the sole carrier type for boundary-level failures.
type Error struct {
	Kind    Kind
	Field   string // dotted field path, e.g. "settings.loop.max_iterations"
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

// New constructs an *Error. field may be "" when the failure is not
// attributable to a single field (e.g. an unknown policy name).
func New(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

// Validationf builds a KindValidation error with a formatted message.
func Validationf(field, format string, args ...interface{}) *Error {
	return New(KindValidation, field, fmt.Sprintf(format, args...))
}

// Policyf builds a KindPolicy error with a formatted message.
func Policyf(field, format string, args ...interface{}) *Error {
	return New(KindPolicy, field, fmt.Sprintf(format, args...))
}

// LoopConfigf builds a KindLoopConfig error with a formatted message.
func LoopConfigf(field, format string, args ...interface{}) *Error {
	return New(KindLoopConfig, field, fmt.Sprintf(format, args...))
}

// MaxStepsf builds a KindMaxSteps error with a formatted message.
func MaxStepsf(field, format string, args ...interface{}) *Error {
	return New(KindMaxSteps, field, fmt.Sprintf(format, args...))
}

// As reports whether err (or any error in its chain) is an *Error and,
// if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
