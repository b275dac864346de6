package services

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable code for a business-rule outcome.
type Reason string

const (
	ReasonPrerequisitesNotMet    Reason = "prerequisites_not_met"
	ReasonRequirementsIncomplete Reason = "requirements_incomplete"
	ReasonAlreadyUnlocked        Reason = "already_unlocked"
	ReasonNotUnlocked            Reason = "not_unlocked"
	ReasonPuzzleExpired          Reason = "puzzle_expired"
	ReasonAttemptsExhausted      Reason = "attempts_exhausted"
	ReasonIncorrectSolution      Reason = "incorrect_solution"
	ReasonInsufficientTier       Reason = "insufficient_tier"
	ReasonMissingCapability      Reason = "missing_capability"
	ReasonNoMatch                Reason = "no_match"
)

// Denial reports whether the reason is an authorization denial rather than a rule failure.
func (r Reason) Denial() bool {
	return r == ReasonInsufficientTier || r == ReasonMissingCapability
}

// ValidationError is malformed input. Not retryable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// BusinessRuleError is a terminal rule violation for the call.
type BusinessRuleError struct {
	Reason  Reason
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// TransientError wraps a storage failure. The whole operation may be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// InvariantError means the operation would corrupt state; its transaction is aborted.
type InvariantError struct {
	Message string
	Err     error
}

func (e *InvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violated: %s: %v", e.Message, e.Err)
	}
	return "invariant violated: " + e.Message
}

func (e *InvariantError) Unwrap() error { return e.Err }

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func ruleErr(reason Reason, format string, args ...interface{}) error {
	return &BusinessRuleError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// classify leaves typed engine errors alone and marks everything else transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		v *ValidationError
		b *BusinessRuleError
		i *InvariantError
		t *TransientError
	)
	if errors.As(err, &v) || errors.As(err, &b) || errors.As(err, &i) || errors.As(err, &t) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
