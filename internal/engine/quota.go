package engine

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts processed actions within one Drain call and enforces
// a maximum. It stops runaway cascades, where rules keep emitting follow-ons
// that are accepted forever.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check increments the step counter and validates against the limit.
// cascade names the action about to be processed.
func (q *QuotaEnforcer) Check(cascade string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Cascade: cascade,
			Steps:   q.current,
			Limit:   q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned by Drain when the step quota runs out.
// The action that would have exceeded the quota, and everything behind it,
// stays queued.
type StepsExceededError struct {
	Cascade string // Cascade of the first action not processed
	Steps   int    // Steps attempted, including the refused one
	Limit   int    // Maximum allowed steps
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("cascade %s exceeded max steps quota: %d steps > %d limit",
		e.Cascade, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
