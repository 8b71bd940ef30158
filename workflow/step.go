// Package workflow implements the warranty-claim creation wizard: an
// explicit finite-state machine over the ordered claim steps, the draft
// aggregate each step fills in, technician ranking and selection, and the
// collaborator contracts the wizard depends on.
//
// The package is pure with respect to transport and storage: it performs no
// I/O of its own beyond calls through the injected collaborator interfaces.
package workflow

import (
	"fmt"

	"warranty-service/domain"
)

// Step is the wizard's position in the claim-creation sequence.
//
// Exactly one step is active at a time. The ordered sequence is
//
//	VALIDATE, DESCRIBE, ASSIGN, DOCUMENT, REVIEW
//
// with SUBMITTED and CANCELLED as terminal states.
type Step string

const (
	StepValidate  Step = "VALIDATE"
	StepDescribe  Step = "DESCRIBE"
	StepAssign    Step = "ASSIGN"
	StepDocument  Step = "DOCUMENT"
	StepReview    Step = "REVIEW"
	StepSubmitted Step = "SUBMITTED"
	StepCancelled Step = "CANCELLED"
)

// steps is the forward order of the non-terminal wizard steps.
var steps = []Step{StepValidate, StepDescribe, StepAssign, StepDocument, StepReview}

// IsTerminal reports whether the step ends the wizard.
func IsTerminal(s Step) bool {
	switch s {
	case StepSubmitted, StepCancelled:
		return true
	default:
		return false
	}
}

// Next returns the step following s, if any.
func Next(s Step) (Step, bool) {
	for i, cur := range steps {
		if cur == s && i+1 < len(steps) {
			return steps[i+1], true
		}
	}
	return "", false
}

// Prev returns the step preceding s, if any. There is no step before
// VALIDATE; going back from it is a cancel.
func Prev(s Step) (Step, bool) {
	for i, cur := range steps {
		if cur == s && i > 0 {
			return steps[i-1], true
		}
	}
	return "", false
}

// StepNumber returns the 1-based position of a non-terminal step.
func StepNumber(s Step) int {
	for i, cur := range steps {
		if cur == s {
			return i + 1
		}
	}
	return 0
}

func isAllowedTransition(from, to Step) bool {
	if IsTerminal(from) {
		return false
	}
	if to == StepCancelled {
		return true
	}
	if next, ok := Next(from); ok && to == next {
		return true
	}
	if prev, ok := Prev(from); ok && to == prev {
		return true
	}
	return from == StepReview && to == StepSubmitted
}

// Transition validates a single step change. Forward moves additionally
// require the current step's gate predicate to hold for the draft; backward
// moves and cancellation are always permitted from any non-terminal step.
func Transition(from, to Step, draft *ClaimDraft) (Step, error) {
	if !isAllowedTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	if next, ok := Next(from); ok && to == next {
		if err := GateError(from, draft); err != nil {
			return from, err
		}
	}
	if to == StepSubmitted && !CanSubmit(draft) {
		return from, &domain.ValidationError{Field: "draft", Reason: "vehicle, issue and technician assignment are required"}
	}
	return to, nil
}
