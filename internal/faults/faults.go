// Package faults defines the error taxonomy shared across the orchestrator,
// flow handlers and service clients. Every user-visible failure maps to one
// Kind, which decides retry behavior and the canned reply.
package faults

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure for propagation policy and user messaging.
type Kind string

const (
	// KindTransient indicates a network-level failure that may succeed on retry.
	KindTransient Kind = "transient"

	// KindRejected indicates a non-auth 4xx from an upstream service.
	KindRejected Kind = "rejected"

	// KindAuth indicates a 401/403 that survived the token-refresh retry.
	KindAuth Kind = "auth"

	// KindValidation indicates invalid user-supplied input caught before any call.
	KindValidation Kind = "validation"

	// KindAmbiguity indicates multiple candidates matched and the user must pick.
	KindAmbiguity Kind = "ambiguity"

	// KindConfirmation indicates a destructive action awaiting explicit consent.
	KindConfirmation Kind = "confirmation"

	// KindInternal indicates an unexpected failure inside an adapter or handler.
	KindInternal Kind = "internal"

	// KindBudget indicates an exhausted loop or step budget.
	KindBudget Kind = "budget"

	// KindRateLimited indicates the per-user ingress bucket rejected the turn.
	KindRateLimited Kind = "rate_limited"
)

// Fault is a categorized error. The zero Message falls back to the wrapped
// error's text.
type Fault struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	switch {
	case f.Message != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	case f.Message != "":
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	default:
		return string(f.Kind)
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// New creates a fault of the given kind.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Wrap wraps err with a kind and message.
func Wrap(kind Kind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to KindInternal.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage renders the canned user-facing reply for an error, per the
// propagation policy table.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindTransient:
		return "That didn't go through. Please try again in a moment."
	case KindAuth:
		return "I can't reach your account right now. Please reauthorize and try again."
	case KindValidation, KindAmbiguity:
		var f *Fault
		if errors.As(err, &f) && f.Message != "" {
			return f.Message
		}
		return "I need a bit more detail to do that."
	case KindBudget:
		return "I got stuck working on that. Please rephrase and try again."
	case KindRateLimited:
		return "You're sending messages too quickly. Give me a minute to catch up."
	case KindRejected:
		var f *Fault
		if errors.As(err, &f) && f.Message != "" {
			return f.Message
		}
		return "The service rejected that request."
	default:
		return "Something went wrong on my end. Please try again."
	}
}
