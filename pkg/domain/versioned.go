package domain

import (
	"time"

	dErrors "ownergraph/pkg/domain-errors"
)

// Versioned is one validity window of a value. ValidTo == nil means the
// version is still open. Versions are closed, never edited.
type Versioned[T any] struct {
	Value     T          `json:"value"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

// NewVersioned validates the window: ValidTo, when set, must be strictly after ValidFrom.
func NewVersioned[T any](value T, from time.Time, to *time.Time) (Versioned[T], error) {
	if from.IsZero() {
		return Versioned[T]{}, dErrors.New(dErrors.CodeValidation, "valid_from is required")
	}
	if to != nil && !to.After(from) {
		return Versioned[T]{}, dErrors.New(dErrors.CodeValidation, "valid_to must be after valid_from")
	}
	return Versioned[T]{Value: value, ValidFrom: from, ValidTo: to}, nil
}

// IsOpen reports whether the version has no end.
func (v Versioned[T]) IsOpen() bool {
	return v.ValidTo == nil
}

// ActiveAt reports whether t falls in [ValidFrom, ValidTo).
func (v Versioned[T]) ActiveAt(t time.Time) bool {
	if t.Before(v.ValidFrom) {
		return false
	}
	return v.ValidTo == nil || t.Before(*v.ValidTo)
}

// Overlaps reports whether two half-open windows share any instant.
func (v Versioned[T]) Overlaps(from time.Time, to *time.Time) bool {
	if v.ValidTo != nil && !v.ValidTo.After(from) {
		return false
	}
	if to != nil && !to.After(v.ValidFrom) {
		return false
	}
	return true
}

// CanClose checks that closing at t leaves a non-empty window.
func (v Versioned[T]) CanClose(t time.Time) error {
	if !v.IsOpen() {
		return dErrors.New(dErrors.CodeInvalidState, "version is already closed")
	}
	if !t.After(v.ValidFrom) {
		return dErrors.New(dErrors.CodeValidation, "close time must be after valid_from")
	}
	return nil
}

// ApplyClose ends the version at t. Call CanClose first.
func (v *Versioned[T]) ApplyClose(t time.Time) {
	end := t
	v.ValidTo = &end
}
