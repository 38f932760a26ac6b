package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is used by callers that need an error for a missing id;
	// the repository itself signals absence with a bool.
	ErrNotFound = errors.New("store: event not found")
	// ErrPersist marks a failure to write a slot. The in-memory change that
	// triggered the write is kept.
	ErrPersist = errors.New("store: persist failed")
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("store: invalid input")
)

// LoadStatus tells the caller what Load found in the slot.
type LoadStatus int

const (
	// LoadFresh means the slot has never been written (first run).
	LoadFresh LoadStatus = iota
	// LoadRestored means the slot was decoded successfully.
	LoadRestored
)

func (s LoadStatus) String() string {
	switch s {
	case LoadFresh:
		return "fresh"
	case LoadRestored:
		return "restored"
	}
	return "unknown"
}

// CorruptSlotError is returned by Load when the slot exists but cannot be
// decoded. The collection is left at its fallback value.
type CorruptSlotError struct {
	Key string
	Err error
}

func (e *CorruptSlotError) Error() string {
	return fmt.Sprintf("store: slot %s is corrupt: %v", e.Key, e.Err)
}

func (e *CorruptSlotError) Unwrap() error { return e.Err }

// PersistError wraps a backend write failure; errors.Is(err, ErrPersist)
// holds for it.
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("store: persist %s: %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{ErrPersist, e.Err} }

// FieldError names one rejected field and the rule it failed.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every rejected field of an input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return "store: invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
