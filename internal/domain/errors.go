package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error kinds. Concrete errors below report errors.Is against these.
var (
	ErrNotFound          = errors.New("atom not found")
	ErrStructural        = errors.New("structural error")
	ErrDanglingReference = errors.New("dangling reference")
	ErrUnknownRule       = errors.New("unknown rule")
	ErrQuery             = errors.New("query error")
	ErrCycleDetected     = errors.New("cycle detected")
	ErrDepthExceeded     = errors.New("depth exceeded")
)

// StructuralError rejects a malformed atom or an integrity-violating removal.
type StructuralError struct {
	AtomID  ID
	Subtype string
	Reason  string
}

func (e *StructuralError) Error() string {
	switch {
	case e.AtomID != "":
		return fmt.Sprintf("structural error on %s: %s", e.AtomID, e.Reason)
	case e.Subtype != "":
		return fmt.Sprintf("structural error in %s: %s", e.Subtype, e.Reason)
	}
	return "structural error: " + e.Reason
}

func (e *StructuralError) Is(target error) bool { return target == ErrStructural }

func NewStructuralError(subtype, format string, args ...any) error {
	return errors.WithStack(&StructuralError{Subtype: subtype, Reason: fmt.Sprintf(format, args...)})
}

// DanglingReferenceError is returned when removing an atom that links still point at.
type DanglingReferenceError struct {
	AtomID       ID
	ReferencedBy []ID
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("atom %s is referenced by %d link(s)", e.AtomID, len(e.ReferencedBy))
}

func (e *DanglingReferenceError) Is(target error) bool { return target == ErrDanglingReference }

type UnknownRuleError struct {
	Rule string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("no truth-value formula registered for rule %q", e.Rule)
}

func (e *UnknownRuleError) Is(target error) bool { return target == ErrUnknownRule }

type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string { return "invalid query template: " + e.Reason }

func (e *QueryError) Is(target error) bool { return target == ErrQuery }

func NewQueryError(format string, args ...any) error {
	return errors.WithStack(&QueryError{Reason: fmt.Sprintf(format, args...)})
}

// BranchError records a backward-chaining branch that was abandoned.
type BranchError struct {
	Goal  string
	Depth int
	Kind  error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("%s at depth %d: %s", e.Kind, e.Depth, e.Goal)
}

func (e *BranchError) Is(target error) bool { return target == e.Kind }

func (e *BranchError) Unwrap() error { return e.Kind }
