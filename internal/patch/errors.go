package patch

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a patch failure for callers.
type Kind string

// Error kinds.
const (
	KindValidation Kind = "validation-failed"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not-found"
	KindInternal   Kind = "internal"
)

// Sentinels matched by [Error.Is], one per [Kind].
var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("revision conflict")
	ErrNotFound   = errors.New("not found")
	ErrInternal   = errors.New("internal error")
)

// Reason is a machine-readable validation failure code.
type Reason string

// Validation reasons.
const (
	ReasonInvalidOp        Reason = "invalid_op"
	ReasonUnknownBlock     Reason = "unknown_block"
	ReasonBlockDeleted     Reason = "block_deleted"
	ReasonDuplicateBlockID Reason = "duplicate_block_id"
	ReasonCrossObject      Reason = "cross_object"
	ReasonCycle            Reason = "cycle"
	ReasonInvalidContent   Reason = "invalid_content"
	ReasonUnknownType      Reason = "unknown_block_type"
	ReasonAnchorNotSibling Reason = "anchor_not_sibling"
	ReasonNotDeleted       Reason = "not_deleted"
	ReasonParentDeleted    Reason = "parent_unreachable"
)

// NoOp is the OpIndex of errors not tied to one operation.
const NoOp = -1

// Error is the typed failure returned by the patch engine.
//
// Use [errors.Is] with the kind sentinels:
//
//	if errors.Is(err, patch.ErrConflict) { // re-read and retry }
//
// and [errors.As] to reach OpIndex and Reason for validation failures.
type Error struct {
	Kind    Kind
	OpIndex int    // OpIndex is the failing operation, or NoOp.
	Reason  Reason // Reason is set for validation failures.
	BlockID string // BlockID is the block the failure is about, when known.
	Err     error  // Err is the underlying cause.
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(e.sentinel().Error())

	if e.OpIndex != NoOp {
		fmt.Fprintf(&b, ": op %d", e.OpIndex)
	}

	if e.BlockID != "" {
		fmt.Fprintf(&b, " (block %s)", e.BlockID)
	}

	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindInternal:
		return ErrInternal
	}

	return ErrInternal
}

// Invalid builds a validation failure for operation i.
func Invalid(i int, reason Reason, blockID string, err error) *Error {
	return &Error{Kind: KindValidation, OpIndex: i, Reason: reason, BlockID: blockID, Err: err}
}

// Conflict builds a revision conflict.
func Conflict(objectID string, base, current int64) *Error {
	return &Error{
		Kind:    KindConflict,
		OpIndex: NoOp,
		Err:     fmt.Errorf("object %s is at revision %d, client read %d", objectID, current, base),
	}
}

// NotFound builds a not-found failure.
func NotFound(err error) *Error {
	return &Error{Kind: KindNotFound, OpIndex: NoOp, Err: err}
}

// Internal wraps a storage or programming failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, OpIndex: NoOp, Err: err}
}

// AsError returns err as an *Error, wrapping anything untyped as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr
	}

	return Internal(err)
}
