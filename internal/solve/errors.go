package solve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// newParseError builds a structured ParseError for any malformed
// version, version-spec, or match-spec input.
func newParseError(kind, input string, cause error) error {
	b := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("%s: invalid %s", input, kind))
	if cause != nil {
		b = b.WithCause(cause)
	}
	return b
}

// PackagesNotFoundError reports that one or more root specs matched
// no record anywhere in the index, prior to any SAT encoding.
type PackagesNotFoundError struct {
	Specs []string
}

func (e *PackagesNotFoundError) Error() string {
	return fmt.Sprintf("packages not found: %s", strings.Join(e.Specs, ", "))
}

func newPackagesNotFoundError(specs []string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg((&PackagesNotFoundError{Specs: specs}).Error()).
		WithCause(&PackagesNotFoundError{Specs: specs})
}

// UnsatisfiableError reports that the pseudo-boolean encoding admits
// no model, carrying the minimal conflicting spec group found by
// conflict analysis (spec.md §4.8).
type UnsatisfiableError struct {
	ConflictGroups [][]string
}

func (e *UnsatisfiableError) Error() string {
	var groups []string
	for _, g := range e.ConflictGroups {
		groups = append(groups, "["+strings.Join(g, ", ")+"]")
	}
	return fmt.Sprintf("unsatisfiable: %s", strings.Join(groups, ", "))
}

func newUnsatisfiableError(groups [][]string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg((&UnsatisfiableError{ConflictGroups: groups}).Error()).
		WithCause(&UnsatisfiableError{ConflictGroups: groups})
}

// HistoryCorruptedError reports a conda-meta/history file that could
// not be parsed as a sequence of transaction records.
type HistoryCorruptedError struct {
	Path string
	Line int
}

func (e *HistoryCorruptedError) Error() string {
	return fmt.Sprintf("history file %s corrupted at line %d", e.Path, e.Line)
}

func newHistoryCorruptedError(path string, line int) error {
	e := &HistoryCorruptedError{Path: path, Line: line}
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(e.Error()).
		WithCause(e)
}

// CancelledError wraps a context cancellation encountered mid-solve,
// matching spec.md §5's cooperative cancellation requirement.
type CancelledError struct {
	Reason string
	Cause  error
}

func (e *CancelledError) Error() string { return e.Reason }
func (e *CancelledError) Unwrap() error { return e.Cause }

// TimeoutError wraps a context deadline exceeded mid-solve, carrying
// the best model found so far if optimization had already produced
// one (spec.md §5: "Exceeding it returns Timeout with the best model
// found so far (or none)").
type TimeoutError struct {
	Reason    string
	Cause     error
	BestSoFar []*PackageRecord
}

func (e *TimeoutError) Error() string { return e.Reason }
func (e *TimeoutError) Unwrap() error { return e.Cause }

// wrapCancellation distinguishes a plain cancellation from a deadline
// exceeded, returning the matching error kind; bestSoFar is nil unless
// the caller already has a partial model (passed at the optimize-loop
// call sites, never at parse/encode-time ones).
func wrapCancellation(cause error, reason string, bestSoFar ...[]*PackageRecord) error {
	var best []*PackageRecord
	if len(bestSoFar) > 0 {
		best = bestSoFar[0]
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		timeoutReason := strings.Replace(reason, "cancelled", "timed out", 1)
		e := &TimeoutError{Reason: timeoutReason, Cause: cause, BestSoFar: best}
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(timeoutReason).
			WithCause(e)
	}
	e := &CancelledError{Reason: reason, Cause: cause}
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(reason).
		WithCause(e)
}
