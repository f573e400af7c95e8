package app

import "github.com/condasolve/condasolve/internal/solve"

// SolveRequest is the caller-facing input to Service.Solve: everything
// control-flow step 1 of spec.md §2 says the caller supplies, phrased
// as raw strings rather than already-parsed solver types.
type SolveRequest struct {
	Prefix                   string
	Specs                    []string
	Removals                 []string
	Channels                 []string
	Subdirs                  []string
	ChannelPriority          solve.ChannelPriorityMode
	UpdateModifier           solve.UpdateModifier
	AggressiveUpdatePackages []string
	PinnedPackages           []string
	// VirtualPackages carries pre-computed virtual package records
	// (__glibc, __osx, __cuda, __archspec, __unix, __win, ...) as
	// "name=version=build" triples. Detecting the host's actual virtual
	// packages is explicitly out of the solver core's scope (spec.md
	// §1 Non-goals); the caller supplies the already-computed set.
	VirtualPackages []string
	Command         string
}

// SolveResult is the caller-facing output: the ordered transaction
// plan plus the history entry to persist once the caller actually
// applies the plan (spec.md §2 step 6, §5's "appended only after a
// successful transaction commit").
type SolveResult struct {
	Transaction *solve.Transaction
	Selected    []*solve.PackageRecord
	History     solve.HistoryEntry
}
