package solve

import (
	"context"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs the concrete end-to-end scenarios named S1-S7,
// each exercising the Solver (and, where relevant, the
// TransactionPlanner and history package) against a worked input/
// expected-output pair, table-driven over a name and a runner closure
// since each scenario asserts a different shape of outcome.
func TestScenarios(t *testing.T) {
	scenarios := []struct {
		name string
		run  func(t *testing.T)
	}{
		{"S1 trivial install", scenarioS1TrivialInstall},
		{"S2 channel priority strict", scenarioS2ChannelPriorityStrict},
		{"S3 unsatisfiable conflict", scenarioS3UnsatisfiableConflict},
		{"S4 update with freeze", scenarioS4UpdateWithFreeze},
		{"S5 update_all preserves user-requested names", scenarioS5UpdateAllPreservesUserRequestedNames},
		{"S6 pinned package", scenarioS6PinnedPackage},
		{"S6 pinned package conflict", scenarioS6PinnedPackageConflict},
		{"S7 virtual package gating", scenarioS7VirtualPackageGating},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, sc.run)
	}
}

// S1 — Trivial install: numpy depends on python and libblas; the link
// order must place both dependencies before numpy, unlink is empty,
// and history records the requested spec.
func scenarioS1TrivialInstall(t *testing.T) {
	python := mustRecord(t, "python", "3.10.12", "h_0")
	libblas := mustRecord(t, "libblas", "3.9.0", "h_0")
	numpy := mustRecord(t, "numpy", "1.24.0", "py310h_0")
	numpy.Depends = []string{"python >=3.10,<3.11", "libblas"}

	idx := NewPackageIndex([]*PackageRecord{python, libblas, numpy})
	s := NewSolver(idx)
	result, err := s.Solve(context.Background(), SolveRequest{
		Specs:    []MatchSpec{specOf(t, "numpy")},
		Channels: singleChannel("defaults"),
	})
	require.NoError(t, err)

	p := NewTransactionPlanner()
	tx, err := p.Plan(nil, result.Selected)
	require.NoError(t, err)
	assert.Empty(t, tx.UnlinkActions)

	names := recordNames(tx.LinkActions)
	require.Len(t, names, 3)
	numpyIdx := indexOfName(names, "numpy")
	assert.Less(t, indexOfName(names, "python"), numpyIdx)
	assert.Less(t, indexOfName(names, "libblas"), numpyIdx)

	prefix := t.TempDir()
	entry := HistoryEntry{Command: "condasolve solve numpy", SpecsAdded: []MatchSpec{specOf(t, "numpy")}}
	AppendHistory(context.Background(), prefix, entry, result.Selected)
	entries, err := ReadHistory(context.Background(), prefix)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].SpecsAdded, 1)
	assert.Equal(t, "numpy", entries[0].SpecsAdded[0].Name)
}

// S2 — Channel priority, strict: A (higher priority) offers foo 1.0, B
// offers foo 2.0; strict mode must pick A's candidate regardless of
// version. See solver_test.go for the flexible/disabled counterparts
// that the same scenario input also exercises.
func scenarioS2ChannelPriorityStrict(t *testing.T) {
	a := mustRecordInChannel(t, "A", "foo", "1.0.0", "0")
	b := mustRecordInChannel(t, "B", "foo", "2.0.0", "0")

	idx := NewPackageIndex([]*PackageRecord{a, b})
	s := NewSolver(idx)
	result, err := s.Solve(context.Background(), SolveRequest{
		Specs: []MatchSpec{specOf(t, "foo")},
		Channels: Multichannel{
			Channels: []Channel{{CanonicalName: "A"}, {CanonicalName: "B"}},
			Mode:     ChannelPriorityStrict,
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, "A", result.Selected[0].Channel.CanonicalName)
	assert.Equal(t, "1.0.0", result.Selected[0].Version.String())
}

// S3 — Unsatisfiable conflict: a depends c==1, b depends c==2;
// requesting both leaves no simultaneous assignment for c.
func scenarioS3UnsatisfiableConflict(t *testing.T) {
	a := mustRecord(t, "a", "1.0.0", "0")
	a.Depends = []string{"c==1"}
	b := mustRecord(t, "b", "1.0.0", "0")
	b.Depends = []string{"c==2"}
	c1 := mustRecord(t, "c", "1.0.0", "0")
	c2 := mustRecord(t, "c", "2.0.0", "0")

	idx := NewPackageIndex([]*PackageRecord{a, b, c1, c2})
	s := NewSolver(idx)
	_, err := s.Solve(context.Background(), SolveRequest{
		Specs:    []MatchSpec{specOf(t, "a"), specOf(t, "b")},
		Channels: singleChannel("defaults"),
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "unsatisfiable")

	var unsat *UnsatisfiableError
	require.ErrorAs(t, err, &unsat)
	var flat []string
	for _, g := range unsat.ConflictGroups {
		flat = append(flat, g...)
	}
	// bfsSpecOrder relaxes the deepest name (c) first, then b; a alone
	// is satisfiable so the search stops before a is ever relaxed.
	assert.Contains(t, flat, "c")
	assert.Contains(t, flat, "b")
}

// S4 — Update with freeze: freezing python at its installed 3.9.x
// collides with numpy 1.24's python>=3.10 requirement, so the first
// (frozen) pass is UNSAT; the solver retries without freeze and
// succeeds by upgrading both numpy and python. python is carried as a
// bare History spec (rather than an explicit Specs entry) so it is
// both reachable by Index.Reduce's BFS (pulling the installed 3.9.5
// candidate into the reduced index alongside 3.10.5) and still
// eligible for the freeze pin, which only exempts names the caller
// explicitly requested via Specs.
func scenarioS4UpdateWithFreeze(t *testing.T) {
	oldNumpy := mustRecord(t, "numpy", "1.20.0", "0")
	oldNumpy.Depends = []string{"python"}
	newNumpy := mustRecord(t, "numpy", "1.24.0", "0")
	newNumpy.Depends = []string{"python>=3.10"}
	oldPython := mustRecord(t, "python", "3.9.5", "0")
	newPython := mustRecord(t, "python", "3.10.5", "0")

	idx := NewPackageIndex([]*PackageRecord{oldNumpy, newNumpy, oldPython, newPython})
	s := NewSolver(idx)

	installed := []*PackageRecord{oldNumpy, oldPython}
	result, err := s.Solve(context.Background(), SolveRequest{
		Specs:          []MatchSpec{specOf(t, "numpy>=1.24")},
		History:        []MatchSpec{specOf(t, "python")},
		Installed:      installed,
		UpdateModifier: FreezeInstalled,
		Channels:       singleChannel("defaults"),
	})
	require.NoError(t, err, "freeze must retry without freeze and succeed by upgrading python")

	selectedVersion := make(map[string]string, len(result.Selected))
	for _, r := range result.Selected {
		selectedVersion[r.Name] = r.Version.String()
	}
	assert.Equal(t, "1.24.0", selectedVersion["numpy"])
	assert.Equal(t, "3.10.5", selectedVersion["python"])

	p := NewTransactionPlanner()
	tx, err := p.Plan(installed, result.Selected)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"numpy", "python"}, recordNames(tx.UnlinkActions))
	assert.ElementsMatch(t, []string{"numpy", "python"}, recordNames(tx.LinkActions))
}

// S5 — UPDATE_ALL preserves only user-requested names: both a and b
// are installed, history only recorded "+a", and UPDATE_ALL floats
// every installed name to its best available candidate.
func scenarioS5UpdateAllPreservesUserRequestedNames(t *testing.T) {
	newA := mustRecord(t, "a", "2.0.0", "0")
	newA.Depends = []string{"b>=2.0"}
	newB := mustRecord(t, "b", "2.0.0", "0")

	idx := NewPackageIndex([]*PackageRecord{newA, newB})
	s := NewSolver(idx)

	installedA := mustRecord(t, "a", "1.0.0", "0")
	installedB := mustRecord(t, "b", "1.0.0", "0")
	result, err := s.Solve(context.Background(), SolveRequest{
		History:        []MatchSpec{specOf(t, "a")},
		Installed:      []*PackageRecord{installedA, installedB},
		UpdateModifier: UpdateAll,
		Channels:       singleChannel("defaults"),
	})
	require.NoError(t, err)

	versions := make(map[string]string, len(result.Selected))
	for _, r := range result.Selected {
		versions[r.Name] = r.Version.String()
	}
	assert.Equal(t, "2.0.0", versions["a"])
	assert.Equal(t, "2.0.0", versions["b"])
}

// S6 — Pinned package: requests depends on python; a pinned
// "python=3.10" spec folded into the request (as the app layer does
// with PinnedPackages, per config.go's PinnedSpecs) narrows any
// solution to 3.10.x.
func scenarioS6PinnedPackage(t *testing.T) {
	python310 := mustRecord(t, "python", "3.10.4", "0")
	requests := mustRecord(t, "requests", "2.31.0", "pyhd8ed1ab_0")
	requests.Noarch = "python"
	requests.Depends = []string{"python"}

	idx := NewPackageIndex([]*PackageRecord{python310, requests})
	s := NewSolver(idx)
	result, err := s.Solve(context.Background(), SolveRequest{
		Specs:    []MatchSpec{specOf(t, "requests"), specOf(t, "python=3.10")},
		Channels: singleChannel("defaults"),
	})
	require.NoError(t, err)

	for _, r := range result.Selected {
		if r.Name == "python" {
			assert.True(t, r.Version.String() == "3.10.4", "python must be pinned to the 3.10.x line")
		}
	}
}

// S6 (conflict half) — requesting python=3.11 while python=3.10 is
// pinned leaves no candidate satisfying both; see the matchspec.go
// ledger entry in DESIGN.md for why this surfaces as
// PackagesNotFoundError rather than UnsatisfiableError.
func scenarioS6PinnedPackageConflict(t *testing.T) {
	python310 := mustRecord(t, "python", "3.10.4", "0")

	idx := NewPackageIndex([]*PackageRecord{python310})
	s := NewSolver(idx)
	_, err := s.Solve(context.Background(), SolveRequest{
		Specs:    []MatchSpec{specOf(t, "python=3.11"), specOf(t, "python=3.10")},
		Channels: singleChannel("defaults"),
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

// S7 — Virtual package gating: tensorflow-gpu depends on __cuda>=11,
// but the only __cuda virtual package present is 10.2, so no
// candidate can satisfy the dependency edge.
func scenarioS7VirtualPackageGating(t *testing.T) {
	tfGPU := mustRecord(t, "tensorflow-gpu", "2.10.0", "0")
	tfGPU.Depends = []string{"__cuda>=11"}
	cuda := mustRecordInChannel(t, VirtualChannel.CanonicalName, "__cuda", "10.2", "0")

	idx := NewPackageIndex([]*PackageRecord{tfGPU, cuda})
	s := NewSolver(idx)
	_, err := s.Solve(context.Background(), SolveRequest{
		Specs:    []MatchSpec{specOf(t, "tensorflow-gpu")},
		Channels: singleChannel("defaults"),
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "unsatisfiable")

	var unsat *UnsatisfiableError
	require.ErrorAs(t, err, &unsat)
	var flat []string
	for _, g := range unsat.ConflictGroups {
		flat = append(flat, g...)
	}
	assert.Contains(t, flat, "tensorflow-gpu")
}
