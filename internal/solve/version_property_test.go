package solve

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Invariant 1 — version order is total.
// ---------------------------------------------------------------------------

func TestPropertyVersionOrderIsTotal(t *testing.T) {
	gen := newVersionGenerator(1)
	f := func() bool {
		a, b := gen.next(), gen.next()
		cmp := a.Compare(b)
		rev := b.Compare(a)
		switch cmp {
		case -1:
			return rev == 1
		case 0:
			return rev == 0
		case 1:
			return rev == -1
		default:
			return false
		}
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 500}))
}

// ---------------------------------------------------------------------------
// Invariant 2 — version round-trip: parse(str(v)) == v.
// ---------------------------------------------------------------------------

func TestPropertyVersionRoundTrip(t *testing.T) {
	gen := newVersionGenerator(2)
	f := func() bool {
		v := gen.next()
		reparsed, err := ParseVersion(v.String())
		if err != nil {
			return false
		}
		return reparsed.Equal(v)
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 500}))
}

// versionGenerator produces syntactically valid version strings drawn
// from the grammar in spec.md §4.1: [epoch!]release[_legacy][+local],
// release components mixing digit runs with dev/a/b/rc/post modifiers.
type versionGenerator struct {
	rnd *rand.Rand
}

func newVersionGenerator(seed int64) *versionGenerator {
	return &versionGenerator{rnd: rand.New(rand.NewSource(seed))}
}

var versionModifiers = []string{"", "", "", "dev", "a", "b", "rc", "post"}

func (g *versionGenerator) next() Version {
	s := g.randomVersionString()
	v, err := ParseVersion(s)
	if err != nil {
		// Grammar bugs would surface here as a quick.Check failure
		// rather than silently skipping the case.
		panic(fmt.Sprintf("generated an unparseable version %q: %v", s, err))
	}
	return v
}

func (g *versionGenerator) randomVersionString() string {
	s := ""
	if g.rnd.Intn(4) == 0 {
		s += fmt.Sprintf("%d!", g.rnd.Intn(3))
	}
	parts := 1 + g.rnd.Intn(3)
	for i := 0; i < parts; i++ {
		if i > 0 {
			s += "."
		}
		s += fmt.Sprintf("%d", g.rnd.Intn(20))
	}
	if mod := versionModifiers[g.rnd.Intn(len(versionModifiers))]; mod != "" {
		s += fmt.Sprintf("%s%d", mod, g.rnd.Intn(5))
	}
	if g.rnd.Intn(5) == 0 {
		s += fmt.Sprintf("+%d.%d", g.rnd.Intn(10), g.rnd.Intn(10))
	}
	return s
}

// ---------------------------------------------------------------------------
// Invariants 4, 6, 7, 8 — random DAG solves.
// ---------------------------------------------------------------------------

// randomPackageDAG builds a random acyclic dependency graph of n
// packages, each depending on a random subset of lower-numbered
// packages, with 1-3 version candidates per name. The last package
// (n-1) is never depended on by anything, so it is always safe to
// request by name alone.
func randomPackageDAG(rnd *rand.Rand, n int) ([]*PackageRecord, []*PackageRecord) {
	var all []*PackageRecord
	var installed []*PackageRecord
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("pkg%02d", i)
		versions := 1 + rnd.Intn(3)
		var depends []string
		if i > 0 {
			width := rnd.Intn(min(3, i)) + 1
			seen := make(map[int]bool, width)
			for len(seen) < width {
				seen[rnd.Intn(i)] = true
			}
			for j := range seen {
				depends = append(depends, fmt.Sprintf("pkg%02d", j))
			}
		}
		var best *PackageRecord
		for v := 1; v <= versions; v++ {
			r := &PackageRecord{
				Name:    name,
				Version: mustParseVersion(fmt.Sprintf("%d.0.0", v)),
				Build:   "0",
				Channel: Channel{CanonicalName: "defaults"},
				Depends: depends,
			}
			all = append(all, r)
			if best == nil || r.Version.GreaterThan(best.Version) {
				best = r
			}
		}
		if i%3 == 0 {
			installed = append(installed, &PackageRecord{
				Name:    name,
				Version: mustParseVersion("1.0.0"),
				Build:   "0",
				Channel: Channel{CanonicalName: "defaults"},
				Depends: depends,
			})
		}
	}
	return all, installed
}

func mustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// TestPropertyRandomDAGSolvesSatisfyInvariants drives the solver over
// many random DAGs of 1-50 packages and checks invariants 4, 6, 7, and
// 8 on every solve that succeeds, per spec.md §8's closing note.
func TestPropertyRandomDAGSolvesSatisfyInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(9))
	for trial := 0; trial < 30; trial++ {
		n := 1 + rnd.Intn(50)
		all, installed := randomPackageDAG(rnd, n)
		idx := NewPackageIndex(all)
		s := NewSolver(idx)

		rootSpec, err := ParseMatchSpec(fmt.Sprintf("pkg%02d", n-1))
		require.NoError(t, err)

		result, err := s.Solve(context.Background(), SolveRequest{
			Specs:     []MatchSpec{rootSpec},
			Installed: installed,
			Channels:  singleChannel("defaults"),
		})
		if err != nil {
			// An unsatisfiable random DAG is a legitimate outcome
			// (e.g. two installed versions of the same name); only
			// successful solves are asserted against the invariants.
			continue
		}

		// Invariant 4: solved_set satisfies the requested spec.
		assertSpecSatisfied(t, rootSpec, result.Selected)

		// Invariant 6: dropping the root spec from the request cannot
		// turn a successful solve into a failing one.
		_, err = s.Solve(context.Background(), SolveRequest{
			Installed: installed,
			Channels:  singleChannel("defaults"),
		})
		assert.NoError(t, err, "trial %d: removing the only spec must not make an otherwise-solvable graph fail", trial)

		// Invariants 7, 8: plan the transaction and check link and
		// unlink ordering.
		p := NewTransactionPlanner()
		tx, err := p.Plan(installed, result.Selected)
		require.NoError(t, err, "trial %d: transaction planning must not itself report a dependency violation", trial)
		assertLinkOrderSatisfiesDepends(t, trial, installed, tx.LinkActions)
		assertUnlinkOrderSatisfiesDepends(t, trial, installed, result.Selected, tx.UnlinkActions)
	}
}

func assertSpecSatisfied(t *testing.T, spec MatchSpec, selected []*PackageRecord) {
	t.Helper()
	for _, r := range selected {
		if spec.Match(r) {
			return
		}
	}
	t.Fatalf("solved_set %v does not satisfy requested spec %q", recordNames(selected), spec.raw)
}

// assertLinkOrderSatisfiesDepends checks invariant 7: every link
// action's depends are either already installed or earlier in the
// link list.
func assertLinkOrderSatisfiesDepends(t *testing.T, trial int, installed, linkOrder []*PackageRecord) {
	t.Helper()
	stillInstalled := make(map[string]bool, len(installed))
	for _, r := range installed {
		stillInstalled[r.Name] = true
	}
	linked := make(map[string]bool, len(linkOrder))
	for _, r := range linkOrder {
		depends, err := r.ParsedDepends()
		require.NoError(t, err)
		for _, d := range depends {
			if !linked[d.Name] && !stillInstalled[d.Name] {
				t.Fatalf("trial %d: link action %s depends on %s which is neither installed nor linked earlier", trial, r.Name, d.Name)
			}
		}
		linked[r.Name] = true
	}
}

// assertUnlinkOrderSatisfiesDepends checks invariant 8: by the time
// each unlink action runs, nothing still installed or queued later in
// the link list depends on it.
func assertUnlinkOrderSatisfiesDepends(t *testing.T, trial int, installed, selected, unlinkOrder []*PackageRecord) {
	t.Helper()
	selectedByName := make(map[string]*PackageRecord, len(selected))
	for _, r := range selected {
		selectedByName[r.Name] = r
	}
	unlinkedSoFar := make(map[string]bool, len(unlinkOrder))
	for _, r := range unlinkOrder {
		for _, other := range installed {
			if unlinkedSoFar[other.Name] || other.Name == r.Name {
				continue
			}
			if _, stillSelected := selectedByName[other.Name]; !stillSelected {
				continue
			}
			depends, err := other.ParsedDepends()
			require.NoError(t, err)
			for _, d := range depends {
				if d.Name == r.Name {
					t.Fatalf("trial %d: unlinking %s while still-selected %s depends on it", trial, r.Name, other.Name)
				}
			}
		}
		unlinkedSoFar[r.Name] = true
	}
}
