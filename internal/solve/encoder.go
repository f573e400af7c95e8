package solve

import (
	"context"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/crillab/gophersat/solver"
	"github.com/rs/zerolog/log"
)

// varKey maps a SAT variable ID back to the record it represents.
type varKey struct {
	Name    string
	Version string
	Build   string
	Channel string
}

// LogicEncoder compiles a reduced PackageIndex into a pseudo-boolean
// problem: one boolean variable per candidate record, at-most-one
// clauses per name, root-spec demand clauses, depends implication
// clauses, and constrains implication clauses (spec.md §4.4).
type LogicEncoder struct {
	index *PackageIndex

	varID     int
	varOf     map[Identity]int
	recordOf  map[int]*PackageRecord
	keyOf     map[int]varKey
	namesVars map[string][]int
}

// NewLogicEncoder allocates one SAT variable per record in the
// reduced index.
func NewLogicEncoder(ctx context.Context, index *PackageIndex) *LogicEncoder {
	e := &LogicEncoder{
		index:     index,
		varOf:     make(map[Identity]int),
		recordOf:  make(map[int]*PackageRecord),
		keyOf:     make(map[int]varKey),
		namesVars: make(map[string][]int),
	}
	for _, name := range index.Names() {
		for _, r := range index.RecordsFor(name) {
			assert.NotEmpty(ctx, r.Name, "every encoded record must carry a name")
			e.varID++
			id := e.varID
			e.varOf[r.Identity()] = id
			e.recordOf[id] = r
			e.keyOf[id] = varKey{Name: r.Name, Version: r.Version.String(), Build: r.Build, Channel: r.Channel.CanonicalName}
			e.namesVars[name] = append(e.namesVars[name], id)
		}
	}
	return e
}

// VarID returns the SAT variable allocated to a record, or 0 if the
// record is not part of this encoder's index.
func (e *LogicEncoder) VarID(r *PackageRecord) int {
	return e.varOf[r.Identity()]
}

// RecordOf returns the record a variable ID represents.
func (e *LogicEncoder) RecordOf(id int) *PackageRecord { return e.recordOf[id] }

// KeyOf returns the display identity of a variable, for logging.
func (e *LogicEncoder) KeyOf(id int) varKey { return e.keyOf[id] }

// NumVars returns the number of SAT variables allocated.
func (e *LogicEncoder) NumVars() int { return e.varID }

// EncodeBaseClauses builds the at-most-one and depends/constrains
// implication clauses that hold regardless of the requested specs.
// Root-spec demand clauses are added separately via EncodeSpecs, since
// they vary per solve attempt (freeze/relax/update-modifier variants).
func (e *LogicEncoder) EncodeBaseClauses(ctx context.Context) ([][]int, error) {
	var clauses [][]int

	for _, ids := range e.namesVars {
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				clauses = append(clauses, []int{-ids[i], -ids[j]})
			}
		}
	}

	for _, name := range e.index.Names() {
		for _, r := range e.index.RecordsFor(name) {
			if err := ctx.Err(); err != nil {
				return nil, wrapCancellation(err, "clause encoding cancelled")
			}
			id := e.varOf[r.Identity()]

			depends, err := r.ParsedDepends()
			if err != nil {
				return nil, err
			}
			for _, dep := range depends {
				var alt []int
				for _, candidate := range e.index.Matching(dep) {
					alt = append(alt, e.varOf[candidate.Identity()])
				}
				alt = uniqueVars(alt)
				if len(alt) == 0 {
					clauses = append(clauses, []int{-id})
					continue
				}
				clause := append([]int{-id}, alt...)
				clauses = append(clauses, clause)
			}

			constrains, err := r.ParsedConstrains()
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, e.encodeConstrains(id, constrains)...)
		}
	}

	log.Ctx(ctx).Debug().
		Int("vars", e.varID).
		Int("clauses", len(clauses)).
		Msg("logic encoder base clauses built")
	return clauses, nil
}

// encodeConstrains emits, for a record's single constrains predicate
// c over name m: x(r) AND x(r') -> (r' matches c), for every candidate
// r' of name m. Equivalently as a clause: -x(r) OR -x(r') OR
// (r' already satisfies c, dropped) — candidates that violate c are
// forbidden from co-occurring with r.
func (e *LogicEncoder) encodeConstrains(id int, constrains []MatchSpec) [][]int {
	var clauses [][]int
	for _, c := range constrains {
		for _, candidate := range e.index.RecordsFor(c.Name) {
			if c.Match(candidate) {
				continue
			}
			otherID := e.varOf[candidate.Identity()]
			clauses = append(clauses, []int{-id, -otherID})
		}
	}
	return clauses
}

// EncodeSpecs builds demand clauses (at least one matching record)
// for a set of MatchSpecs that must be satisfied, and returns the
// clauses plus the raw strings of the specs with zero candidates (for
// PackagesNotFoundError).
func (e *LogicEncoder) EncodeSpecs(specs []MatchSpec) (clauses [][]int, missing []string) {
	for _, spec := range specs {
		var alt []int
		for _, r := range e.index.Matching(spec) {
			alt = append(alt, e.varOf[r.Identity()])
		}
		alt = uniqueVars(alt)
		if len(alt) == 0 {
			missing = append(missing, spec.raw)
			continue
		}
		clauses = append(clauses, alt)
	}
	return clauses, missing
}

// UnitClause returns a singleton clause pinning (or forbidding, if
// negate) a variable.
func UnitClause(id int, negate bool) []int {
	if negate {
		return []int{-id}
	}
	return []int{id}
}

// CostVector pairs a SAT literal with an integer weight for
// gophersat's SetCostFunc, used by Solver's lexicographic
// minimization passes.
type CostVector struct {
	Lits    []solver.Lit
	Weights []int
}

func uniqueVars(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
