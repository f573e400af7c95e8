package solve

import (
	"context"
)

// findConflictGroups implements spec.md §4.5's conflict analysis: a
// deletion-based minimal-conflict search. Specs are relaxed one at a
// time, in BFS order from the user's request, and the remaining
// demand is retried; every name relaxed before the remaining demand
// became satisfiable is reported as part of the conflicting group,
// including dependency names from the BFS order that match no root
// spec.
func findConflictGroups(ctx context.Context, encoder *LogicEncoder, nonDemandClauses [][]int, rootSpecs []MatchSpec) ([][]string, error) {
	order := bfsSpecOrder(encoder, rootSpecs)
	active := append([]MatchSpec{}, rootSpecs...)
	var conflicted []string

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, wrapCancellation(err, "conflict analysis cancelled")
		}
		if satWithSpecs(ctx, encoder, nonDemandClauses, active) {
			break
		}
		active = removeSpecByName(active, name)
		conflicted = append(conflicted, name)
	}

	if len(conflicted) == 0 {
		// The full demand was already satisfiable on the first check
		// (or there was nothing to relax): the conflict lies outside
		// the root specs' demand clauses, so report every root spec as
		// one group for diagnostic purposes.
		for _, spec := range rootSpecs {
			conflicted = append(conflicted, spec.raw)
		}
	}
	return [][]string{conflicted}, nil
}

// bfsSpecOrder orders spec names by BFS distance over depends edges
// starting from the specs themselves, so directly-requested names are
// relaxed last and their deep transitive dependents are tried first.
func bfsSpecOrder(encoder *LogicEncoder, specs []MatchSpec) []string {
	visited := make(map[string]struct{})
	var order []string
	queue := make([]string, 0, len(specs))
	for _, s := range specs {
		if _, ok := visited[s.Name]; ok {
			continue
		}
		visited[s.Name] = struct{}{}
		queue = append(queue, s.Name)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		for _, r := range encoder.index.RecordsFor(name) {
			depends, err := r.ParsedDepends()
			if err != nil {
				continue
			}
			for _, d := range depends {
				if _, ok := visited[d.Name]; ok {
					continue
				}
				visited[d.Name] = struct{}{}
				queue = append(queue, d.Name)
			}
		}
	}

	// Reverse: deepest (most transitive) names first, the original
	// request names last, matching "relax leaves before roots".
	reversed := make([]string, len(order))
	for i, name := range order {
		reversed[len(order)-1-i] = name
	}
	return reversed
}

func satWithSpecs(ctx context.Context, encoder *LogicEncoder, nonDemandClauses [][]int, specs []MatchSpec) bool {
	demand, missing := encoder.EncodeSpecs(specs)
	if len(missing) > 0 {
		return false
	}
	clauses := append(append([][]int{}, nonDemandClauses...), demand...)
	return isSAT(ctx, clauses, encoder.NumVars())
}

func removeSpecByName(specs []MatchSpec, name string) []MatchSpec {
	out := make([]MatchSpec, 0, len(specs))
	for _, s := range specs {
		if s.Name == name {
			continue
		}
		out = append(out, s)
	}
	return out
}
