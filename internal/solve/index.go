package solve

import (
	"context"

	"github.com/rs/zerolog/log"
)

// PackageIndex aggregates PackageRecords from one or more channels,
// keyed by name for fast candidate lookup.
type PackageIndex struct {
	byName map[string][]*PackageRecord
	order  []string // insertion order of names, for deterministic iteration
}

// NewPackageIndex builds an index over the given records.
func NewPackageIndex(records []*PackageRecord) *PackageIndex {
	idx := &PackageIndex{byName: make(map[string][]*PackageRecord)}
	for _, r := range records {
		idx.Add(r)
	}
	return idx
}

// Add inserts a record into the index.
func (idx *PackageIndex) Add(r *PackageRecord) {
	if r == nil {
		return
	}
	if _, ok := idx.byName[r.Name]; !ok {
		idx.order = append(idx.order, r.Name)
	}
	idx.byName[r.Name] = append(idx.byName[r.Name], r)
}

// RecordsFor returns every candidate record for a package name.
func (idx *PackageIndex) RecordsFor(name string) []*PackageRecord {
	return idx.byName[name]
}

// Names returns every package name present in the index, in
// insertion order.
func (idx *PackageIndex) Names() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the total number of records held across all names.
func (idx *PackageIndex) Len() int {
	n := 0
	for _, recs := range idx.byName {
		n += len(recs)
	}
	return n
}

// Matching returns every record in the index satisfying spec.
func (idx *PackageIndex) Matching(spec MatchSpec) []*PackageRecord {
	var out []*PackageRecord
	for _, r := range idx.byName[spec.Name] {
		if spec.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Reduce computes the minimal closed subset of the index admitting
// every solution of the full problem, per spec.md §4.3: seed on the
// root specs, follow depends transitively, narrow (never seed) on
// constrains, and force in any record anywhere in the full index
// whose features set carries a track_feature already present in the
// closure.
func (idx *PackageIndex) Reduce(ctx context.Context, rootSpecs []MatchSpec) (*PackageIndex, error) {
	reduced := &PackageIndex{byName: make(map[string][]*PackageRecord)}
	visited := make(map[Identity]struct{})
	queue := make([]*PackageRecord, 0, 64)
	constrainsByName := make(map[string][]MatchSpec)
	tracked := make(map[string]struct{})

	enqueue := func(r *PackageRecord) {
		id := r.Identity()
		if _, ok := visited[id]; ok {
			return
		}
		visited[id] = struct{}{}
		reduced.Add(r)
		queue = append(queue, r)
		for _, tf := range r.TrackFeatures {
			tracked[tf] = struct{}{}
		}
	}

	for _, spec := range rootSpecs {
		for _, r := range idx.Matching(spec) {
			enqueue(r)
		}
	}

	drainQueue := func() error {
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				return wrapCancellation(err, "index reduction cancelled")
			}
			current := queue[0]
			queue = queue[1:]

			depends, err := current.ParsedDepends()
			if err != nil {
				return err
			}
			for _, dep := range depends {
				for _, candidate := range idx.Matching(dep) {
					enqueue(candidate)
				}
			}

			constrains, err := current.ParsedConstrains()
			if err != nil {
				return err
			}
			for _, c := range constrains {
				constrainsByName[c.Name] = append(constrainsByName[c.Name], c)
			}
		}
		return nil
	}

	// Iterate depends-BFS and track-features forcing to fixpoint: a
	// record forced in by a track_feature may itself carry depends or
	// further track_features that need following.
	for {
		if err := drainQueue(); err != nil {
			return nil, err
		}
		sizeBefore := reduced.Len()
		if len(tracked) > 0 {
			for _, name := range idx.order {
				for _, r := range idx.byName[name] {
					for _, f := range r.Features {
						if _, ok := tracked[f]; ok {
							enqueue(r)
							break
						}
					}
				}
			}
		}
		if reduced.Len() == sizeBefore {
			break
		}
	}

	for name, specs := range constrainsByName {
		candidates, ok := reduced.byName[name]
		if !ok {
			continue
		}
		var kept []*PackageRecord
		for _, r := range candidates {
			satisfiesAll := true
			for _, spec := range specs {
				if !spec.Match(r) {
					satisfiesAll = false
					break
				}
			}
			if satisfiesAll {
				kept = append(kept, r)
			}
		}
		reduced.byName[name] = kept
	}

	log.Ctx(ctx).Debug().
		Int("input_records", idx.Len()).
		Int("reduced_records", reduced.Len()).
		Int("root_specs", len(rootSpecs)).
		Msg("index reduction complete")

	return reduced, nil
}
