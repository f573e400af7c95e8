package solve

import (
	"context"
	"sort"

	"github.com/crillab/gophersat/solver"
	"github.com/rs/zerolog/log"
)

// UpdateModifier selects how aggressively the solver is permitted to
// change already-installed records (spec.md §4.5).
type UpdateModifier string

const (
	FreezeInstalled         UpdateModifier = "FREEZE_INSTALLED"
	UpdateSpecs             UpdateModifier = "UPDATE_SPECS"
	UpdateDeps              UpdateModifier = "UPDATE_DEPS"
	UpdateAll               UpdateModifier = "UPDATE_ALL"
	SpecsSatisfiedSkipSolve UpdateModifier = "SPECS_SATISFIED_SKIP_SOLVE"
)

// SolveRequest is everything the Solver needs for one solve attempt.
type SolveRequest struct {
	Specs                    []MatchSpec
	Installed                []*PackageRecord
	History                  []MatchSpec
	Removals                 []MatchSpec
	AggressiveUpdatePackages []string
	Channels                 Multichannel
	UpdateModifier           UpdateModifier
}

// SolveResult is the selected record set for a successful solve.
type SolveResult struct {
	Selected []*PackageRecord
}

// Solver drives LogicEncoder and gophersat through the state machine
// and lexicographic optimization sequence in spec.md §4.5.
type Solver struct {
	Index *PackageIndex
}

// NewSolver constructs a Solver over the full (unreduced) index.
func NewSolver(index *PackageIndex) *Solver {
	return &Solver{Index: index}
}

// Solve runs INIT → COLLECT_SPECS → REDUCE → ENCODE → SAT_QUERY →
// OPTIMIZE_1..N → VERIFY → DONE, or fails into PackagesNotFoundError /
// UnsatisfiableError / an internal-error assertion.
func (s *Solver) Solve(ctx context.Context, req SolveRequest) (*SolveResult, error) {
	rootSpecs, err := s.collectSpecs(req)
	if err != nil {
		return nil, err
	}

	if req.UpdateModifier == SpecsSatisfiedSkipSolve && specsSatisfiedByInstalled(rootSpecs, req.Installed) {
		log.Ctx(ctx).Debug().Msg("all specs already satisfied by installed set, skipping SAT phase")
		return &SolveResult{Selected: req.Installed}, nil
	}

	var missing []string
	for _, spec := range rootSpecs {
		if len(s.Index.Matching(spec)) == 0 {
			missing = append(missing, spec.raw)
		}
	}
	if len(missing) > 0 {
		return nil, newPackagesNotFoundError(missing)
	}

	reduced, err := s.Index.Reduce(ctx, rootSpecs)
	if err != nil {
		return nil, err
	}

	encoder := NewLogicEncoder(ctx, reduced)
	baseClauses, err := encoder.EncodeBaseClauses(ctx)
	if err != nil {
		return nil, err
	}

	demandClauses, demandMissing := encoder.EncodeSpecs(rootSpecs)
	if len(demandMissing) > 0 {
		return nil, newPackagesNotFoundError(demandMissing)
	}

	nonDemandClauses := append([][]int{}, baseClauses...)
	nonDemandClauses = append(nonDemandClauses, s.encodeRemovals(encoder, req.Removals)...)
	nonDemandClauses = append(nonDemandClauses, s.encodeAggressiveUpdatePins(encoder, req)...)
	nonDemandClauses = append(nonDemandClauses, s.encodeChannelPriorityStrict(encoder, req)...)

	hardClauses := append(append([][]int{}, nonDemandClauses...), demandClauses...)

	freezeClauses := s.encodeFreeze(encoder, req)
	tryClauses := append(append([][]int{}, hardClauses...), freezeClauses...)

	if !isSAT(ctx, tryClauses, encoder.NumVars()) {
		if len(freezeClauses) > 0 {
			log.Ctx(ctx).Debug().Msg("freeze-installed solve was unsatisfiable, retrying without freeze")
			tryClauses = hardClauses
			if !isSAT(ctx, tryClauses, encoder.NumVars()) {
				return nil, s.analyzeConflict(ctx, encoder, nonDemandClauses, rootSpecs)
			}
		} else {
			return nil, s.analyzeConflict(ctx, encoder, nonDemandClauses, rootSpecs)
		}
	}

	model, err := s.optimize(ctx, encoder, tryClauses, req)
	if err != nil {
		return nil, err
	}

	selected := extractSelected(encoder, model)
	if err := s.verifyModel(rootSpecs, selected); err != nil {
		return nil, err
	}
	return &SolveResult{Selected: selected}, nil
}

// collectSpecs merges the request's explicit specs with history
// specs not explicitly removed or reissued, and (for UPDATE_ALL) a
// floating bare-name spec per installed record (spec.md §4.5 objective
// 2 and UpdateModifier variants). Two explicit Specs sharing a name
// (e.g. a user-requested spec and a pinned-package spec the caller
// folded into the same slice) are combined with MatchSpec.Merge rather
// than one silently discarding the other, so a pin genuinely narrows
// the demand instead of being overridable by whichever spec happened
// to come later in the slice.
func (s *Solver) collectSpecs(req SolveRequest) ([]MatchSpec, error) {
	byName := make(map[string]MatchSpec)
	order := make([]string, 0, len(req.Specs)+len(req.History))
	add := func(spec MatchSpec) {
		if _, ok := byName[spec.Name]; !ok {
			order = append(order, spec.Name)
		}
		byName[spec.Name] = spec
	}

	removed := make(map[string]struct{}, len(req.Removals))
	for _, r := range req.Removals {
		removed[r.Name] = struct{}{}
	}

	for _, spec := range req.Specs {
		existing, ok := byName[spec.Name]
		if !ok {
			add(spec)
			continue
		}
		merged, err := existing.Merge(spec)
		if err != nil {
			return nil, newParseError("pinned/requested spec conflict", spec.raw, err)
		}
		byName[spec.Name] = merged
	}
	for _, spec := range req.History {
		if _, isRemoved := removed[spec.Name]; isRemoved {
			continue
		}
		if _, already := byName[spec.Name]; already {
			continue
		}
		add(spec)
	}

	if req.UpdateModifier == UpdateAll {
		for _, r := range req.Installed {
			if _, already := byName[r.Name]; already {
				continue
			}
			add(MatchSpec{Name: r.Name})
		}
	}

	if req.UpdateModifier == UpdateDeps {
		depNames := s.oneLevelDependencyNames(req.Specs)
		for name := range depNames {
			if _, isRemoved := removed[name]; isRemoved {
				continue
			}
			if existing, ok := byName[name]; ok && existing.hasVersion {
				byName[name] = MatchSpec{Name: name}
			}
		}
	}

	out := make([]MatchSpec, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}

// oneLevelDependencyNames returns the direct dependency names of the
// given specs' best (any) matching candidate, used to float
// UPDATE_DEPS's transitively-affected packages.
func (s *Solver) oneLevelDependencyNames(specs []MatchSpec) map[string]struct{} {
	out := make(map[string]struct{})
	for _, spec := range specs {
		for _, r := range s.Index.Matching(spec) {
			depends, err := r.ParsedDepends()
			if err != nil {
				continue
			}
			for _, d := range depends {
				out[d.Name] = struct{}{}
			}
		}
	}
	return out
}

func specsSatisfiedByInstalled(specs []MatchSpec, installed []*PackageRecord) bool {
	for _, spec := range specs {
		satisfied := false
		for _, r := range installed {
			if spec.Match(r) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

// encodeRemovals negates every candidate matching an explicit removal
// spec (objective 1: "Hard removals honored").
func (s *Solver) encodeRemovals(encoder *LogicEncoder, removals []MatchSpec) [][]int {
	var clauses [][]int
	for _, spec := range removals {
		for _, r := range encoder.index.Matching(spec) {
			clauses = append(clauses, UnitClause(encoder.VarID(r), true))
		}
	}
	return clauses
}

// encodeFreeze builds FREEZE_INSTALLED's unit clauses, pinning every
// installed record's exact identity true except names explicitly
// present in the request's own Specs (the user asked to change those).
func (s *Solver) encodeFreeze(encoder *LogicEncoder, req SolveRequest) [][]int {
	if req.UpdateModifier != FreezeInstalled {
		return nil
	}
	explicit := make(map[string]struct{}, len(req.Specs))
	for _, spec := range req.Specs {
		explicit[spec.Name] = struct{}{}
	}
	var clauses [][]int
	for _, r := range req.Installed {
		if _, ok := explicit[r.Name]; ok {
			continue
		}
		id := encoder.VarID(r)
		if id == 0 {
			continue
		}
		clauses = append(clauses, UnitClause(id, false))
	}
	return clauses
}

// encodeAggressiveUpdatePins forbids any candidate whose version is
// below the installed version, for names in the aggressive-update
// list not explicitly targeted by the request (objective 4).
func (s *Solver) encodeAggressiveUpdatePins(encoder *LogicEncoder, req SolveRequest) [][]int {
	if len(req.AggressiveUpdatePackages) == 0 {
		return nil
	}
	explicit := make(map[string]struct{}, len(req.Specs))
	for _, spec := range req.Specs {
		explicit[spec.Name] = struct{}{}
	}
	installedVersion := make(map[string]Version, len(req.Installed))
	for _, r := range req.Installed {
		installedVersion[r.Name] = r.Version
	}
	var clauses [][]int
	for _, name := range req.AggressiveUpdatePackages {
		if _, ok := explicit[name]; ok {
			continue
		}
		floor, hasInstalled := installedVersion[name]
		if !hasInstalled {
			continue
		}
		for _, r := range encoder.index.RecordsFor(name) {
			if r.Version.LessThan(floor) {
				clauses = append(clauses, UnitClause(encoder.VarID(r), true))
			}
		}
	}
	return clauses
}

// encodeChannelPriorityStrict forbids, per package name, every candidate
// from a channel strictly lower priority than that name's best available
// channel (Channel §"strict": "a package is forbidden from any channel
// of lower priority when any candidate exists in a higher-priority
// channel"). A no-op outside ChannelPriorityStrict.
func (s *Solver) encodeChannelPriorityStrict(encoder *LogicEncoder, req SolveRequest) [][]int {
	if req.Channels.Mode != ChannelPriorityStrict {
		return nil
	}
	var clauses [][]int
	for _, name := range encoder.index.Names() {
		records := encoder.index.RecordsFor(name)
		if len(records) == 0 {
			continue
		}
		best := req.Channels.PriorityOf(records[0].Channel.CanonicalName)
		for _, r := range records[1:] {
			if p := req.Channels.PriorityOf(r.Channel.CanonicalName); p < best {
				best = p
			}
		}
		for _, r := range records {
			if req.Channels.PriorityOf(r.Channel.CanonicalName) > best {
				clauses = append(clauses, UnitClause(encoder.VarID(r), true))
			}
		}
	}
	return clauses
}

// analyzeConflict runs spec.md §4.5's deletion-based minimal-conflict
// search: relax one spec at a time, in BFS order from the user's
// request, until the remaining demand is satisfiable.
func (s *Solver) analyzeConflict(ctx context.Context, encoder *LogicEncoder, baseClauses [][]int, rootSpecs []MatchSpec) error {
	groups, err := findConflictGroups(ctx, encoder, baseClauses, rootSpecs)
	if err != nil {
		return err
	}
	return newUnsatisfiableError(groups)
}

// optimize runs the lexicographic objective sequence (§4.5 objectives
// 3, 5-10; objectives 1/2/4 are hard clauses already folded into
// baseClauses before this is called). After each pass, the literals of
// every name whose weights differ in that pass are fixed to their
// optimum value (see fixDiscriminatingLiterals) before the next pass.
func (s *Solver) optimize(ctx context.Context, encoder *LogicEncoder, clauses [][]int, req SolveRequest) ([]bool, error) {
	fixed := append([][]int{}, clauses...)
	var model []bool

	passes := s.buildObjectivePasses(encoder, req)
	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return nil, wrapCancellation(err, "solve cancelled during optimization", extractSelected(encoder, model))
		}
		if len(pass.Lits) == 0 {
			continue
		}
		problem := solver.ParseSliceNb(fixed, encoder.NumVars())
		problem.SetCostFunc(pass.Lits, pass.Weights)
		sat := solver.New(problem)
		cost := sat.Minimize()
		if cost < 0 {
			return nil, newUnsatisfiableError([][]string{{"internal: objective pass " + pass.Name}})
		}
		model = sat.Model()
		fixed = append(fixed, fixDiscriminatingLiterals(encoder, pass, model)...)
		log.Ctx(ctx).Debug().Str("objective", pass.Name).Int("cost", cost).Msg("optimization pass complete")
	}

	if model == nil {
		// No applicable objective carried any variable (e.g. trivial
		// single-candidate solve); recover a model with a plain SAT
		// check using an all-zero cost function.
		problem := solver.ParseSliceNb(fixed, encoder.NumVars())
		sat := solver.New(problem)
		if sat.Minimize() < 0 {
			return nil, newUnsatisfiableError([][]string{{"internal: no model after fixation"}})
		}
		model = sat.Model()
	}
	return model, nil
}

// fixDiscriminatingLiterals fixes a pass's literals to their model
// value only within name-groups where this pass's weights actually
// differ; a group tied on weight carries no information for this
// objective and is left open so a later pass can still break the tie.
// Fixing every literal unconditionally would lock in an arbitrary
// choice among equally-weighted candidates (e.g. every candidate of a
// single-channel package ties on channel_priority) before
// maximize_version ever got a say.
func fixDiscriminatingLiterals(encoder *LogicEncoder, pass objectivePass, model []bool) [][]int {
	type group struct {
		lits    []solver.Lit
		weights []int
	}
	groups := make(map[string]*group)
	var order []string
	for i, lit := range pass.Lits {
		name := ""
		if r := encoder.RecordOf(int(lit.Var()) + 1); r != nil {
			name = r.Name
		}
		g, ok := groups[name]
		if !ok {
			g = &group{}
			groups[name] = g
			order = append(order, name)
		}
		g.lits = append(g.lits, lit)
		g.weights = append(g.weights, pass.Weights[i])
	}

	var clauses [][]int
	for _, name := range order {
		g := groups[name]
		discriminates := false
		for _, w := range g.weights {
			if w != g.weights[0] {
				discriminates = true
				break
			}
		}
		if !discriminates {
			continue
		}
		for _, lit := range g.lits {
			id := int(lit.Var()) + 1
			if id-1 < 0 || id-1 >= len(model) {
				continue
			}
			clauses = append(clauses, UnitClause(id, !model[id-1]))
		}
	}
	return clauses
}

type objectivePass struct {
	Name    string
	Lits    []solver.Lit
	Weights []int
}

// buildObjectivePasses materializes the rank-weighted cost vectors for
// the literal minimize/maximize objectives, in priority order.
func (s *Solver) buildObjectivePasses(encoder *LogicEncoder, req SolveRequest) []objectivePass {
	var passes []objectivePass

	// Channel §"strict"/"disabled": strict already excluded lower-priority
	// candidates as hard clauses before optimization started, and
	// "disabled" means no channel-related optimization at all — the soft
	// minimization objective below applies only under "flexible".
	if req.Channels.Mode != ChannelPriorityDisabled && req.Channels.Mode != ChannelPriorityStrict {
		var chanLits []solver.Lit
		var chanWeights []int
		for _, name := range encoder.index.Names() {
			for _, r := range encoder.index.RecordsFor(name) {
				priority := req.Channels.PriorityOf(r.Channel.CanonicalName)
				chanLits = append(chanLits, solver.IntToLit(int32(encoder.VarID(r))))
				chanWeights = append(chanWeights, priority)
			}
		}
		passes = append(passes, objectivePass{Name: "channel_priority", Lits: chanLits, Weights: chanWeights})
	}

	passes = append(passes, rankObjective(encoder, "maximize_version", func(a, b *PackageRecord) int {
		return a.Version.Compare(b.Version)
	}))
	passes = append(passes, rankObjective(encoder, "maximize_build_number", func(a, b *PackageRecord) int {
		switch {
		case a.BuildNumber < b.BuildNumber:
			return -1
		case a.BuildNumber > b.BuildNumber:
			return 1
		default:
			return 0
		}
	}))
	passes = append(passes, countObjective(encoder, "minimize_track_features", func(r *PackageRecord) bool {
		return len(r.TrackFeatures) > 0
	}))
	passes = append(passes, countObjective(encoder, "minimize_features", func(r *PackageRecord) bool {
		return len(r.Features) > 0
	}))
	passes = append(passes, objectivePass{Name: "minimize_total_packages", Lits: allLits(encoder), Weights: allOnes(encoder)})
	passes = append(passes, rankObjective(encoder, "maximize_timestamp", func(a, b *PackageRecord) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	}))
	passes = append(passes, rankObjective(encoder, "maximize_build_string", func(a, b *PackageRecord) int {
		return compareBuildStrings(a.Build, b.Build)
	}))
	return passes
}

// rankObjective assigns, within each name's candidates sorted
// ascending by cmp, each candidate a weight equal to the number of
// distinct cmp values above it: the best candidate costs 0, making
// minimization equivalent to maximizing cmp, and candidates that cmp
// ranks equal share a weight.
func rankObjective(encoder *LogicEncoder, name string, cmp func(a, b *PackageRecord) int) objectivePass {
	var lits []solver.Lit
	var weights []int
	for _, n := range encoder.index.Names() {
		records := append([]*PackageRecord{}, encoder.index.RecordsFor(n)...)
		sort.Slice(records, func(i, j int) bool { return cmp(records[i], records[j]) < 0 })
		ranks := make([]int, len(records))
		for i := len(records) - 2; i >= 0; i-- {
			ranks[i] = ranks[i+1]
			if cmp(records[i], records[i+1]) < 0 {
				ranks[i]++
			}
		}
		for i, r := range records {
			lits = append(lits, solver.IntToLit(int32(encoder.VarID(r))))
			weights = append(weights, ranks[i])
		}
	}
	return objectivePass{Name: name, Lits: lits, Weights: weights}
}

func countObjective(encoder *LogicEncoder, name string, carries func(r *PackageRecord) bool) objectivePass {
	var lits []solver.Lit
	var weights []int
	for _, n := range encoder.index.Names() {
		for _, r := range encoder.index.RecordsFor(n) {
			if !carries(r) {
				continue
			}
			lits = append(lits, solver.IntToLit(int32(encoder.VarID(r))))
			weights = append(weights, 1)
		}
	}
	return objectivePass{Name: name, Lits: lits, Weights: weights}
}

func allLits(encoder *LogicEncoder) []solver.Lit {
	var lits []solver.Lit
	for id := 1; id <= encoder.NumVars(); id++ {
		lits = append(lits, solver.IntToLit(int32(id)))
	}
	return lits
}

func allOnes(encoder *LogicEncoder) []int {
	weights := make([]int, encoder.NumVars())
	for i := range weights {
		weights[i] = 1
	}
	return weights
}

// isSAT checks satisfiability of a clause set via a zero-weight
// Minimize call (gophersat exposes no separate bare-SAT entrypoint in
// the way this codebase calls it).
func isSAT(ctx context.Context, clauses [][]int, numVars int) bool {
	if ctx.Err() != nil {
		return false
	}
	if numVars == 0 {
		return true
	}
	problem := solver.ParseSliceNb(clauses, numVars)
	problem.SetCostFunc(nil, nil)
	sat := solver.New(problem)
	return sat.Minimize() >= 0
}

// extractSelected reads the true variables out of a model into
// PackageRecords.
func extractSelected(encoder *LogicEncoder, model []bool) []*PackageRecord {
	var out []*PackageRecord
	for id := 1; id <= encoder.NumVars(); id++ {
		if id-1 >= len(model) {
			continue
		}
		if !model[id-1] {
			continue
		}
		out = append(out, encoder.RecordOf(id))
	}
	return out
}

// verifyModel asserts that every root spec is satisfied by exactly
// one selected record of its name (spec.md §4.5 "verify the model").
func (s *Solver) verifyModel(rootSpecs []MatchSpec, selected []*PackageRecord) error {
	byName := make(map[string][]*PackageRecord)
	for _, r := range selected {
		byName[r.Name] = append(byName[r.Name], r)
	}
	for _, spec := range rootSpecs {
		candidates := byName[spec.Name]
		count := 0
		for _, r := range candidates {
			if spec.Match(r) {
				count++
			}
		}
		if count != 1 {
			return newUnsatisfiableError([][]string{{"internal: model verification failed for " + spec.raw}})
		}
	}
	for name, records := range byName {
		if len(records) != 1 {
			return newUnsatisfiableError([][]string{{"internal: at-most-one violated for " + name}})
		}
	}
	return nil
}
