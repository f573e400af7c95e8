package app

import (
	"context"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"github.com/condasolve/condasolve/internal/solve"
)

// Solve runs the full control flow of spec.md §2: load the index and
// installed set, augment the request's specs with history and pinned
// specs, invoke the Solver, and hand the resulting package set to the
// TransactionPlanner. It does not mutate any persisted state; callers
// apply the plan and then call Commit.
func (s Service) Solve(ctx context.Context, req SolveRequest) (SolveResult, error) {
	if req.Prefix == "" {
		return SolveResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("prefix is required")
	}

	specs, err := parseMatchSpecs(req.Specs)
	if err != nil {
		return SolveResult{}, err
	}
	removals, err := parseMatchSpecs(req.Removals)
	if err != nil {
		return SolveResult{}, err
	}
	pinned, err := parseMatchSpecs(req.PinnedPackages)
	if err != nil {
		return SolveResult{}, err
	}

	channels := buildMultichannel(req)

	index, err := s.IndexProvider.LoadIndex(ctx, channels)
	if err != nil {
		return SolveResult{}, err
	}

	installedPrefix, err := s.PrefixData.LoadInstalled(ctx, req.Prefix)
	if err != nil {
		return SolveResult{}, err
	}
	installed := make([]*solve.PackageRecord, 0, len(installedPrefix))
	for _, pr := range installedPrefix {
		installed = append(installed, &pr.PackageRecord)
		index.Add(&pr.PackageRecord)
	}

	virtualRecords, err := parseVirtualPackages(req.VirtualPackages)
	if err != nil {
		return SolveResult{}, err
	}
	for _, r := range virtualRecords {
		index.Add(r)
	}

	historyEntries, err := s.History.Read(ctx, req.Prefix)
	if err != nil {
		if ctx.Err() != nil {
			return SolveResult{}, err
		}
		log.Ctx(ctx).Warn().Err(err).Msg("history unreadable, solving with empty history")
		historyEntries = nil
	}
	historySpecs := solve.DeriveHistorySpecs(historyEntries)

	solveReq := solve.SolveRequest{
		Specs:                    append(append([]solve.MatchSpec{}, specs...), pinned...),
		Installed:                installed,
		History:                  historySpecs,
		Removals:                 removals,
		AggressiveUpdatePackages: req.AggressiveUpdatePackages,
		Channels:                 channels,
		UpdateModifier:           req.UpdateModifier,
	}

	solver := solve.NewSolver(index)
	result, err := solver.Solve(ctx, solveReq)
	if err != nil {
		return SolveResult{}, err
	}

	planner := solve.NewTransactionPlanner()
	tx, err := planner.Plan(installed, result.Selected)
	if err != nil {
		return SolveResult{}, err
	}

	entry := solve.HistoryEntry{
		Timestamp:    s.now(),
		Command:      req.Command,
		SpecsAdded:   specs,
		SpecsRemoved: removals,
	}
	tx.History = entry

	return SolveResult{Transaction: tx, Selected: result.Selected, History: entry}, nil
}

// Commit persists the history entry of an already-applied transaction.
// Per spec.md §5, this must only be called after the caller has
// successfully applied every unlink/link action in the plan.
func (s Service) Commit(ctx context.Context, prefix string, result SolveResult) error {
	return s.History.Append(ctx, prefix, result.History, result.Selected)
}

func (s Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func parseMatchSpecs(raw []string) ([]solve.MatchSpec, error) {
	specs := make([]solve.MatchSpec, 0, len(raw))
	for _, s := range raw {
		spec, err := solve.ParseMatchSpec(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseVirtualPackages decodes "name=version=build" triples into
// PackageRecords tagged with the synthetic VirtualChannel, per
// spec.md §6: "records with name starting __ ... They carry versions
// and may appear in depends."
func parseVirtualPackages(raw []string) ([]*solve.PackageRecord, error) {
	records := make([]*solve.PackageRecord, 0, len(raw))
	for _, triple := range raw {
		parts := strings.SplitN(triple, "=", 3)
		if len(parts) < 2 {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("virtual package must be name=version[=build]: " + triple)
		}
		version, err := solve.ParseVersion(parts[1])
		if err != nil {
			return nil, err
		}
		build := ""
		if len(parts) == 3 {
			build = parts[2]
		}
		records = append(records, &solve.PackageRecord{
			Name:    parts[0],
			Version: version,
			Build:   build,
			Channel: solve.VirtualChannel,
		})
	}
	return records, nil
}

func buildMultichannel(req SolveRequest) solve.Multichannel {
	mode := req.ChannelPriority
	if mode == "" {
		mode = solve.ChannelPriorityFlexible
	}
	subdirs := req.Subdirs
	if len(subdirs) == 0 {
		subdirs = []string{"noarch"}
	}
	channels := make([]solve.Channel, 0, len(req.Channels))
	for _, name := range req.Channels {
		channels = append(channels, solve.Channel{CanonicalName: name, Subdirs: subdirs})
	}
	return solve.Multichannel{Channels: channels, Mode: mode}
}
