package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condasolve/condasolve/internal/solve"
)

type fakeIndexProvider struct {
	records []*solve.PackageRecord
}

func (f fakeIndexProvider) LoadIndex(_ context.Context, _ solve.Multichannel) (*solve.PackageIndex, error) {
	return solve.NewPackageIndex(f.records), nil
}

type fakePrefixData struct {
	records []*solve.PrefixRecord
}

func (f fakePrefixData) LoadInstalled(_ context.Context, _ string) ([]*solve.PrefixRecord, error) {
	return f.records, nil
}

type fakeHistory struct {
	entries       []solve.HistoryEntry
	appended      bool
	appendedEntry solve.HistoryEntry
}

func (f *fakeHistory) Read(_ context.Context, _ string) ([]solve.HistoryEntry, error) {
	return f.entries, nil
}

func (f *fakeHistory) Append(_ context.Context, _ string, entry solve.HistoryEntry, _ []*solve.PackageRecord) error {
	f.appended = true
	f.appendedEntry = entry
	return nil
}

func mustPackageRecord(t *testing.T, name, version, build string) *solve.PackageRecord {
	t.Helper()
	v, err := solve.ParseVersion(version)
	require.NoError(t, err)
	return &solve.PackageRecord{Name: name, Version: v, Build: build, Channel: solve.Channel{CanonicalName: "conda-forge"}, Subdir: "linux-64"}
}

func TestServiceSolveRequiresPrefix(t *testing.T) {
	s := Service{}
	_, err := s.Solve(context.Background(), SolveRequest{})
	require.Error(t, err)
}

func TestServiceSolveEndToEnd(t *testing.T) {
	s := Service{
		PrefixData:    fakePrefixData{},
		History:       &fakeHistory{},
		IndexProvider: fakeIndexProvider{records: []*solve.PackageRecord{mustPackageRecord(t, "numpy", "1.0.0", "0"), mustPackageRecord(t, "numpy", "2.0.0", "0")}},
		Clock:         func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}

	result, err := s.Solve(context.Background(), SolveRequest{
		Prefix:   "/env",
		Specs:    []string{"numpy"},
		Channels: []string{"conda-forge"},
		Command:  "condasolve install numpy",
	})
	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, "2.0.0", result.Selected[0].Version.String())
	require.NotNil(t, result.Transaction)
	assert.Len(t, result.Transaction.LinkActions, 1)
	assert.Equal(t, "condasolve install numpy", result.History.Command)
	require.Len(t, result.History.SpecsAdded, 1)
	assert.Equal(t, "numpy", result.History.SpecsAdded[0].Name)
}

func TestServiceSolveRejectsMalformedSpec(t *testing.T) {
	s := Service{
		PrefixData:    fakePrefixData{},
		History:       &fakeHistory{},
		IndexProvider: fakeIndexProvider{},
	}
	_, err := s.Solve(context.Background(), SolveRequest{Prefix: "/env", Specs: []string{"numpy[bogus=1]"}})
	require.Error(t, err)
}

func TestServiceSolveParsesVirtualPackages(t *testing.T) {
	glibcDep := mustPackageRecord(t, "needs-glibc", "1.0.0", "0")
	glibcDep.Depends = []string{"__glibc>=2.17"}

	s := Service{
		PrefixData:    fakePrefixData{},
		History:       &fakeHistory{},
		IndexProvider: fakeIndexProvider{records: []*solve.PackageRecord{glibcDep}},
	}
	result, err := s.Solve(context.Background(), SolveRequest{
		Prefix:          "/env",
		Specs:           []string{"needs-glibc"},
		Channels:        []string{"conda-forge"},
		VirtualPackages: []string{"__glibc=2.31=0"},
	})
	require.NoError(t, err)
	names := make([]string, len(result.Selected))
	for i, r := range result.Selected {
		names[i] = r.Name
	}
	assert.Contains(t, names, "needs-glibc")
	assert.Contains(t, names, "__glibc", "the virtual package satisfying the depends edge must also be selected")
}

func TestServiceSolveRejectsMalformedVirtualPackage(t *testing.T) {
	s := Service{
		PrefixData:    fakePrefixData{},
		History:       &fakeHistory{},
		IndexProvider: fakeIndexProvider{},
	}
	_, err := s.Solve(context.Background(), SolveRequest{Prefix: "/env", VirtualPackages: []string{"onlyname"}})
	require.Error(t, err)
}

func TestServiceCommitAppendsHistory(t *testing.T) {
	history := &fakeHistory{}
	s := Service{
		PrefixData:    fakePrefixData{},
		History:       history,
		IndexProvider: fakeIndexProvider{records: []*solve.PackageRecord{mustPackageRecord(t, "numpy", "1.0.0", "0")}},
	}
	result, err := s.Solve(context.Background(), SolveRequest{
		Prefix:   "/env",
		Specs:    []string{"numpy"},
		Channels: []string{"conda-forge"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Commit(context.Background(), "/env", result))
	assert.True(t, history.appended)
	assert.Equal(t, result.History.Command, history.appendedEntry.Command)
}
