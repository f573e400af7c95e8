package adapters

import (
	"context"

	"github.com/condasolve/condasolve/internal/solve"
)

// HistoryFileAdapter wraps solve's conda-meta/history read/append
// helpers behind the HistoryPort boundary, keeping file I/O out of the
// pure solver core (spec.md §5: "the core does not perform I/O").
type HistoryFileAdapter struct{}

// NewHistoryFileAdapter constructs a HistoryFileAdapter.
func NewHistoryFileAdapter() HistoryFileAdapter { return HistoryFileAdapter{} }

func (a HistoryFileAdapter) Read(ctx context.Context, prefix string) ([]solve.HistoryEntry, error) {
	return solve.ReadHistory(ctx, prefix)
}

func (a HistoryFileAdapter) Append(ctx context.Context, prefix string, entry solve.HistoryEntry, allRecords []*solve.PackageRecord) error {
	solve.AppendHistory(ctx, prefix, entry, allRecords)
	return nil
}
