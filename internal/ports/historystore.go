package ports

import (
	"context"

	"github.com/condasolve/condasolve/internal/solve"
)

// HistoryPort reads and appends the conda-meta/history log for a
// prefix, per spec.md §4.6.
type HistoryPort interface {
	Read(ctx context.Context, prefix string) ([]solve.HistoryEntry, error)
	Append(ctx context.Context, prefix string, entry solve.HistoryEntry, allRecords []*solve.PackageRecord) error
}
