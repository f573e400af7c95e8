package ports

import (
	"context"

	"github.com/condasolve/condasolve/internal/solve"
)

// IndexProviderPort aggregates repodata from one or more channel
// subdirectories into a PackageIndex, per spec.md §6's "Repodata"
// input ("The core expects already-parsed records; fetching and JSON
// parsing are external").
type IndexProviderPort interface {
	LoadIndex(ctx context.Context, channels solve.Multichannel) (*solve.PackageIndex, error)
}
