package ports

import (
	"context"

	"github.com/condasolve/condasolve/internal/solve"
)

// PrefixDataPort reads the installed-package metadata directory of an
// environment prefix (conda-meta/*.json), per spec.md §6's "Persisted
// state" and "Installed records" inputs.
type PrefixDataPort interface {
	LoadInstalled(ctx context.Context, prefix string) ([]*solve.PrefixRecord, error)
}
