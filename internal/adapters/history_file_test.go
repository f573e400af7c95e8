package adapters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condasolve/condasolve/internal/solve"
)

func TestHistoryFileAdapterReadMissingFile(t *testing.T) {
	a := NewHistoryFileAdapter()
	entries, err := a.Read(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestHistoryFileAdapterAppendThenRead(t *testing.T) {
	prefix := t.TempDir()
	a := NewHistoryFileAdapter()

	entry := solve.HistoryEntry{
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Command:   "conda install numpy",
	}
	records := []*solve.PackageRecord{}
	require.NoError(t, a.Append(context.Background(), prefix, entry, records))

	entries, err := a.Read(context.Background(), prefix)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "conda install numpy", entries[0].Command)
}
