package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCondaMetaRecord(t *testing.T, prefix, filename, content string) {
	t.Helper()
	dir := filepath.Join(prefix, "conda-meta")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestPrefixDataFileAdapterLoadInstalledMissingDirectory(t *testing.T) {
	a := NewPrefixDataFileAdapter()
	records, err := a.LoadInstalled(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestPrefixDataFileAdapterLoadInstalledDecodesRecords(t *testing.T) {
	prefix := t.TempDir()
	writeCondaMetaRecord(t, prefix, "numpy-1.20.0-py310_0.json", `{
		"name": "numpy",
		"version": "1.20.0",
		"build": "py310_0",
		"build_number": 0,
		"subdir": "linux-64",
		"depends": ["python>=3.10"],
		"requested_spec": "numpy"
	}`)

	a := NewPrefixDataFileAdapter()
	records, err := a.LoadInstalled(context.Background(), prefix)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "numpy", r.Name)
	assert.Equal(t, "1.20.0", r.Version.String())
	assert.Equal(t, "py310_0", r.Build)
	assert.Equal(t, "linux-64", r.Subdir)
	assert.Equal(t, []string{"python>=3.10"}, r.Depends)
	assert.Equal(t, "numpy", r.RequestedSpec)
}

func TestPrefixDataFileAdapterLoadInstalledIgnoresHistoryFile(t *testing.T) {
	prefix := t.TempDir()
	writeCondaMetaRecord(t, prefix, "numpy-1.20.0-py310_0.json", `{"name":"numpy","version":"1.20.0","build":"py310_0"}`)
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "conda-meta", "history"), []byte("not json"), 0o644))

	a := NewPrefixDataFileAdapter()
	records, err := a.LoadInstalled(context.Background(), prefix)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestPrefixDataFileAdapterLoadInstalledIgnoresNonJSONFiles(t *testing.T) {
	prefix := t.TempDir()
	writeCondaMetaRecord(t, prefix, "numpy-1.20.0-py310_0.json", `{"name":"numpy","version":"1.20.0","build":"py310_0"}`)
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "conda-meta", "README"), []byte("not a record"), 0o644))

	a := NewPrefixDataFileAdapter()
	records, err := a.LoadInstalled(context.Background(), prefix)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestPrefixDataFileAdapterLoadInstalledRejectsMalformedJSON(t *testing.T) {
	prefix := t.TempDir()
	writeCondaMetaRecord(t, prefix, "broken-1.0.0-0.json", `not json at all`)

	a := NewPrefixDataFileAdapter()
	_, err := a.LoadInstalled(context.Background(), prefix)
	require.Error(t, err)
}

func TestPrefixDataFileAdapterLoadInstalledRejectsBadVersion(t *testing.T) {
	prefix := t.TempDir()
	writeCondaMetaRecord(t, prefix, "broken-1.0.0-0.json", `{"name":"broken","version":"not a version!","build":"0"}`)

	a := NewPrefixDataFileAdapter()
	_, err := a.LoadInstalled(context.Background(), prefix)
	require.Error(t, err)
}

func TestPrefixDataFileAdapterLoadInstalledCancelled(t *testing.T) {
	prefix := t.TempDir()
	writeCondaMetaRecord(t, prefix, "numpy-1.20.0-py310_0.json", `{"name":"numpy","version":"1.20.0","build":"py310_0"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewPrefixDataFileAdapter()
	_, err := a.LoadInstalled(ctx, prefix)
	require.Error(t, err)
}
