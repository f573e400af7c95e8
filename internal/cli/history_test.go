package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newHistoryCommand()
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	var err error
	out := captureStdout(t, func() {
		err = cmd.Execute()
	})
	return out, err
}

func TestRunHistoryPrintsNoSpecsWhenEmpty(t *testing.T) {
	viper.Reset()
	viper.Set("channel_mirror", t.TempDir())
	prefix := t.TempDir()

	out, err := execHistory(t, "--prefix", prefix)
	require.NoError(t, err)
	assert.Contains(t, out, "no user-requested specs in history")
}

func TestRunHistoryPrintsDerivedSpecs(t *testing.T) {
	viper.Reset()
	viper.Set("channel_mirror", t.TempDir())
	prefix := t.TempDir()

	metaDir := filepath.Join(prefix, "conda-meta")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	historyContent := "==> 2024-05-01 12:00:00 <==\n" +
		"# cmd: conda install numpy\n" +
		"# update_specs: [\"numpy\"]\n" +
		"numpy-1.0.0-0\n"
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, "history"), []byte(historyContent), 0o644))

	out, err := execHistory(t, "--prefix", prefix)
	require.NoError(t, err)
	assert.Contains(t, out, "numpy")
}
