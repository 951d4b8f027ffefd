package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDocsBuild(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "docs-site")

	err := runDocsBuild(outDir)
	require.NoError(t, err)

	for _, file := range []string{"index.md", "connections.md", "operators.md", "changelog.md", "manifest.json"} {
		_, statErr := os.Stat(filepath.Join(outDir, file))
		assert.NoError(t, statErr, "expected %s to be written", file)
	}

	index, err := os.ReadFile(filepath.Join(outDir, "index.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "leapflow-providers-posthog")
	assert.Contains(t, string(index), "3.0.0")
}

func TestDocsVerifyCommand_BuiltSite(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "docs-site")
	require.NoError(t, runDocsBuild(outDir))

	cmd := newDocsVerifyCommand()
	cmd.SetArgs([]string{"--out", outDir})

	err := cmd.Execute()
	assert.NoError(t, err)
}

func TestDocsVerifyCommand_MissingSite(t *testing.T) {
	cmd := newDocsVerifyCommand()
	cmd.SetArgs([]string{"--out", filepath.Join(t.TempDir(), "nope")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link check failed")
}
