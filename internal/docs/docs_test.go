package docs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
	"github.com/leapstack-labs/leapflow-posthog/pkg/providers/posthog"
)

func buildSite(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	gen := NewGenerator(posthog.ProviderInfo())
	require.NoError(t, gen.Build(dir))
	return dir
}

func readPage(t *testing.T, dir, name string) string {
	t.Helper()

	content, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(content)
}

func TestBuildWritesAllPages(t *testing.T) {
	dir := buildSite(t)

	for _, page := range Pages {
		assert.FileExists(t, filepath.Join(dir, page.File))
	}
	assert.FileExists(t, filepath.Join(dir, "manifest.json"))
}

func TestIndexPage(t *testing.T) {
	dir := buildSite(t)
	index := readPage(t, dir, "index.md")

	info := posthog.ProviderInfo()
	assert.Contains(t, index, "# PostHog Provider")
	assert.Contains(t, index, "`"+info.PackageName+"`")
	assert.Contains(t, index, "Release: **3.0.0**")
	assert.Contains(t, index, info.Description)
	assert.Contains(t, index, installCommand)
}

func TestIndexPageRequirementsTable(t *testing.T) {
	dir := buildSite(t)
	index := readPage(t, dir, "index.md")

	assert.Contains(t, index, "| Package | Minimum version |")
	assert.Contains(t, index, "| leapflow | 2.2.0 |")
	assert.Contains(t, index, "| posthog | 1.4.9 |")
}

func TestIndexPageLinksGuides(t *testing.T) {
	dir := buildSite(t)
	index := readPage(t, dir, "index.md")

	assert.Contains(t, index, "(connections.md)")
	assert.Contains(t, index, "(operators.md)")
	assert.Contains(t, index, "(changelog.md)")
	assert.Contains(t, index, "(manifest.json)")
}

func TestConnectionsPage(t *testing.T) {
	dir := buildSite(t)
	page := readPage(t, dir, "connections.md")

	assert.Contains(t, page, "`posthog` connection type")
	assert.Contains(t, page, "`project_api_key`")
	assert.Contains(t, page, "`max_queue_size`")
	assert.Contains(t, page, "LEAPFLOW_CONN_POSTHOG_DEFAULT")
	assert.Contains(t, page, "`__extra__`")
}

func TestOperatorsPageCoversManifest(t *testing.T) {
	dir := buildSite(t)
	page := readPage(t, dir, "operators.md")

	info := posthog.ProviderInfo()
	for _, name := range info.Operators {
		assert.Contains(t, page, "## "+name)
	}
	for _, name := range info.Hooks {
		assert.Contains(t, page, name)
	}
}

func TestChangelogPage(t *testing.T) {
	dir := buildSite(t)
	page := readPage(t, dir, "changelog.md")

	assert.True(t, len(page) > 0)
	assert.Contains(t, page, "# Changelog")
	assert.Contains(t, page, "## 3.0.0 (2022-06-07)")
	assert.Contains(t, page, "## 1.0.0 (2020-12-09)")
	assert.Contains(t, page, "- Initial release with the PostHog hook and the track event operator.")
}

func TestChangelogHeadMatchesProviderVersion(t *testing.T) {
	rel := Releases()
	require.NotEmpty(t, rel)
	assert.Equal(t, posthog.ProviderVersion, rel[0].Version)
}

func TestBuildRejectsVersionDrift(t *testing.T) {
	info := posthog.ProviderInfo()
	info.Version = "9.9.9"

	err := NewGenerator(info).Build(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match provider version 9.9.9")
}

func TestBuildWritesManifestJSON(t *testing.T) {
	dir := buildSite(t)

	content, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, json.Unmarshal(content, &manifest))

	info := posthog.ProviderInfo()
	assert.Equal(t, info.PackageName, manifest.PackageName)
	assert.Equal(t, info.Version, manifest.Version)
	assert.Equal(t, info.Requirements, manifest.Requirements)
	assert.Len(t, manifest.Pages, len(Pages))
	assert.False(t, manifest.GeneratedAt.IsZero())
}

func TestVerifyLinks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("[next](b.md) and [section](b.md#extra-fields)"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# B"), 0600))

	assert.NoError(t, VerifyLinks(dir))
}

func TestVerifyLinksIgnoresExternal(t *testing.T) {
	dir := t.TempDir()
	content := "[site](https://posthog.com) [anchor](#requirements) [mail](mailto:dev@example.com)"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte(content), 0600))

	assert.NoError(t, VerifyLinks(dir))
}

func TestVerifyLinksReportsMissingTargets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("[gone](missing.md) [also](nowhere.md)"), 0600))

	err := VerifyLinks(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.md links to missing.md")
	assert.Contains(t, err.Error(), "nowhere.md")
}

func TestGeneratorDefaultsConnType(t *testing.T) {
	info := provider.Info{
		Name:        "PostHog",
		PackageName: "leapflow-providers-posthog",
		Version:     posthog.ProviderVersion,
	}
	dir := t.TempDir()
	require.NoError(t, NewGenerator(info).Build(dir))

	page := readPage(t, dir, "connections.md")
	assert.Contains(t, page, "`posthog` connection type")
}
