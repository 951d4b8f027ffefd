package connections

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapflow-posthog/pkg/provider"
)

func writeConnFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSourceMapForm(t *testing.T) {
	path := writeConnFile(t, `
posthog_default:
  uri: posthog://:phc_abc@app.posthog.com
analytics_eu:
  conn_type: posthog
  host: eu.posthog.com
  port: 443
  extra:
    project_api_key: phc_eu
    gzip: true
`)
	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	conn, err := src.Resolve(context.Background(), "posthog_default")
	require.NoError(t, err)
	assert.Equal(t, "posthog", conn.Type)
	assert.Equal(t, "phc_abc", conn.Password)

	conn, err = src.Resolve(context.Background(), "analytics_eu")
	require.NoError(t, err)
	assert.Equal(t, "eu.posthog.com", conn.Host)
	assert.Equal(t, 443, conn.Port)

	extra, err := conn.ExtraMap()
	require.NoError(t, err)
	assert.Equal(t, "phc_eu", extra["project_api_key"])
	assert.Equal(t, true, extra["gzip"])
}

func TestFileSourceListForm(t *testing.T) {
	path := writeConnFile(t, `
- id: first
  conn_type: posthog
  host: app.posthog.com
- id: second
  uri: posthog://eu.posthog.com
`)
	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"first", "second"}, src.IDs())

	conn, err := src.Resolve(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "app.posthog.com", conn.Host)
}

func TestFileSourceListNeedsID(t *testing.T) {
	path := writeConnFile(t, `
- conn_type: posthog
  host: app.posthog.com
`)
	_, err := NewFileSource(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestFileSourceNeedsType(t *testing.T) {
	path := writeConnFile(t, `
nameless:
  host: app.posthog.com
`)
	_, err := NewFileSource(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn_type")
}

func TestFileSourceExpandsEnvVars(t *testing.T) {
	t.Setenv("POSTHOG_KEY", "phc_secret")

	path := writeConnFile(t, `
posthog_default:
  conn_type: posthog
  host: app.posthog.com
  password: ${POSTHOG_KEY}
  extra:
    project_api_key: ${POSTHOG_KEY}
`)
	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	conn, err := src.Resolve(context.Background(), "posthog_default")
	require.NoError(t, err)
	assert.Equal(t, "phc_secret", conn.Password)

	extra, err := conn.ExtraMap()
	require.NoError(t, err)
	assert.Equal(t, "phc_secret", extra["project_api_key"])
}

func TestFileSourceUnsetVarLeftAsIs(t *testing.T) {
	path := writeConnFile(t, `
posthog_default:
  conn_type: posthog
  password: ${NOT_SET_ANYWHERE}
`)
	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	conn, err := src.Resolve(context.Background(), "posthog_default")
	require.NoError(t, err)
	assert.Equal(t, "${NOT_SET_ANYWHERE}", conn.Password)
}

func TestFileSourceMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	_, err = src.Resolve(context.Background(), "anything")
	var nf *provider.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestFileSourceMalformedYAML(t *testing.T) {
	path := writeConnFile(t, "posthog_default: [unclosed")
	_, err := NewFileSource(path, nil)
	require.Error(t, err)
}

func TestFileSourceReload(t *testing.T) {
	path := writeConnFile(t, `
old_conn:
  conn_type: posthog
`)
	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	_, err = src.Resolve(context.Background(), "old_conn")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
new_conn:
  conn_type: posthog
`), 0o644))
	require.NoError(t, src.Reload())

	_, err = src.Resolve(context.Background(), "new_conn")
	assert.NoError(t, err)

	_, err = src.Resolve(context.Background(), "old_conn")
	var nf *provider.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFileSourceReloadAfterDelete(t *testing.T) {
	path := writeConnFile(t, `
gone_soon:
  conn_type: posthog
`)
	src, err := NewFileSource(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.NoError(t, src.Reload())

	_, err = src.Resolve(context.Background(), "gone_soon")
	var nf *provider.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
