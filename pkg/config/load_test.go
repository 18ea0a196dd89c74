package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"url-spider/pkg/utils"
)

const sampleConfig = `
default_user_agent: test-agent
num_workers: 3
max_depth: 1
request_timeout: 2s
visited_store: badger
headers:
  X-Token: abc
output:
  path: results
  formats: [json, csv]
sites:
  docs:
    seeds:
      - https://docs.example.com/
    max_pages: 50
    include_patterns: ["/guide/"]
    same_domain_only: false
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "test-agent", cfg.DefaultUserAgent)
	assert.Equal(t, 3, cfg.NumWorkers)
	require.NotNil(t, cfg.MaxDepth)
	assert.Equal(t, 1, *cfg.MaxDepth)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "abc", cfg.Headers["X-Token"])
	assert.Equal(t, []string{"json", "csv"}, cfg.Output.Formats)

	site, ok := cfg.Sites["docs"]
	require.True(t, ok)
	assert.Equal(t, []string{"https://docs.example.com/"}, site.Seeds)
	require.NotNil(t, site.MaxPages)
	assert.Equal(t, 50, *site.MaxPages)
	require.NotNil(t, site.SameDomainOnly)
	assert.False(t, *site.SameDomainOnly)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, utils.ErrFilesystem)
	assert.Contains(t, err.Error(), "read config")

	_, err = Load(writeFile(t, "num_workers: [not, a, number]"))
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDefaultPaths(t *testing.T) {
	assert.True(t, filepath.IsAbs(DefaultPath()))
	assert.Contains(t, DefaultPath(), filepath.Join("url-spider", "config.yaml"))
	assert.Contains(t, DefaultStateDir(), "url-spider")
}

func TestLoadAndValidate(t *testing.T) {
	cfg, _, err := LoadAndValidate(writeFile(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.VisitedStore)
	assert.NotEmpty(t, cfg.StateDir)

	policy := ResolvePolicy(cfg.Sites["docs"], *cfg)
	assert.Equal(t, 1, policy.MaxDepth)
	assert.Equal(t, 50, policy.MaxPages)
	assert.Equal(t, 3, policy.Concurrency)
	assert.False(t, policy.SameDomainOnly)

	_, _, err = LoadAndValidate(writeFile(t, "visited_store: nope"))
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}
