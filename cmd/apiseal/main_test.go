package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cache_size": 3, "keep_list_item": 4, "save_dir": "from-file"}`), 0o644))
	t.Setenv("APISEAL_CACHE_SIZE", "5")
	t.Setenv("APISEAL_WATCH", "true")

	root := newRootCommand()
	cmd, _, err := root.Find([]string{"capture"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--cache-size", "9", "--filter-host", "a.example.com,b.example.com"}))

	cfg, err := loadConfig(cmd, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.CacheSize, "flag wins")
	assert.Equal(t, 4, cfg.KeepListItem, "file beats the command default")
	assert.Equal(t, "from-file", cfg.SaveDir)
	assert.True(t, cfg.Watch, "environment applies")
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, cfg.Hosts)
}

func TestLoadConfigInvalid(t *testing.T) {
	root := newRootCommand()
	cmd, _, err := root.Find([]string{"capture"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "none.json"), "--format", "xml"}))

	_, err = loadConfig(cmd, 1)
	assert.Error(t, err)
}

func TestOutputPathDefaults(t *testing.T) {
	root := newRootCommand()
	for name, want := range map[string]string{
		"blueprint": "api.apib",
		"openapi":   "openapi.json",
		"postman":   "postman.json",
		"gen":       "-",
	} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, want, outputPath(cmd), name)
	}

	cmd, _, err := root.Find([]string{"blueprint"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"-o", "docs.apib"}))
	assert.Equal(t, "docs.apib", outputPath(cmd))
}

func TestIsYAML(t *testing.T) {
	assert.True(t, isYAML("api.yaml", false))
	assert.True(t, isYAML("API.YML", false))
	assert.False(t, isYAML("api.json", true))
	assert.True(t, isYAML("-", true))
	assert.False(t, isYAML("api.txt", false))
}
