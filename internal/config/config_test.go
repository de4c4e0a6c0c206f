package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFileMissing(t *testing.T) {
	fc, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, &FileConfig{}, fc)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `{
		"cache_size": 16,
		"hosts": ["*.example.com"],
		"output_format": "har",
		"watch": true,
		"status_path": "$.status"
	}`)

	fc, err := LoadConfigFile(path)
	require.NoError(t, err)

	cfg := Default()
	cfg.MergeWithFileConfig(fc)
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Equal(t, []string{"*.example.com"}, cfg.Hosts)
	assert.Equal(t, FormatHAR, cfg.OutputFormat)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "$.status", cfg.StatusPath)
	assert.Equal(t, DefaultKeepListItem, cfg.KeepListItem)
}

func TestLoadConfigFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", `{"cache_sizes": 3}`},
		{"bad enum", `{"output_format": "xml"}`},
		{"below minimum", `{"cache_size": 0}`},
		{"wrong type", `{"watch": "yes"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestMergeWithEnv(t *testing.T) {
	t.Setenv("APISEAL_CACHE_SIZE", "7")
	t.Setenv("APISEAL_URLS", "/api/*, /v2/*")
	t.Setenv("APISEAL_WATCH", "true")
	t.Setenv("APISEAL_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.MergeWithFileConfig(&FileConfig{CacheSize: intPtr(3), SaveDir: strPtr("apis")})
	require.NoError(t, cfg.MergeWithEnv())

	assert.Equal(t, 7, cfg.CacheSize, "environment wins over file")
	assert.Equal(t, "apis", cfg.SaveDir)
	assert.Equal(t, []string{"/api/*", "/v2/*"}, cfg.URLs)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestMergeWithEnvBadValue(t *testing.T) {
	t.Setenv("APISEAL_MIRROR_PORT", "eighty")

	err := Default().MergeWithEnv()
	assert.ErrorContains(t, err, "APISEAL_MIRROR_PORT")
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	bad := Default()
	bad.CacheSize = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.OutputFormat = "xml"
	assert.Error(t, bad.Validate())
}

func TestSchema(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "cache_size")
	assert.Contains(t, props, "status_path")
	assert.Equal(t, false, doc["additionalProperties"])
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "apiseal"), GetConfigDir())
	assert.Equal(t, filepath.Join("/tmp/xdg", "apiseal", "config.json"), GetDefaultConfigPath())
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
