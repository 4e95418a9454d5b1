package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withConfigPath(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "medchat", "config.json")

	oldDir, oldPath := getConfigDirFunc, getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return filepath.Dir(configPath), nil }
	getConfigPathFunc = func() (string, error) { return configPath, nil }
	t.Cleanup(func() {
		getConfigDirFunc, getConfigPathFunc = oldDir, oldPath
	})
	return configPath
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "medchat"))
}

func TestLoadGlobalConfig_FileNotExists(t *testing.T) {
	withConfigPath(t)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestLoadGlobalConfig_InvalidJSON(t *testing.T) {
	configPath := withConfigPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0600))

	_, err := LoadGlobalConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestSaveGlobalConfig_CreatesDirectoryWithPrivatePermissions(t *testing.T) {
	configPath := withConfigPath(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://chat.internal:8080"}))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://chat.internal:8080", loaded.APIURL)
}

func TestSaveGlobalConfig_NilConfig(t *testing.T) {
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestDeleteGlobalConfig(t *testing.T) {
	configPath := withConfigPath(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://x"}))

	require.NoError(t, DeleteGlobalConfig())
	_, err := os.Stat(configPath)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, DeleteGlobalConfig())
}

func TestResolveAPIURL_Cascade(t *testing.T) {
	withConfigPath(t)
	t.Setenv(envAPIURL, "")

	url, source, err := ResolveAPIURL("")
	require.NoError(t, err)
	assert.Equal(t, defaultAPIURL, url)
	assert.Equal(t, SourceDefault, source)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIURL: "http://stored"}))
	url, source, err = ResolveAPIURL("")
	require.NoError(t, err)
	assert.Equal(t, "http://stored", url)
	assert.Equal(t, SourceGlobalConfig, source)

	t.Setenv(envAPIURL, "http://env")
	url, source, err = ResolveAPIURL("")
	require.NoError(t, err)
	assert.Equal(t, "http://env", url)
	assert.Equal(t, SourceEnv, source)

	url, source, err = ResolveAPIURL("http://flag")
	require.NoError(t, err)
	assert.Equal(t, "http://flag", url)
	assert.Equal(t, SourceFlag, source)
}
