package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "voxcap", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "voxcap", "config.jsonc"), resolved)
}

func TestStateDir(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	dir, err := StateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "voxcap"), dir)

	t.Setenv("XDG_STATE_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir, err = StateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "voxcap"), dir)
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	expanded, err := ExpandHome("~/voxcap")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "voxcap"), expanded)

	expanded, err = ExpandHome("~")
	require.NoError(t, err)
	require.Equal(t, home, expanded)

	expanded, err = ExpandHome("/srv/samples")
	require.NoError(t, err)
	require.Equal(t, "/srv/samples", expanded)

	expanded, err = ExpandHome("~other/samples")
	require.NoError(t, err)
	require.Equal(t, "~other/samples", expanded)
}

func setupLoadEnv(t *testing.T) (home, state string) {
	t.Helper()
	home = t.TempDir()
	state = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", state)
	return home, state
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	home, state := setupLoadEnv(t)
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")

	want := Default()
	want.Output.Dir = filepath.Join(home, "voxcap")
	want.History.Path = filepath.Join(state, "voxcap", "history.db")
	require.Equal(t, want, loaded.Config)
}

func TestLoadExistingJSONC(t *testing.T) {
	home, _ := setupLoadEnv(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "recording": { "min_seconds": 3, "max_seconds": 30 },
  "output": { "prefix": "take" },
  "history": { "path": "~/captures.db" }
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Empty(t, loaded.Warnings)
	require.Equal(t, 3, loaded.Config.Recording.MinSeconds)
	require.Equal(t, 30, loaded.Config.Recording.MaxSeconds)
	require.Equal(t, "take", loaded.Config.Output.Prefix)
	require.Equal(t, filepath.Join(home, "voxcap"), loaded.Config.Output.Dir)
	require.Equal(t, filepath.Join(home, "captures.db"), loaded.Config.History.Path)
}

func TestLoadLeavesDisabledHistoryPathAlone(t *testing.T) {
	setupLoadEnv(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"history": {"enable": false}}`), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.False(t, loaded.Config.History.Enable)
	require.Empty(t, loaded.Config.History.Path)
}

func TestLoadWarnsOnSharedWritableCommandConfig(t *testing.T) {
	setupLoadEnv(t)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"output": {"command": "notify-send saved"}}`), 0o600))
	require.NoError(t, os.Chmod(path, 0o666))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Warnings, 1)
	require.Contains(t, loaded.Warnings[0].Message, "writable by other users")

	require.NoError(t, os.Chmod(path, 0o600))
	loaded, err = Load(path)
	require.NoError(t, err)
	require.Empty(t, loaded.Warnings)
}

func TestLoadRejectsDirectory(t *testing.T) {
	setupLoadEnv(t)
	dir := t.TempDir()

	_, err := Load(dir)
	require.ErrorContains(t, err, "is a directory")
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
	require.ErrorContains(t, err, path)
}

func TestHistoryResolvedPath(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	path, err := HistoryConfig{}.ResolvedPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "voxcap", "history.db"), path)

	home := t.TempDir()
	t.Setenv("HOME", home)
	path, err = HistoryConfig{Path: "~/captures.db"}.ResolvedPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "captures.db"), path)
}
