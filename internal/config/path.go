package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "voxcap"

// ResolvePath applies CLI, then XDG, then home fallback rules for config.jsonc.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir, "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", appDir, "config.jsonc"), nil
}

// StateDir is where logs and the history database live.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for state dir")
	}
	return filepath.Join(home, ".local", "state", appDir), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ResolvedPath returns history.path with "~" expanded, defaulting to history.db in the state dir.
func (h HistoryConfig) ResolvedPath() (string, error) {
	if path := strings.TrimSpace(h.Path); path != "" {
		return ExpandHome(path)
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
