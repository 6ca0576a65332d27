package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loaded captures the resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load reads config.jsonc over Default and pins output.dir and history.path to absolute
// locations, so the recording process and its control commands agree on where files land.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}
	info, err := os.Stat(resolvedPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		loaded.warn("config file %q not found; using defaults", resolvedPath)
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		if err := loaded.parse(info); err != nil {
			return Loaded{}, err
		}
	}

	if err := loaded.Config.resolvePaths(); err != nil {
		return Loaded{}, fmt.Errorf("config %q: %w", resolvedPath, err)
	}
	return loaded, nil
}

func (l *Loaded) parse(info fs.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("read config %q: is a directory", l.Path)
	}
	content, err := os.ReadFile(l.Path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", l.Path, err)
	}

	cfg, warnings, err := Parse(string(content), l.Config)
	if err != nil {
		return fmt.Errorf("parse config %q: %w", l.Path, err)
	}
	l.Config = cfg
	l.Exists = true
	l.Warnings = append(l.Warnings, warnings...)

	// output.command executes with the user's privileges on every saved recording.
	if info.Mode().Perm()&0o022 != 0 && len(cfg.Output.Command.Argv) > 0 {
		l.warn("config file %q is writable by other users and sets output.command", l.Path)
	}
	return nil
}

func (l *Loaded) warn(format string, args ...any) {
	l.Warnings = append(l.Warnings, Warning{Message: fmt.Sprintf(format, args...)})
}

func (c *Config) resolvePaths() error {
	dir, err := ExpandHome(strings.TrimSpace(c.Output.Dir))
	if err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	c.Output.Dir = dir

	if !c.History.Enable {
		return nil
	}
	path, err := c.History.ResolvedPath()
	if err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	if path, err = filepath.Abs(path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.History.Path = path
	return nil
}
