// Package output persists finalized recordings and runs the optional post-save command.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/voxcap/internal/config"
	"github.com/rbright/voxcap/internal/recorder"
)

const (
	commandTimeout = 10 * time.Second
	maxNameTries   = 100
)

// Writer saves recordings under the configured output directory.
type Writer struct {
	dir     string
	command []string
	logger  *slog.Logger
}

// NewWriter constructs a writer from runtime output config.
func NewWriter(cfg config.OutputConfig, logger *slog.Logger) (*Writer, error) {
	dir, err := config.ExpandHome(strings.TrimSpace(cfg.Dir))
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if dir == "" {
		return nil, errors.New("output dir cannot be empty")
	}
	return &Writer{dir: dir, command: cfg.Command.Argv, logger: logger}, nil
}

// Dir returns the resolved output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Commit writes file and returns its path. A failing post-save command is logged and the file is kept.
func (w *Writer) Commit(ctx context.Context, file recorder.File) (string, error) {
	if len(file.Data) == 0 {
		return "", errors.New("refusing to write an empty recording")
	}
	name := filepath.Base(strings.TrimSpace(file.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid recording file name %q", file.Name)
	}

	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path, err := writeExclusive(w.dir, name, file.Data)
	if err != nil {
		return "", err
	}

	if len(w.command) > 0 {
		commandCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		argv := append(append([]string(nil), w.command...), path)
		if err := runCommandWithInput(commandCtx, argv, path+"\n"); err != nil {
			w.logCommandFailure(path, err)
		}
	}
	return path, nil
}

// writeExclusive never overwrites. A taken name gets a numeric suffix before the extension.
func writeExclusive(dir string, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameTries; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", path, err)
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close %s: %w", path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

func (w *Writer) logCommandFailure(path string, err error) {
	if w.logger == nil || err == nil {
		return
	}
	w.logger.Error("output command failed; recording remains saved", "path", path, "error", err.Error())
}
