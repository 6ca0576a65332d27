// Package ipc is the owner-process control channel: newline-delimited JSON over a unix socket.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SocketName is the control socket filename under XDG_RUNTIME_DIR.
const SocketName = "voxcap.sock"

var ErrAlreadyRunning = errors.New("a voxcap recording is already running")

func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, SocketName), nil
}

// AcquireOptions tune stale-socket recovery.
type AcquireOptions struct {
	ProbeTimeout time.Duration
	Retries      int
	// Rescue runs after a stale socket is unlinked, before the next listen attempt.
	Rescue func(context.Context) error
}

// Owner is a bound control socket. Close unlinks the socket file.
type Owner struct {
	net.Listener
	Path string
}

func (o *Owner) Close() error {
	err := o.Listener.Close()
	if removeErr := os.Remove(o.Path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
		err = removeErr
	}
	return err
}

// Acquire binds path for this process. A responsive peer yields ErrAlreadyRunning; a dead socket
// file is removed and the bind retried.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 150 * time.Millisecond
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return &Owner{Listener: listener, Path: path}, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, probeErr := Probe(ctx, path, opts.ProbeTimeout)
		switch {
		case alive:
			return nil, ErrAlreadyRunning
		case probeErr != nil:
			return nil, fmt.Errorf("probe existing socket %s: %w", path, probeErr)
		}

		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}
		if opts.Rescue != nil {
			_ = opts.Rescue(ctx)
		}

		if attempt < opts.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("could not bind %s after %d retries", path, opts.Retries)
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
