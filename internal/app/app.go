// Package app dispatches parsed commands to the capture session, IPC forwarding, and diagnostics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/cli"
	"github.com/rbright/voxcap/internal/config"
	"github.com/rbright/voxcap/internal/doctor"
	"github.com/rbright/voxcap/internal/fsm"
	"github.com/rbright/voxcap/internal/governor"
	"github.com/rbright/voxcap/internal/history"
	"github.com/rbright/voxcap/internal/indicator"
	"github.com/rbright/voxcap/internal/ipc"
	"github.com/rbright/voxcap/internal/logging"
	"github.com/rbright/voxcap/internal/output"
	"github.com/rbright/voxcap/internal/recorder"
	"github.com/rbright/voxcap/internal/session"
	"github.com/rbright/voxcap/internal/version"
)

const (
	statusTimeout  = 220 * time.Millisecond
	controlTimeout = 5 * time.Second
	cueFlushWait   = 1500 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	// Gate overrides the Pulse gate for record; nil uses the configured sound server.
	Gate audio.Gate
	// Clock overrides the session clock; nil uses the real clock.
	Clock clockwork.Clock
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("voxcap"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("voxcap"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New(logging.ParseLevel(parsed.LogLevel))
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandHistory:
		return r.commandHistory(ctx, cfgLoaded.Config, parsed.Limit)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	case cli.CommandRecord:
		return r.commandRecord(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.Config, limit int) int {
	if !cfg.History.Enable {
		fmt.Fprintln(r.Stdout, "history is disabled (history.enable = false)")
		return 0
	}
	path, err := cfg.History.ResolvedPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(r.Stdout, "no recordings yet")
		return 0
	}

	for _, entry := range entries {
		detail := entry.Path
		if entry.ErrorKind != "" {
			detail = entry.ErrorKind
		} else if detail == "" {
			detail = entry.ErrorMessage
		}
		fmt.Fprintf(
			r.Stdout,
			"%s  %-10s %4ds  %s\n",
			entry.FinishedAt.Local().Format(time.DateTime),
			entry.State,
			entry.ElapsedS,
			detail,
		)
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, fsm.StateIdle)
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus)
	if !handled {
		fmt.Fprintln(r.Stdout, fsm.StateIdle)
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = string(fsm.StateIdle)
	}
	if resp.State == string(fsm.StateRecording) || resp.State == string(fsm.StateFinalizing) {
		fmt.Fprintf(r.Stdout, "%s %ds\n", resp.State, resp.Elapsed)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no recording in progress")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRecord owns the control socket for one session and exits when it is terminal.
func (r Runner) commandRecord(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = owner.Close() }()

	messages, err := indicator.NewMessages(cfg.Indicator.Locale)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	notifier := indicator.New(cfg.Indicator, messages, cfg.Recording.MinSeconds, cfg.Recording.MaxSeconds, logger)
	defer notifier.Flush(cueFlushWait)

	writer, err := output.NewWriter(cfg.Output, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	ledger := r.openHistory(cfg, logger)
	if ledger != nil {
		defer func() { _ = ledger.Close() }()
	}

	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	controller := session.NewController(
		logger,
		r.gate(cfg, logger),
		func() session.Engine {
			return recorder.New(recorder.Options{
				Preferences: cfg.Recording.Encodings,
				Prefix:      cfg.Output.Prefix,
				Clock:       clock,
			})
		},
		governor.New(clock, cfg.Recording.MaxSeconds),
		session.Options{
			MinSeconds: cfg.Recording.MinSeconds,
			Clock:      clock,
			Indicator:  notifier,
			Committer:  writer,
			OnComplete: func(result session.Result) {
				if ledger == nil {
					return
				}
				if err := ledger.Record(context.Background(), result); err != nil {
					logger.Warn("history record failed", "session_id", result.SessionID, "error", err.Error())
				}
			},
		},
	)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, owner, ipc.HandlerFunc(controller.Handle))
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}

	return r.reportResult(result, messages, notifier)
}

func (r Runner) reportResult(result session.Result, messages *indicator.Messages, notifier *indicator.Notifier) int {
	switch result.State {
	case fsm.StateCancelled:
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	case fsm.StateCompleted:
		if result.CommitErr != nil {
			fmt.Fprintf(r.Stderr, "error: save recording: %v\n", result.CommitErr)
			return 1
		}
		if result.Path != "" {
			notifier.ShowSaved(context.Background(), result.Path)
			fmt.Fprintln(r.Stdout, result.Path)
		}
		return 0
	}

	if result.Err == nil {
		fmt.Fprintf(r.Stderr, "error: session ended in state %s\n", result.State)
		return 1
	}
	var captureErr *audio.Error
	if errors.As(result.Err, &captureErr) {
		fmt.Fprintf(r.Stderr, "error: %s (%v)\n", messages.ForError(captureErr), result.Err)
		return 1
	}
	fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
	return 1
}

func (r Runner) gate(cfg config.Config, logger *slog.Logger) audio.Gate {
	if r.Gate != nil {
		return r.Gate
	}
	gate := audio.NewPulseGate(cfg.Audio.Input, cfg.Audio.Fallback)
	gate.OnWarning = func(message string) {
		fmt.Fprintf(r.Stderr, "warning: %s\n", message)
		logger.Warn("audio selection warning", "message", message)
	}
	return gate
}

// openHistory returns nil when the ledger is disabled or unavailable; recording proceeds either way.
func (r Runner) openHistory(cfg config.Config, logger *slog.Logger) *history.Store {
	if !cfg.History.Enable {
		return nil
	}
	path, err := cfg.History.ResolvedPath()
	if err == nil {
		var store *history.Store
		if store, err = history.Open(path); err == nil {
			return store
		}
	}
	fmt.Fprintf(r.Stderr, "warning: history disabled: %v\n", err)
	logger.Warn("history unavailable", "error", err.Error())
	return nil
}

func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	// stop replies only once the file is saved.
	timeout := controlTimeout
	if command == ipc.CommandStatus {
		timeout = statusTimeout
	}
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.IsNoOwner(err) || isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "no such file or directory")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
