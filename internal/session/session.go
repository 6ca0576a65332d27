// Package session drives one voice-sample capture from permission request to a finalized file.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/encoding"
	"github.com/rbright/voxcap/internal/fsm"
	"github.com/rbright/voxcap/internal/governor"
	"github.com/rbright/voxcap/internal/recorder"
)

const (
	DefaultMinSeconds = 10
	DefaultMaxSeconds = 120

	commitTimeout = 10 * time.Second
)

// Engine is the recorder surface the controller drives. *recorder.Engine satisfies it.
type Engine interface {
	Begin(audio.Handle, recorder.Callbacks) error
	Stop()
	Abort()
	Encoding() encoding.Encoding
}

// EngineFactory builds a fresh engine for each session.
type EngineFactory func() Engine

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowFinalizing(context.Context)
	ShowError(context.Context, *audio.Error)
	CueStop(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)           {}
func (noopIndicator) ShowFinalizing(context.Context)          {}
func (noopIndicator) ShowError(context.Context, *audio.Error) {}
func (noopIndicator) CueStop(context.Context)                 {}
func (noopIndicator) CueComplete(context.Context)             {}
func (noopIndicator) CueCancel(context.Context)               {}
func (noopIndicator) Hide(context.Context)                    {}

// Options configure a Controller. Zero values fall back to defaults.
type Options struct {
	MinSeconds int
	Clock      clockwork.Clock
	Indicator  Indicator
	Committer  Committer
	// OnComplete observes every terminal session after cleanup.
	OnComplete func(Result)
}

// Result is the terminal record of one session.
type Result struct {
	SessionID     string
	State         fsm.State
	File          *recorder.File
	Path          string
	CommitErr     error
	Elapsed       int
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
	Device        string
	Encoding      string
	BytesCaptured int64
}

// Snapshot is the observable controller state.
type Snapshot struct {
	SessionID string
	State     fsm.State
	Elapsed   int
	LastError *audio.Error
	File      *recorder.File
}

type attempt struct {
	id            string
	cancelAcquire context.CancelFunc
	handle        audio.Handle
	engine        Engine
	timer         *governor.Timer
	elapsed       int
	bytes         int64
	result        Result
	done          chan struct{}
}

// Controller serializes every session event through one mutex. Callbacks carry the attempt they
// were registered for; events from an attempt that is no longer current or already terminal are dropped.
type Controller struct {
	logger     *slog.Logger
	gate       audio.Gate
	newEngine  EngineFactory
	governor   *governor.Governor
	indicator  Indicator
	committer  Committer
	clock      clockwork.Clock
	minSeconds int
	onComplete func(Result)

	mu        sync.RWMutex
	state     fsm.State
	current   *attempt
	lastError *audio.Error
	lastFile  *recorder.File
}

// NewController wires a controller. A nil governor defaults to DefaultMaxSeconds.
func NewController(
	logger *slog.Logger,
	gate audio.Gate,
	newEngine EngineFactory,
	gov *governor.Governor,
	opts Options,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if newEngine == nil {
		newEngine = func() Engine {
			return recorder.New(recorder.Options{Clock: clock})
		}
	}
	if gov == nil {
		gov = governor.New(clock, DefaultMaxSeconds)
	}
	minSeconds := opts.MinSeconds
	if minSeconds <= 0 {
		minSeconds = DefaultMinSeconds
	}
	if minSeconds > gov.Max() {
		minSeconds = gov.Max()
	}
	indicator := opts.Indicator
	if indicator == nil {
		indicator = noopIndicator{}
	}

	return &Controller{
		logger:     logger,
		gate:       gate,
		newEngine:  newEngine,
		governor:   gov,
		indicator:  indicator,
		committer:  opts.Committer,
		clock:      clock,
		minSeconds: minSeconds,
		onComplete: opts.OnComplete,
		state:      fsm.StateIdle,
	}
}

// State returns the current FSM state.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the current state, the elapsed seconds and the outcome of the latest session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{State: c.state, LastError: c.lastError, File: c.lastFile}
	if c.current != nil {
		snap.SessionID = c.current.id
		snap.Elapsed = c.current.elapsed
	}
	return snap
}

// Start requests microphone access and begins recording. It returns once recording is under
// way, the session was cancelled, or the session failed; failures are returned as *audio.Error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if fsm.IsActive(c.state) {
		c.mu.Unlock()
		return ErrSessionActive
	}
	if err := c.transitionLocked(fsm.EventStart); err != nil {
		c.mu.Unlock()
		return err
	}

	acquireCtx, cancel := context.WithCancel(ctx)
	a := &attempt{id: newSessionID(), cancelAcquire: cancel, done: make(chan struct{})}
	a.result = Result{SessionID: a.id, StartedAt: c.clock.Now()}
	c.current = a
	c.lastError = nil
	c.lastFile = nil
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", a.id, "state", string(fsm.StateAwaitingPermission))

	handle, err := c.gate.Acquire(acquireCtx)
	if err == nil && handle == nil {
		err = audio.Errorf(audio.KindUnknown, "capture gate returned no handle")
	}
	if err != nil {
		return c.acquireFailed(a, err)
	}
	return c.begin(a, handle)
}

// Run starts a session and blocks until it is terminal. Cancelling ctx cancels the session.
func (c *Controller) Run(ctx context.Context) Result {
	if err := c.Start(ctx); errors.Is(err, ErrSessionActive) {
		return Result{State: c.State(), Err: err}
	}

	stop := context.AfterFunc(ctx, func() { c.Cancel() })
	defer stop()

	result, err := c.Wait(context.Background())
	if err != nil {
		return Result{State: c.State(), Err: err}
	}
	return result
}

// Wait blocks until the current session is terminal.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	c.mu.RLock()
	a := c.current
	c.mu.RUnlock()
	if a == nil {
		return Result{}, ErrNoSession
	}

	select {
	case <-a.done:
		c.mu.RLock()
		defer c.mu.RUnlock()
		return a.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop finalizes the recording. Outside recording it returns ErrNotRecording; before the minimum
// duration it returns ErrStopTooEarly and the session keeps recording.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != fsm.StateRecording {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotRecording, state)
	}
	a := c.current
	if a.elapsed < c.minSeconds {
		elapsed := a.elapsed
		c.mu.Unlock()
		return fmt.Errorf("%w: %ds of %ds", ErrStopTooEarly, elapsed, c.minSeconds)
	}
	if err := c.transitionLocked(fsm.EventStop); err != nil {
		c.mu.Unlock()
		return err
	}
	a.timer.Cancel()
	engine := a.engine
	elapsed := a.elapsed
	c.mu.Unlock()

	c.logger.Info("session stopping", "session_id", a.id, "elapsed_s", elapsed)
	c.beginFinalize(engine)
	return nil
}

// Cancel abandons the session from awaiting_permission or recording. It reports whether anything was cancelled.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.state != fsm.StateAwaitingPermission && c.state != fsm.StateRecording {
		c.mu.Unlock()
		return false
	}
	cleanup := c.finishLocked(c.current, fsm.EventCancel, nil)
	c.mu.Unlock()

	cleanup()
	return true
}

func (c *Controller) acquireFailed(a *attempt, err error) error {
	c.mu.Lock()
	if !c.awaiting(a) {
		c.mu.Unlock()
		return nil
	}

	if errors.Is(err, context.Canceled) {
		cleanup := c.finishLocked(a, fsm.EventCancel, nil)
		c.mu.Unlock()
		cleanup()
		return nil
	}

	captureErr := audio.AsError(err)
	event := fsm.EventFail
	if captureErr.Kind == audio.KindPermissionDenied {
		event = fsm.EventDenied
	}
	cleanup := c.finishLocked(a, event, captureErr)
	c.mu.Unlock()

	cleanup()
	return captureErr
}

func (c *Controller) begin(a *attempt, handle audio.Handle) error {
	c.mu.Lock()
	if !c.awaiting(a) {
		c.mu.Unlock()
		c.logger.Debug("releasing handle granted after cancel", "session_id", a.id)
		if err := handle.Release(); err != nil {
			c.logger.Warn("release late handle", "session_id", a.id, "error", err.Error())
		}
		return nil
	}
	a.handle = handle
	a.result.Device = deviceLabel(handle.Device())
	engine := c.newEngine()
	a.engine = engine
	c.mu.Unlock()

	err := engine.Begin(handle, recorder.Callbacks{
		OnChunk:    func(size int) { c.onChunk(a, size) },
		OnFinalize: func(file recorder.File) { c.onFinalize(a, file) },
		OnError:    func(err *audio.Error) { c.onEngineError(a, err) },
	})

	c.mu.Lock()
	if !c.awaiting(a) {
		captureErr := a.result.Err
		c.mu.Unlock()
		engine.Abort()
		if captureErr != nil {
			return captureErr
		}
		return nil
	}
	if err != nil {
		captureErr := audio.AsError(err)
		cleanup := c.finishLocked(a, fsm.EventFail, captureErr)
		c.mu.Unlock()
		cleanup()
		return captureErr
	}
	if err := c.transitionLocked(fsm.EventGranted); err != nil {
		c.mu.Unlock()
		return err
	}
	a.result.Encoding = engine.Encoding().MediaType
	a.timer = c.governor.Start(
		func(elapsed int) { c.onTick(a, elapsed) },
		func() { c.onMaxReached(a) },
	)
	c.mu.Unlock()

	c.logger.Info("session recording",
		"session_id", a.id,
		"state", string(fsm.StateRecording),
		"device", a.result.Device,
		"encoding", a.result.Encoding,
	)
	c.indicator.ShowRecording(context.Background())
	return nil
}

func (c *Controller) onChunk(a *attempt, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live(a) {
		return
	}
	a.bytes += int64(size)
}

func (c *Controller) onTick(a *attempt, elapsed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.owns(a) || c.state != fsm.StateRecording {
		c.logger.Debug("dropping stale tick", "session_id", a.id, "elapsed_s", elapsed)
		return
	}
	a.elapsed = elapsed
}

func (c *Controller) onMaxReached(a *attempt) {
	c.mu.Lock()
	if !c.owns(a) || c.state != fsm.StateRecording {
		c.mu.Unlock()
		c.logger.Debug("dropping stale max reached", "session_id", a.id)
		return
	}
	if err := c.transitionLocked(fsm.EventMaxReached); err != nil {
		c.mu.Unlock()
		return
	}
	engine := a.engine
	c.mu.Unlock()

	c.logger.Info("session reached maximum duration", "session_id", a.id, "elapsed_s", c.governor.Max())
	c.beginFinalize(engine)
}

func (c *Controller) beginFinalize(engine Engine) {
	c.indicator.CueStop(context.Background())
	c.indicator.ShowFinalizing(context.Background())
	engine.Stop()
}

func (c *Controller) onFinalize(a *attempt, file recorder.File) {
	c.mu.Lock()
	if !c.owns(a) || c.state != fsm.StateFinalizing {
		c.mu.Unlock()
		c.logger.Debug("dropping stale finalize", "session_id", a.id)
		return
	}
	a.result.File = &file
	cleanup := c.finishLocked(a, fsm.EventAssembled, nil)
	c.mu.Unlock()

	cleanup()
}

func (c *Controller) onEngineError(a *attempt, captureErr *audio.Error) {
	c.mu.Lock()
	if !c.live(a) {
		c.mu.Unlock()
		c.logger.Debug("dropping stale recorder error", "session_id", a.id, "error_kind", string(captureErr.Kind))
		return
	}
	event := fsm.EventFail
	if captureErr.Kind == audio.KindEmptyRecording && c.state == fsm.StateFinalizing {
		event = fsm.EventEmpty
	}
	cleanup := c.finishLocked(a, event, captureErr)
	c.mu.Unlock()

	cleanup()
}

// finishLocked applies a terminal event and detaches the attempt's resources. The returned cleanup
// must run after c.mu is released: stopping capture waits for in-flight callbacks that take c.mu.
func (c *Controller) finishLocked(a *attempt, event fsm.Event, captureErr *audio.Error) func() {
	if err := c.transitionLocked(event); err != nil {
		c.logger.Error("forcing failed state", "session_id", a.id, "event", string(event), "error", err.Error())
		c.state = fsm.StateFailed
	}
	state := c.state

	a.cancelAcquire()
	if a.timer != nil {
		a.timer.Cancel()
	}

	a.result.State = state
	a.result.Elapsed = a.elapsed
	a.result.BytesCaptured = a.bytes
	a.result.FinishedAt = c.clock.Now()
	if captureErr != nil {
		a.result.Err = captureErr
	}
	c.lastError = captureErr
	c.lastFile = a.result.File

	handle := a.handle
	a.handle = nil
	engine := a.engine

	return func() {
		if engine != nil {
			engine.Abort()
		}
		if handle != nil {
			if err := handle.Release(); err != nil {
				c.logger.Warn("release capture handle", "session_id", a.id, "error", err.Error())
			}
		}

		if state == fsm.StateCompleted {
			c.commit(a)
		}
		c.signal(state, captureErr)

		c.mu.RLock()
		result := a.result
		c.mu.RUnlock()

		c.logResult(result)
		if c.onComplete != nil {
			c.onComplete(result)
		}
		close(a.done)
	}
}

func (c *Controller) commit(a *attempt) {
	if c.committer == nil {
		return
	}

	c.mu.RLock()
	file := *a.result.File
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	path, err := c.committer.Commit(ctx, file)

	c.mu.Lock()
	a.result.Path = path
	a.result.CommitErr = err
	c.mu.Unlock()
}

func (c *Controller) signal(state fsm.State, captureErr *audio.Error) {
	ctx := context.Background()
	switch state {
	case fsm.StateCompleted:
		c.indicator.CueComplete(ctx)
		c.indicator.Hide(ctx)
	case fsm.StateCancelled:
		c.indicator.CueCancel(ctx)
		c.indicator.Hide(ctx)
	case fsm.StateFailed:
		c.indicator.ShowError(ctx, captureErr)
	}
}

func (c *Controller) logResult(result Result) {
	attrs := []any{
		"session_id", result.SessionID,
		"state", string(result.State),
		"elapsed_s", result.Elapsed,
		"bytes_captured", result.BytesCaptured,
	}
	if result.File != nil {
		attrs = append(attrs, "file", result.File.Name, "media_type", result.File.MediaType)
	}
	if result.Err != nil {
		attrs = append(attrs, "error_kind", string(audio.KindOf(result.Err)), "error", result.Err.Error())
		c.logger.Warn("session finished", attrs...)
		return
	}
	if result.CommitErr != nil {
		attrs = append(attrs, "commit_error", result.CommitErr.Error())
		c.logger.Warn("session finished", attrs...)
		return
	}
	c.logger.Info("session finished", attrs...)
}

func (c *Controller) transitionLocked(event fsm.Event) error {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Controller) owns(a *attempt) bool {
	return c.current == a
}

func (c *Controller) awaiting(a *attempt) bool {
	return c.owns(a) && c.state == fsm.StateAwaitingPermission
}

func (c *Controller) live(a *attempt) bool {
	return c.owns(a) && fsm.IsActive(c.state)
}

func deviceLabel(device audio.Device) string {
	if device.Description != "" {
		return device.Description
	}
	return device.ID
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
