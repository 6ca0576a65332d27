// Package indicator reports session progress with desktop notifications and short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/config"
)

const (
	dispatchTimeout       = 400 * time.Millisecond
	defaultErrorTimeoutMS = 4000
)

// Notifier is the runtime indicator used by sessions.
type Notifier struct {
	cfg        config.IndicatorConfig
	logger     *slog.Logger
	messages   *Messages
	minSeconds int
	maxSeconds int

	notify  func(ctx context.Context, appName string, replaceID uint32, summary string, body string, timeoutMS int) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error
	play    func([]int16) error

	mu             sync.Mutex
	notificationID uint32

	soundMu sync.Mutex
	cues    sync.WaitGroup
}

// New builds a notifier. minSeconds and maxSeconds are shown in the recording prompt.
func New(cfg config.IndicatorConfig, messages *Messages, minSeconds, maxSeconds int, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:        cfg,
		logger:     logger,
		messages:   messages,
		minSeconds: minSeconds,
		maxSeconds: maxSeconds,
		notify:     desktopNotify,
		dismiss:    desktopDismiss,
		play:       playPulse,
	}
}

func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, n.messages.Recording(n.minSeconds, n.maxSeconds), 0)
}

func (n *Notifier) ShowFinalizing(ctx context.Context) {
	n.show(ctx, n.messages.Finalizing(), 0)
}

// ShowError replaces the current notification with the localized explanation for err.
func (n *Notifier) ShowError(ctx context.Context, err *audio.Error) {
	n.playCue(cueError)
	n.show(ctx, n.messages.ForError(err), n.errorTimeout())
}

// ShowSaved announces where the recording was written.
func (n *Notifier) ShowSaved(ctx context.Context, path string) {
	n.show(ctx, n.messages.Saved(path), n.errorTimeout())
}

func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()
	if id == 0 {
		return
	}

	n.run(ctx, "indicator dismiss failed", func(ctx context.Context) error {
		return n.dismiss(ctx, id)
	})
}

// Flush waits up to timeout for queued cues so a short-lived process does not cut them off.
func (n *Notifier) Flush(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		n.cues.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func (n *Notifier) show(ctx context.Context, body string, timeoutMS int) {
	if !n.cfg.Enable {
		return
	}

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "voxcap"
	}

	n.mu.Lock()
	replaceID := n.notificationID
	n.mu.Unlock()

	n.run(ctx, "indicator notify failed", func(ctx context.Context) error {
		id, err := n.notify(ctx, appName, replaceID, n.messages.Title(), body, timeoutMS)
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.notificationID = id
		n.mu.Unlock()
		return nil
	})
}

func (n *Notifier) errorTimeout() int {
	if n.cfg.ErrorTimeoutMS <= 0 {
		return defaultErrorTimeoutMS
	}
	return n.cfg.ErrorTimeoutMS
}

func (n *Notifier) run(ctx context.Context, message string, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log(message, err)
	}
}

// playCue serializes playback on a background goroutine.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.cues.Add(1)
	go func() {
		defer n.cues.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		if err := n.play(cuePCM(kind)); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
