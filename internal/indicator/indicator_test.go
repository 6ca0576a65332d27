package indicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/config"
)

type notifyCall struct {
	appName   string
	replaceID uint32
	summary   string
	body      string
	timeoutMS int
}

type fakeDesktop struct {
	mu        sync.Mutex
	nextID    uint32
	calls     []notifyCall
	dismissed []uint32
	played    int
	notifyErr error
}

func (f *fakeDesktop) install(n *Notifier) {
	n.notify = func(_ context.Context, appName string, replaceID uint32, summary string, body string, timeoutMS int) (uint32, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, notifyCall{appName, replaceID, summary, body, timeoutMS})
		if f.notifyErr != nil {
			return 0, f.notifyErr
		}
		f.nextID++
		return f.nextID, nil
	}
	n.dismiss = func(_ context.Context, id uint32) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.dismissed = append(f.dismissed, id)
		return nil
	}
	n.play = func(samples []int16) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(samples) > 0 {
			f.played++
		}
		return nil
	}
}

func newTestNotifier(t *testing.T, mutate func(*config.IndicatorConfig)) (*Notifier, *fakeDesktop) {
	t.Helper()
	cfg := config.Default().Indicator
	if mutate != nil {
		mutate(&cfg)
	}
	messages, err := NewMessages("en")
	require.NoError(t, err)

	n := New(cfg, messages, 10, 120, nil)
	fake := &fakeDesktop{}
	fake.install(n)
	return n, fake
}

func TestNotifierReplacesThenDismisses(t *testing.T) {
	n, fake := newTestNotifier(t, func(c *config.IndicatorConfig) { c.SoundEnable = false })
	ctx := context.Background()

	n.ShowRecording(ctx)
	n.ShowFinalizing(ctx)
	n.Hide(ctx)
	n.Hide(ctx)

	require.Len(t, fake.calls, 2)
	require.Equal(t, "voxcap", fake.calls[0].appName)
	require.Equal(t, uint32(0), fake.calls[0].replaceID)
	require.Equal(t, "Voice sample", fake.calls[0].summary)
	require.Contains(t, fake.calls[0].body, "at least 10 seconds")
	require.Contains(t, fake.calls[0].body, "120")
	require.Zero(t, fake.calls[0].timeoutMS)

	require.Equal(t, uint32(1), fake.calls[1].replaceID)
	require.Equal(t, "Saving your voice sample…", fake.calls[1].body)
	require.Equal(t, []uint32{2}, fake.dismissed)
}

func TestNotifierShowErrorUsesKindTextAndTimeout(t *testing.T) {
	n, fake := newTestNotifier(t, func(c *config.IndicatorConfig) {
		c.SoundEnable = false
		c.ErrorTimeoutMS = 0
	})

	n.ShowError(context.Background(), audio.Errorf(audio.KindNoSupportedEncoding, "none"))

	require.Len(t, fake.calls, 1)
	require.Contains(t, fake.calls[0].body, "upload a file instead of recording")
	require.Equal(t, defaultErrorTimeoutMS, fake.calls[0].timeoutMS)
}

func TestNotifierShowErrorKeepsUnknownMessage(t *testing.T) {
	n, fake := newTestNotifier(t, func(c *config.IndicatorConfig) {
		c.SoundEnable = false
	})

	n.ShowError(context.Background(), audio.NewError(audio.KindUnknown, "pulse server went away", errors.New("EOF")))

	require.Len(t, fake.calls, 1)
	require.Contains(t, fake.calls[0].body, "Something went wrong")
	require.Contains(t, fake.calls[0].body, "pulse server went away")
}

func TestNotifierDisabledSkipsDesktop(t *testing.T) {
	n, fake := newTestNotifier(t, func(c *config.IndicatorConfig) {
		c.Enable = false
		c.SoundEnable = false
	})
	ctx := context.Background()

	n.ShowRecording(ctx)
	n.ShowError(ctx, nil)
	n.ShowSaved(ctx, "/tmp/x.wav")
	n.Hide(ctx)

	require.Empty(t, fake.calls)
	require.Empty(t, fake.dismissed)
	require.Zero(t, fake.played)
}

func TestNotifierNotifyFailureKeepsNoID(t *testing.T) {
	n, fake := newTestNotifier(t, func(c *config.IndicatorConfig) { c.SoundEnable = false })
	fake.notifyErr = errors.New("no session bus")

	n.ShowRecording(context.Background())
	n.Hide(context.Background())

	require.Len(t, fake.calls, 1)
	require.Empty(t, fake.dismissed)
}

func TestNotifierPlaysCuesWhenEnabled(t *testing.T) {
	n, fake := newTestNotifier(t, func(c *config.IndicatorConfig) { c.Enable = false })
	ctx := context.Background()

	n.ShowRecording(ctx)
	n.CueStop(ctx)
	n.CueComplete(ctx)
	n.CueCancel(ctx)
	n.ShowError(ctx, audio.Errorf(audio.KindDeviceBusy, "busy"))
	n.Flush(time.Second)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, 5, fake.played)
}

func TestFlushReturnsAfterTimeout(t *testing.T) {
	n, _ := newTestNotifier(t, nil)
	block := make(chan struct{})
	n.play = func([]int16) error {
		<-block
		return nil
	}

	n.CueStop(context.Background())
	start := time.Now()
	n.Flush(30 * time.Millisecond)
	require.Less(t, time.Since(start), time.Second)
	close(block)
	n.Flush(time.Second)
}
