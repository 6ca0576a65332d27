package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/fsm"
	"github.com/rbright/voxcap/internal/ipc"
)

func TestHandleStatusAndUnknownCommand(t *testing.T) {
	h := newHarness(t, nil)

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateIdle), status.State)
	require.Empty(t, status.SessionID)

	unknown := h.ctrl.Handle(context.Background(), ipc.Request{Command: "definitely-unknown"})
	require.False(t, unknown.OK)
	require.Contains(t, unknown.Error, "unknown command")
}

func TestHandleStopAndCancelFromIdle(t *testing.T) {
	h := newHarness(t, nil)

	stop := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.False(t, stop.OK)
	require.Contains(t, stop.Error, "cannot stop from state idle")

	cancel := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandCancel})
	require.False(t, cancel.OK)
	require.Contains(t, cancel.Error, "cannot cancel from state idle")
}

func TestHandleStopTooEarlyThenStop(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.handle.LastStream().Emit([]byte{1, 2})

	h.advanceTo(t, 4)
	early := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.False(t, early.OK)
	require.Equal(t, string(fsm.StateRecording), early.State)
	require.Equal(t, 4, early.Elapsed)
	require.Contains(t, early.Error, "at least 10 seconds")

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.NotEmpty(t, status.SessionID)
	require.Equal(t, 4, status.Elapsed)

	h.advanceTo(t, 11)
	stopped := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.True(t, stopped.OK)
	require.Equal(t, string(fsm.StateCompleted), stopped.State)
	require.Equal(t, "stopped", stopped.Message)
}

func TestHandleCancelRecording(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))

	resp := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandCancel})
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateCancelled), resp.State)
	require.Equal(t, "cancelled", resp.Message)
}

func TestHandleReportsFailureKind(t *testing.T) {
	h := newHarness(t, nil)
	h.gate.Err = audio.Errorf(audio.KindDeviceBusy, "held by another app")
	require.Error(t, h.ctrl.Start(context.Background()))

	status := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStatus})
	require.True(t, status.OK)
	require.Equal(t, string(fsm.StateFailed), status.State)
	require.Equal(t, string(audio.KindDeviceBusy), status.ErrorKind)
	require.Contains(t, status.Error, "held by another app")
}

func TestHandleRejectsWhileFinalizing(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.mu.Lock()
	h.ctrl.state = fsm.StateFinalizing
	h.ctrl.mu.Unlock()

	stop := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandStop})
	require.False(t, stop.OK)
	require.Equal(t, "already finalizing", stop.Error)

	cancel := h.ctrl.Handle(context.Background(), ipc.Request{Command: ipc.CommandCancel})
	require.False(t, cancel.OK)
	require.Equal(t, "cannot cancel while finalizing", cancel.Error)
}
