package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/fsm"
	"github.com/rbright/voxcap/internal/ipc"
)

// Handle serves IPC commands for the owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return c.respond(c.Snapshot(), "status")
	case ipc.CommandStop:
		return c.requestStop()
	case ipc.CommandCancel:
		return c.requestCancel()
	default:
		resp := c.respond(c.Snapshot(), "")
		resp.OK = false
		resp.Error = fmt.Sprintf("unknown command: %s", req.Command)
		return resp
	}
}

func (c *Controller) requestStop() ipc.Response {
	before := c.Snapshot()
	if before.State == fsm.StateFinalizing {
		return c.reject(before, "already finalizing")
	}

	if err := c.Stop(); err != nil {
		switch {
		case errors.Is(err, ErrStopTooEarly):
			return c.reject(before, fmt.Sprintf("keep recording: at least %d seconds are required (%ds so far)", c.minSeconds, before.Elapsed))
		case errors.Is(err, ErrNotRecording):
			return c.reject(before, fmt.Sprintf("cannot stop from state %s", before.State))
		default:
			return c.reject(before, err.Error())
		}
	}
	return c.respond(c.Snapshot(), "stopped")
}

func (c *Controller) requestCancel() ipc.Response {
	before := c.Snapshot()
	if !c.Cancel() {
		if before.State == fsm.StateFinalizing {
			return c.reject(before, "cannot cancel while finalizing")
		}
		return c.reject(before, fmt.Sprintf("cannot cancel from state %s", before.State))
	}
	return c.respond(c.Snapshot(), "cancelled")
}

func (c *Controller) respond(snap Snapshot, message string) ipc.Response {
	resp := ipc.Response{
		OK:        true,
		SessionID: snap.SessionID,
		State:     string(snap.State),
		Elapsed:   snap.Elapsed,
		Message:   message,
	}
	if snap.LastError != nil {
		resp.ErrorKind = string(snap.LastError.Kind)
		if snap.State == fsm.StateFailed {
			resp.Error = snap.LastError.Error()
		}
	}
	return resp
}

func (c *Controller) reject(snap Snapshot, reason string) ipc.Response {
	resp := c.respond(snap, "")
	resp.OK = false
	resp.Error = reason
	return resp
}

// ErrorKind extracts the failure classification from a Result, or "" on success.
func (r Result) ErrorKind() audio.Kind {
	return audio.KindOf(r.Err)
}
