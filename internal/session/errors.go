package session

import "errors"

var (
	// ErrSessionActive rejects Start while a session is awaiting permission, recording, or finalizing.
	ErrSessionActive = errors.New("a session is already active")
	// ErrNotRecording rejects Stop outside the recording state.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrStopTooEarly rejects Stop before the minimum duration elapses.
	ErrStopTooEarly = errors.New("recording is shorter than the minimum duration")
	// ErrNoSession is returned by Wait before any session was started.
	ErrNoSession = errors.New("no session has been started")
)
