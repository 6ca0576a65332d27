// Package audio acquires microphone access and streams PCM fragments from the host sound server.
package audio

import "context"

// Format is the PCM sample spec requested from the platform. Samples are always signed 16-bit little-endian.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond reports the PCM data rate for f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Gate requests microphone access. It never retries; callers decide whether to call Acquire again.
type Gate interface {
	Acquire(context.Context) (Handle, error)
}

// Handle is exclusive access to one acquired input source.
type Handle interface {
	Device() Device
	Supports(Format) bool
	Open(Format) (Stream, error)
	// Release stops all underlying capture. Releasing twice is a no-op.
	Release() error
}

// Stream delivers PCM fragments from an open Handle.
type Stream interface {
	// Start begins delivery. onData receives a fragment the callee may retain.
	// onError fires at most once when the platform aborts capture.
	Start(onData func([]byte), onError func(error)) error
	// Stop halts delivery. It is idempotent and returns once no onData call is in flight.
	Stop()
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(context.Context) (Handle, error)

func (f GateFunc) Acquire(ctx context.Context) (Handle, error) {
	return f(ctx)
}
