// Package audiotest provides in-memory capture fakes for packages built on audio.Gate.
package audiotest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rbright/voxcap/internal/audio"
)

// Stream is a controllable audio.Stream. Emit and Fail drive the registered callbacks.
// OnStart runs once the callbacks are registered; OnStop runs inside Stop before it returns.
type Stream struct {
	StartErr error
	OnStart  func(*Stream)
	OnStop   func(*Stream)

	mu      sync.Mutex
	onData  func([]byte)
	onError func(error)
	started bool

	Stops atomic.Int32
}

func (s *Stream) Start(onData func([]byte), onError func(error)) error {
	if s.StartErr != nil {
		return s.StartErr
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("stream already started")
	}
	s.started = true
	s.onData = onData
	s.onError = onError
	s.mu.Unlock()

	if s.OnStart != nil {
		s.OnStart(s)
	}
	return nil
}

func (s *Stream) Stop() {
	if s.OnStop != nil {
		s.OnStop(s)
	}
	s.Stops.Add(1)
}

// Emit delivers a fragment as the platform would, even after Stop.
func (s *Stream) Emit(fragment []byte) {
	s.mu.Lock()
	onData := s.onData
	s.mu.Unlock()
	if onData != nil {
		onData(fragment)
	}
}

// Fail reports a platform error.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	onError := s.onError
	s.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

// Started reports whether Start succeeded.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Handle is a fake audio.Handle. A nil Formats list supports every format.
// Streams it opens inherit OnStart and OnStop.
type Handle struct {
	Dev     audio.Device
	Formats []audio.Format
	OpenErr error
	OnStart func(*Stream)
	OnStop  func(*Stream)

	mu      sync.Mutex
	streams []*Stream

	Opens    atomic.Int32
	Releases atomic.Int32
}

func (h *Handle) Device() audio.Device {
	return h.Dev
}

func (h *Handle) Supports(format audio.Format) bool {
	if h.Formats == nil {
		return true
	}
	for _, candidate := range h.Formats {
		if candidate == format {
			return true
		}
	}
	return false
}

func (h *Handle) Open(audio.Format) (audio.Stream, error) {
	h.Opens.Add(1)
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	stream := &Stream{OnStart: h.OnStart, OnStop: h.OnStop}
	h.mu.Lock()
	h.streams = append(h.streams, stream)
	h.mu.Unlock()
	return stream, nil
}

func (h *Handle) Release() error {
	h.Releases.Add(1)
	return nil
}

// LastStream returns the most recently opened stream, or nil.
func (h *Handle) LastStream() *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.streams) == 0 {
		return nil
	}
	return h.streams[len(h.streams)-1]
}

// Gate hands out Handle, or fails with Err. When Block is set, Acquire waits on it or ctx.
type Gate struct {
	Handle *Handle
	Err    error
	Block  chan struct{}

	Acquires atomic.Int32
}

func (g *Gate) Acquire(ctx context.Context) (audio.Handle, error) {
	g.Acquires.Add(1)
	if g.Block != nil {
		select {
		case <-g.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.Err != nil {
		return nil, g.Err
	}
	if g.Handle == nil {
		g.Handle = &Handle{}
	}
	return g.Handle, nil
}
