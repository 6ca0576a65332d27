// Package recorder accumulates PCM fragments from a capture stream and finalizes them into one file.
package recorder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rbright/voxcap/internal/audio"
	"github.com/rbright/voxcap/internal/encoding"
)

// DefaultPrefix names finalized files when Options.Prefix is empty.
const DefaultPrefix = "voice-sample"

// File is the finalized recording handed to the caller for storage or upload.
type File struct {
	Name      string
	MediaType string
	Data      []byte
	StartedAt time.Time
}

// Callbacks receive engine events. Exactly one of OnFinalize or OnError fires per Begin.
type Callbacks struct {
	OnChunk    func(size int)
	OnFinalize func(File)
	OnError    func(*audio.Error)
}

type Options struct {
	Preferences []string
	Prefix      string
	Clock       clockwork.Clock
}

type engineState int

const (
	stateIdle engineState = iota
	stateActive
	stateStopping
	stateDone
)

// Engine records one session. A new Engine is built per attempt.
type Engine struct {
	preferences []string
	prefix      string
	clock       clockwork.Clock

	mu        sync.Mutex
	state     engineState
	stream    audio.Stream
	encoding  encoding.Encoding
	callbacks Callbacks
	chunks    [][]byte
	bytes     int64
	startedAt time.Time
}

// New builds an engine with default preferences, prefix, and a real clock where unset.
func New(opts Options) *Engine {
	prefs := opts.Preferences
	if len(prefs) == 0 {
		prefs = encoding.DefaultPreferences
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{preferences: prefs, prefix: prefix, clock: clock}
}

// Begin negotiates the encoding once and starts collecting fragments from handle.
func (e *Engine) Begin(handle audio.Handle, callbacks Callbacks) error {
	e.mu.Lock()
	if e.state != stateIdle {
		e.mu.Unlock()
		return errors.New("recorder already started")
	}

	enc, err := encoding.Negotiate(e.preferences, handle.Supports)
	if err != nil {
		e.state = stateDone
		e.mu.Unlock()
		return err
	}

	stream, err := handle.Open(enc.Capture)
	if err != nil {
		e.state = stateDone
		e.mu.Unlock()
		return classify(err, "could not open capture stream")
	}

	e.encoding = enc
	e.callbacks = callbacks
	e.stream = stream
	e.startedAt = e.clock.Now()
	e.state = stateActive
	e.mu.Unlock()

	if err := stream.Start(e.onData, e.onStreamError); err != nil {
		e.mu.Lock()
		e.state = stateDone
		e.chunks = nil
		e.mu.Unlock()
		stream.Stop()
		return classify(err, "could not start capture stream")
	}
	return nil
}

// Stop finalizes the recording. Calls after the first, or when not recording, are no-ops.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != stateActive {
		e.mu.Unlock()
		return
	}
	e.state = stateStopping
	stream := e.stream
	e.mu.Unlock()

	// Fragments already in flight still land in the buffer.
	stream.Stop()

	e.mu.Lock()
	if e.state != stateStopping {
		e.mu.Unlock()
		return
	}
	e.state = stateDone
	chunks := e.chunks
	e.chunks = nil
	enc := e.encoding
	callbacks := e.callbacks
	startedAt := e.startedAt
	e.mu.Unlock()

	e.finalize(chunks, enc, callbacks, startedAt)
}

// Abort stops capture and discards all fragments without any callback.
func (e *Engine) Abort() {
	e.mu.Lock()
	if e.state != stateActive && e.state != stateStopping {
		e.state = stateDone
		e.mu.Unlock()
		return
	}
	e.state = stateDone
	e.chunks = nil
	stream := e.stream
	e.mu.Unlock()

	stream.Stop()
}

// Encoding returns the negotiated encoding; zero before Begin succeeds.
func (e *Engine) Encoding() encoding.Encoding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoding
}

// BytesCaptured reports raw PCM bytes received so far.
func (e *Engine) BytesCaptured() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bytes
}

func (e *Engine) onData(fragment []byte) {
	e.mu.Lock()
	if e.state != stateActive && e.state != stateStopping {
		e.mu.Unlock()
		return
	}
	e.chunks = append(e.chunks, append([]byte(nil), fragment...))
	e.bytes += int64(len(fragment))
	onChunk := e.callbacks.OnChunk
	e.mu.Unlock()

	if onChunk != nil {
		onChunk(len(fragment))
	}
}

func (e *Engine) onStreamError(err error) {
	e.mu.Lock()
	if e.state != stateActive && e.state != stateStopping {
		e.mu.Unlock()
		return
	}
	e.state = stateDone
	e.chunks = nil
	stream := e.stream
	onError := e.callbacks.OnError
	e.mu.Unlock()

	stream.Stop()
	if onError != nil {
		onError(audio.NewError(audio.KindRecordingFailure, "recording stopped unexpectedly", err))
	}
}

func (e *Engine) finalize(chunks [][]byte, enc encoding.Encoding, callbacks Callbacks, startedAt time.Time) {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	pcm := make([]byte, 0, total)
	for _, chunk := range chunks {
		pcm = append(pcm, chunk...)
	}

	pcm = enc.Trim(pcm)
	if len(pcm) == 0 {
		if callbacks.OnError != nil {
			callbacks.OnError(audio.Errorf(audio.KindEmptyRecording, "no audio was captured"))
		}
		return
	}

	data, err := enc.Encode(pcm)
	if err != nil {
		if callbacks.OnError != nil {
			callbacks.OnError(audio.NewError(audio.KindRecordingFailure, "could not encode recording", err))
		}
		return
	}

	if callbacks.OnFinalize != nil {
		callbacks.OnFinalize(File{
			Name:      FileName(e.prefix, startedAt, enc.Extension),
			MediaType: enc.MediaType,
			Data:      data,
			StartedAt: startedAt,
		})
	}
}

// FileName derives the deterministic name for a recording started at startedAt.
func FileName(prefix string, startedAt time.Time, extension string) string {
	return fmt.Sprintf("%s-%d.%s", prefix, startedAt.UnixMilli(), extension)
}

func classify(err error, message string) error {
	if audio.KindOf(err) != "" {
		return err
	}
	return audio.NewError(audio.KindRecordingFailure, message, err)
}
