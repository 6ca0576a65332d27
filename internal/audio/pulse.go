package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	captureSampleRate = 16000
	chunkSizeBytes    = 640 // 20ms @ 16kHz mono s16
	stallTimeout      = 3 * time.Second
)

// CaptureFormat is the only PCM spec requested from Pulse; encodings convert from it.
var CaptureFormat = Format{SampleRate: captureSampleRate, Channels: 1}

// Device describes one Pulse input source surfaced to voxcap.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// PulseGate acquires input sources from a PulseAudio (or pipewire-pulse) server.
type PulseGate struct {
	input    string
	fallback string

	// OnWarning receives non-fatal selection notes such as a fallback away from a muted source.
	OnWarning func(string)
}

// NewPulseGate builds a gate that resolves audio.input/audio.fallback preferences on every Acquire.
func NewPulseGate(input string, fallback string) *PulseGate {
	return &PulseGate{input: input, fallback: fallback}
}

// Acquire connects to the sound server and resolves one usable source.
func (g *PulseGate) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := newClient()
	if err != nil {
		return nil, classifyConnectError(err)
	}

	devices, err := listDevicesWith(client)
	if err != nil {
		client.Close()
		return nil, classifyPulseError(err)
	}

	selection, err := selectDeviceFromList(devices, g.input, g.fallback)
	if err != nil {
		client.Close()
		return nil, err
	}
	if selection.Warning != "" && g.OnWarning != nil {
		g.OnWarning(selection.Warning)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, classifyPulseError(fmt.Errorf("resolve source %q: %w", selection.Device.ID, err))
	}

	if err := ctx.Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &pulseHandle{
		client:    client,
		source:    source,
		selection: selection,
	}, nil
}

// ListDevices returns available Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	return listDevicesWith(client)
}

// SelectDevice resolves audio.input/audio.fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return SelectFrom(devices, input, fallback)
}

// SelectFrom applies the input/fallback policy to an already listed set of devices.
func SelectFrom(devices []Device, input string, fallback string) (Selection, error) {
	return selectDeviceFromList(devices, input, fallback)
}

func newClient() (*pulse.Client, error) {
	return pulse.NewClient(
		pulse.ClientApplicationName("voxcap"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
}

func listDevicesWith(client *pulse.Client) ([]Device, error) {
	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		// Monitor sources capture playback, not a microphone.
		if strings.HasSuffix(source.SourceName, ".monitor") {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// selectDeviceFromList applies selection policy to a pre-fetched device list.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, Errorf(KindDeviceNotFound, "no audio input devices found")
	}

	var (
		defaultDevice *Device
		byInput       *Device
		byFallback    *Device
	)

	input = strings.TrimSpace(strings.ToLower(input))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			defaultDevice = dev
		}
		if byInput == nil && input != "" && input != "default" && deviceMatches(*dev, input) {
			byInput = dev
		}
		if byFallback == nil && fallback != "" && fallback != "default" && deviceMatches(*dev, fallback) {
			byFallback = dev
		}
	}

	chooseDefault := func() (*Device, error) {
		if defaultDevice == nil {
			return nil, Errorf(KindDeviceNotFound, "default audio source is unavailable")
		}
		return defaultDevice, nil
	}

	selectPrimary := func() (*Device, error) {
		if input == "" || input == "default" {
			return chooseDefault()
		}
		if byInput != nil {
			return byInput, nil
		}
		return nil, Errorf(KindDeviceNotFound, "audio.input %q did not match any device", input)
	}

	primary, err := selectPrimary()
	if err != nil {
		return Selection{}, err
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	primaryReason := "unavailable"
	if primary.Muted {
		primaryReason = "muted"
	}

	fallbackDevice := primary
	if fallback != "" && fallback != "default" {
		if byFallback == nil {
			return Selection{}, Errorf(primaryKind(primary), "primary input %q is %s and fallback %q not found", primary.ID, primaryReason, fallback)
		}
		fallbackDevice = byFallback
	} else {
		d, derr := chooseDefault()
		if derr != nil {
			return Selection{}, Errorf(primaryKind(primary), "primary input %q is %s and no usable fallback", primary.ID, primaryReason)
		}
		fallbackDevice = d
	}

	if !fallbackDevice.Available {
		return Selection{}, Errorf(KindDeviceBusy, "audio fallback device %q is not available", fallbackDevice.ID)
	}
	if fallbackDevice.Muted {
		return Selection{}, Errorf(KindPermissionDenied, "audio fallback device %q is muted", fallbackDevice.ID)
	}

	return Selection{
		Device:   *fallbackDevice,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, primaryReason, fallbackDevice.ID),
		Fallback: primary.ID != fallbackDevice.ID,
	}, nil
}

// primaryKind classifies an unusable primary source: a muted source is an OS-level block.
func primaryKind(device *Device) Kind {
	if device.Muted {
		return KindPermissionDenied
	}
	return KindDeviceBusy
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// classifyConnectError maps a failed server connection. No reachable server means no capture platform.
func classifyConnectError(err error) *Error {
	if isAccessDenied(err) {
		return NewError(KindPermissionDenied, "sound server refused access", err)
	}
	return NewError(KindUnsupportedPlatform, "no sound server reachable", err)
}

// classifyPulseError maps server-reported failures onto the capture taxonomy.
func classifyPulseError(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
		return NewError(KindUnsupportedPlatform, "sound server went away", err)
	case isAccessDenied(err):
		return NewError(KindPermissionDenied, "sound server refused access", err)
	case strings.Contains(msg, "busy"):
		return NewError(KindDeviceBusy, "input source is held by another process", err)
	case strings.Contains(msg, "no such entity"), strings.Contains(msg, "not found"):
		return NewError(KindDeviceNotFound, "input source disappeared", err)
	default:
		return NewError(KindUnknown, err.Error(), err)
	}
}

func isAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access denied") || strings.Contains(msg, "authentication key")
}

// pulseHandle owns one client connection and the source resolved through it.
type pulseHandle struct {
	client    *pulse.Client
	source    *pulse.Source
	selection Selection

	mu       sync.Mutex
	released bool
	streams  []*pulseStream
}

func (h *pulseHandle) Device() Device {
	return h.selection.Device
}

func (h *pulseHandle) Supports(format Format) bool {
	return format == CaptureFormat
}

func (h *pulseHandle) Open(format Format) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, errors.New("capture handle already released")
	}
	if !h.Supports(format) {
		return nil, fmt.Errorf("unsupported capture format %d Hz x %d", format.SampleRate, format.Channels)
	}

	stream := &pulseStream{
		client: h.client,
		source: h.source,
		format: format,
		stopCh: make(chan struct{}),
	}
	h.streams = append(h.streams, stream)
	return stream, nil
}

func (h *pulseHandle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	streams := h.streams
	h.streams = nil
	h.mu.Unlock()

	for _, stream := range streams {
		stream.Stop()
	}
	h.client.Close()
	return nil
}

// pulseStream adapts one Pulse record stream to the Stream contract.
type pulseStream struct {
	client *pulse.Client
	source *pulse.Source
	format Format

	stream *pulse.RecordStream

	onData  func([]byte)
	onError func(error)

	stopCh chan struct{}

	mu       sync.Mutex
	started  bool
	stopped  bool
	failed   atomic.Bool
	inflight sync.WaitGroup
	lastData atomic.Int64
}

func (s *pulseStream) Start(onData func([]byte), onError func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("capture stream already started")
	}
	if s.stopped {
		return errors.New("capture stream already stopped")
	}
	s.onData = onData
	s.onError = onError

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := s.client.NewRecord(
		writer,
		pulse.RecordSource(s.source),
		pulse.RecordMono,
		pulse.RecordSampleRate(captureSampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("voxcap voice sample"),
	)
	if err != nil {
		return classifyPulseError(fmt.Errorf("create pulse record stream: %w", err))
	}

	s.stream = stream
	s.started = true
	s.lastData.Store(time.Now().UnixNano())
	stream.Start()

	go s.watch()
	return nil
}

func (s *pulseStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	stream := s.stream
	s.mu.Unlock()

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
	s.inflight.Wait()
}

// onPCM receives raw Pulse frames and forwards a private copy as one data event.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as s.stopped to avoid Add/Wait races.
	s.inflight.Add(1)
	onData := s.onData
	s.mu.Unlock()
	defer s.inflight.Done()

	s.lastData.Store(time.Now().UnixNano())
	fragment := make([]byte, len(buffer))
	copy(fragment, buffer)
	if onData != nil {
		onData(fragment)
	}
	return len(buffer), nil
}

// watch reports a capture failure when the source stops producing data, e.g. a USB mic unplugged mid-take.
func (s *pulseStream) watch() {
	ticker := time.NewTicker(stallTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastData.Load())
			if time.Since(last) < stallTimeout {
				continue
			}
			s.fail(fmt.Errorf("no audio from source %q for %s", s.source.ID(), stallTimeout))
			return
		}
	}
}

func (s *pulseStream) fail(err error) {
	if !s.failed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	onError := s.onError
	stopped := s.stopped
	s.mu.Unlock()
	if stopped || onError == nil {
		return
	}
	onError(err)
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
