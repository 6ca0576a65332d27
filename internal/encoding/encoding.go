// Package encoding negotiates the container/codec a recording is finalized into.
package encoding

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
	"github.com/zaf/g711"

	"github.com/rbright/voxcap/internal/audio"
)

const (
	MediaTypeWAV   = "audio/wav"
	MediaTypeMuLaw = "audio/basic"
	MediaTypeL16   = "audio/L16"
)

// DefaultPreferences is the negotiation order used when config does not override it.
var DefaultPreferences = []string{MediaTypeWAV, MediaTypeMuLaw, MediaTypeL16}

// Encoding is one negotiated output format. Capture is the PCM spec requested from the platform.
type Encoding struct {
	MediaType string
	Extension string
	Capture   audio.Format

	// frames is how many capture frames the encoder consumes per output sample.
	frames int
	encode func(pcm []byte, in audio.Format) ([]byte, error)
}

// FrameBytes is the smallest PCM length the encoder turns into at least one output sample.
func (e Encoding) FrameBytes() int {
	channels := e.Capture.Channels
	if channels < 1 {
		channels = 1
	}
	frames := e.frames
	if frames < 1 {
		frames = 1
	}
	return 2 * channels * frames
}

// Trim drops any trailing partial frame the encoder would discard.
func (e Encoding) Trim(pcm []byte) []byte {
	return pcm[:len(pcm)-len(pcm)%e.FrameBytes()]
}

// Encode converts captured s16le PCM into the final payload.
func (e Encoding) Encode(pcm []byte) ([]byte, error) {
	if e.encode == nil {
		return nil, fmt.Errorf("encoding %q has no encoder", e.MediaType)
	}
	return e.encode(e.Trim(pcm), e.Capture)
}

var registry = map[string]Encoding{
	normalize(MediaTypeWAV): {
		MediaType: MediaTypeWAV,
		Extension: "wav",
		Capture:   audio.CaptureFormat,
		encode:    encodeWAV,
	},
	normalize(MediaTypeMuLaw): {
		MediaType: MediaTypeMuLaw,
		Extension: "ulaw",
		Capture:   audio.CaptureFormat,
		frames:    2,
		encode:    encodeMuLaw,
	},
	normalize(MediaTypeL16): {
		MediaType: "audio/L16;rate=16000;channels=1",
		Extension: "pcm",
		Capture:   audio.CaptureFormat,
		encode:    encodeL16,
	},
}

// Lookup resolves a media type, ignoring case and parameters.
func Lookup(mediaType string) (Encoding, bool) {
	enc, ok := registry[normalize(mediaType)]
	return enc, ok
}

// Known reports whether mediaType names a registered encoding.
func Known(mediaType string) bool {
	_, ok := Lookup(mediaType)
	return ok
}

// Negotiate returns the first preference that is registered and whose capture format the platform supports.
func Negotiate(preferences []string, supports func(audio.Format) bool) (Encoding, error) {
	tried := make([]string, 0, len(preferences))
	for _, pref := range preferences {
		enc, ok := Lookup(pref)
		if !ok {
			tried = append(tried, pref)
			continue
		}
		if supports != nil && !supports(enc.Capture) {
			tried = append(tried, pref)
			continue
		}
		return enc, nil
	}
	return Encoding{}, audio.Errorf(audio.KindNoSupportedEncoding, "none of [%s] can be recorded here", strings.Join(tried, ", "))
}

func normalize(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func encodeWAV(pcm []byte, in audio.Format) ([]byte, error) {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	out := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(out, in.SampleRate, 16, in.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: in.Channels, SampleRate: in.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	data, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("read wav payload: %w", err)
	}
	return data, nil
}

// encodeMuLaw halves the 16 kHz capture to 8 kHz telephone rate and companders with G.711 mu-law.
func encodeMuLaw(pcm []byte, in audio.Format) ([]byte, error) {
	if in.SampleRate != 16000 || in.Channels != 1 {
		return nil, fmt.Errorf("mu-law encoder expects 16 kHz mono, got %d Hz x %d", in.SampleRate, in.Channels)
	}

	frames := len(pcm) / 4
	narrow := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		a := int32(int16(binary.LittleEndian.Uint16(pcm[4*i:])))
		b := int32(int16(binary.LittleEndian.Uint16(pcm[4*i+2:])))
		binary.LittleEndian.PutUint16(narrow[2*i:], uint16(int16((a+b)/2)))
	}
	return g711.EncodeUlaw(narrow), nil
}

// encodeL16 swaps to network byte order per RFC 2586.
func encodeL16(pcm []byte, _ audio.Format) ([]byte, error) {
	out := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		out[i] = pcm[i+1]
		out[i+1] = pcm[i]
	}
	return out, nil
}
