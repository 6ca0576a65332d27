package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/voxcap/internal/audio"
)

func supportAll(audio.Format) bool { return true }

func TestNegotiatePicksFirstSupportedPreference(t *testing.T) {
	enc, err := Negotiate(DefaultPreferences, supportAll)
	require.NoError(t, err)
	require.Equal(t, MediaTypeWAV, enc.MediaType)
	require.Equal(t, "wav", enc.Extension)
}

func TestNegotiateSkipsUnknownAndUnsupported(t *testing.T) {
	enc, err := Negotiate([]string{"audio/webm;codecs=opus", "AUDIO/BASIC"}, supportAll)
	require.NoError(t, err)
	require.Equal(t, MediaTypeMuLaw, enc.MediaType)

	calls := 0
	_, err = Negotiate([]string{MediaTypeWAV, MediaTypeL16}, func(audio.Format) bool {
		calls++
		return false
	})
	require.ErrorIs(t, err, audio.KindNoSupportedEncoding)
	require.Contains(t, err.Error(), "audio/wav, audio/L16")
	require.Equal(t, 2, calls)
}

func TestNegotiateEmptyPreferencesFails(t *testing.T) {
	_, err := Negotiate(nil, supportAll)
	require.ErrorIs(t, err, audio.KindNoSupportedEncoding)
}

func TestLookupIgnoresCaseAndParameters(t *testing.T) {
	enc, ok := Lookup("Audio/L16; rate=16000")
	require.True(t, ok)
	require.Equal(t, "pcm", enc.Extension)
	require.True(t, Known("audio/wav;codecs=1"))
	require.False(t, Known("audio/ogg"))
}

func TestEncodeWAVWrapsPCM(t *testing.T) {
	enc, ok := Lookup(MediaTypeWAV)
	require.True(t, ok)

	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x10, 0x20}
	out, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.Equal(t, []byte("RIFF"), out[:4])
	require.Equal(t, []byte("WAVE"), out[8:12])
	require.True(t, bytes.HasSuffix(out, pcm))
}

func TestEncodeMuLawHalvesRate(t *testing.T) {
	enc, ok := Lookup(MediaTypeMuLaw)
	require.True(t, ok)

	out, err := enc.Encode(make([]byte, 8))
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xff}, out)
}

func TestEncodeL16SwapsByteOrderAndDropsOddByte(t *testing.T) {
	enc, ok := Lookup(MediaTypeL16)
	require.True(t, ok)

	out, err := enc.Encode([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	require.NoError(t, err)
	require.Equal(t, []byte{0x02, 0x01, 0x04, 0x03}, out)
}

func TestEncodeWithoutEncoderFails(t *testing.T) {
	_, err := Encoding{MediaType: "audio/x-none"}.Encode([]byte{1, 2})
	require.Error(t, err)
}

func TestFrameBytesPerEncoding(t *testing.T) {
	wavEnc, _ := Lookup(MediaTypeWAV)
	muLaw, _ := Lookup(MediaTypeMuLaw)
	l16, _ := Lookup(MediaTypeL16)

	require.Equal(t, 2, wavEnc.FrameBytes())
	require.Equal(t, 4, muLaw.FrameBytes())
	require.Equal(t, 2, l16.FrameBytes())
}

func TestTrimDropsPartialFrames(t *testing.T) {
	muLaw, ok := Lookup(MediaTypeMuLaw)
	require.True(t, ok)

	require.Empty(t, muLaw.Trim([]byte{1, 2}))
	require.Equal(t, []byte{1, 2, 3, 4}, muLaw.Trim([]byte{1, 2, 3, 4, 5, 6, 7}))
}

func TestEncodeWAVPatchesDataChunkSize(t *testing.T) {
	enc, ok := Lookup(MediaTypeWAV)
	require.True(t, ok)

	out, err := enc.Encode([]byte{0x01, 0x00, 0x02, 0x00})
	require.NoError(t, err)
	require.Len(t, out, 48)
	require.Equal(t, "RIFF", string(out[:4]))
	require.Equal(t, "data", string(out[36:40]))
	require.Equal(t, []byte{4, 0, 0, 0}, out[40:44])
}
