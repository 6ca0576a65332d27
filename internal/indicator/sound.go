package indicator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
	cueError
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	cueRamp       = 5 * time.Millisecond
)

type tone struct {
	hz     float64
	length time.Duration
	volume float64
}

var cueTones = map[cueKind][]tone{
	cueStart:    {{hz: 880, length: 70 * time.Millisecond, volume: 0.18}, {hz: 1175, length: 70 * time.Millisecond, volume: 0.18}},
	cueStop:     {{hz: 620, length: 120 * time.Millisecond, volume: 0.18}},
	cueComplete: {{hz: 740, length: 65 * time.Millisecond, volume: 0.18}, {hz: 988, length: 90 * time.Millisecond, volume: 0.18}},
	cueCancel:   {{hz: 480, length: 75 * time.Millisecond, volume: 0.18}, {hz: 360, length: 90 * time.Millisecond, volume: 0.18}},
	cueError:    {{hz: 330, length: 160 * time.Millisecond, volume: 0.16}},
}

var (
	cueCacheOnce sync.Once
	cueCache     map[cueKind][]int16
)

// cuePCM returns the synthesized mono s16 samples for kind.
func cuePCM(kind cueKind) []int16 {
	cueCacheOnce.Do(func() {
		cueCache = make(map[cueKind][]int16, len(cueTones))
		for k, tones := range cueTones {
			cueCache[k] = synthesize(tones)
		}
	})
	return cueCache[kind]
}

func synthesize(tones []tone) []int16 {
	gap := samplesFor(cueGap)
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, synthesizeTone(t)...)
	}
	return pcm
}

// synthesizeTone renders a sine with a short linear attack and release to avoid clicks.
func synthesizeTone(t tone) []int16 {
	n := samplesFor(t.length)
	if n <= 0 || t.hz <= 0 || t.volume <= 0 {
		return nil
	}
	ramp := max(1, min(n/10, samplesFor(cueRamp)))

	pcm := make([]int16, n)
	for i := range pcm {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		phase := 2 * math.Pi * t.hz * float64(i) / cueSampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * t.volume * envelope * math.MaxInt16))
	}
	return pcm
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}

// playPulse plays samples on the default sink and blocks until drained.
func playPulse(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voxcap"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("voxcap cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}
