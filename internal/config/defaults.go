package config

import "github.com/rbright/voxcap/internal/encoding"

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Recording: RecordingConfig{
			MinSeconds: 10,
			MaxSeconds: 120,
			Encodings:  append([]string(nil), encoding.DefaultPreferences...),
		},
		Output: OutputConfig{
			Dir:    "~/voxcap",
			Prefix: "voice-sample",
		},
		History: HistoryConfig{Enable: true},
		Indicator: IndicatorConfig{
			Enable:         true,
			SoundEnable:    true,
			DesktopAppName: "voxcap",
			ErrorTimeoutMS: 4000,
			Locale:         "en",
		},
	}
}
