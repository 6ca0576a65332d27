// Package config resolves, parses, validates, and defaults voxcap configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	Audio     AudioConfig
	Recording RecordingConfig
	Output    OutputConfig
	History   HistoryConfig
	Indicator IndicatorConfig
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// RecordingConfig bounds a session and orders the output encodings to try.
type RecordingConfig struct {
	MinSeconds int
	MaxSeconds int
	Encodings  []string
}

// OutputConfig controls where finalized files land and what runs afterwards.
type OutputConfig struct {
	Dir    string
	Prefix string
	// Command runs with the written file path appended as its last argument.
	Command CommandConfig
}

type HistoryConfig struct {
	Enable bool
	Path   string
}

// IndicatorConfig controls desktop notifications, sound cues, and message language.
type IndicatorConfig struct {
	Enable         bool
	SoundEnable    bool
	DesktopAppName string
	ErrorTimeoutMS int
	Locale         string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
