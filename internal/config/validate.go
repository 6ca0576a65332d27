package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/rbright/voxcap/internal/encoding"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	rec := cfg.Recording
	if rec.MinSeconds <= 0 {
		return nil, fmt.Errorf("recording.min_seconds must be > 0")
	}
	if rec.MaxSeconds < rec.MinSeconds {
		return nil, fmt.Errorf("recording.max_seconds (%d) must be >= recording.min_seconds (%d)", rec.MaxSeconds, rec.MinSeconds)
	}

	if len(rec.Encodings) == 0 {
		return nil, fmt.Errorf("recording.encodings must not be empty")
	}
	known := 0
	for _, mediaType := range rec.Encodings {
		if encoding.Known(mediaType) {
			known++
			continue
		}
		warnings = append(warnings, Warning{Message: fmt.Sprintf("recording.encodings: %q is not supported and will be skipped", mediaType)})
	}
	if known == 0 {
		return nil, fmt.Errorf("recording.encodings lists no supported media type")
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		return nil, fmt.Errorf("output.dir must not be empty")
	}
	prefix := strings.TrimSpace(cfg.Output.Prefix)
	if prefix == "" {
		return nil, fmt.Errorf("output.prefix must not be empty")
	}
	if strings.ContainsAny(prefix, `/\`) {
		return nil, fmt.Errorf("output.prefix must not contain path separators")
	}
	if cfg.Output.Command.Raw != "" && len(cfg.Output.Command.Argv) == 0 {
		return nil, fmt.Errorf("output.command is configured but empty")
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}
	if _, err := language.Parse(cfg.Indicator.Locale); err != nil {
		return nil, fmt.Errorf("indicator.locale %q is not a valid language tag: %w", cfg.Indicator.Locale, err)
	}

	if !cfg.History.Enable && strings.TrimSpace(cfg.History.Path) != "" {
		warnings = append(warnings, Warning{Message: "history.path is set but history.enable=false"})
	}

	return warnings, nil
}
