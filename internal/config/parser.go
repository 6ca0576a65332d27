package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Audio     *jsoncAudio     `json:"audio"`
	Recording *jsoncRecording `json:"recording"`
	Output    *jsoncOutput    `json:"output"`
	History   *jsoncHistory   `json:"history"`
	Indicator *jsoncIndicator `json:"indicator"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncRecording struct {
	MinSeconds *int             `json:"min_seconds"`
	MaxSeconds *int             `json:"max_seconds"`
	Encodings  *jsoncStringList `json:"encodings"`
}

type jsoncOutput struct {
	Dir     *string `json:"dir"`
	Prefix  *string `json:"prefix"`
	Command *string `json:"command"`
}

type jsoncHistory struct {
	Enable *bool   `json:"enable"`
	Path   *string `json:"path"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	SoundEnable    *bool   `json:"sound_enable"`
	DesktopAppName *string `json:"desktop_app_name"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
	Locale         *string `json:"locale"`
}

// jsoncStringList accepts either a JSON array or one comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = trimNonEmpty(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = trimNonEmpty(strings.Split(single, ","))
		return nil
	}

	return errors.New("expected string array or comma-delimited string")
}

func trimNonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Parse reads JSONC content over base and validates the result. Empty content yields base.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "/") {
		return Config{}, nil, errors.New("config must be a JSONC object")
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
	}

	if r := payload.Recording; r != nil {
		setInt(&cfg.Recording.MinSeconds, r.MinSeconds)
		setInt(&cfg.Recording.MaxSeconds, r.MaxSeconds)
		if r.Encodings != nil {
			cfg.Recording.Encodings = append([]string(nil), (*r.Encodings)...)
		}
	}

	if o := payload.Output; o != nil {
		setString(&cfg.Output.Dir, o.Dir)
		setString(&cfg.Output.Prefix, o.Prefix)
		if o.Command != nil {
			argv, err := parseArgv(*o.Command)
			if err != nil {
				return fmt.Errorf("invalid output.command: %w", err)
			}
			cfg.Output.Command = CommandConfig{Raw: *o.Command, Argv: argv}
		}
	}

	if h := payload.History; h != nil {
		setBool(&cfg.History.Enable, h.Enable)
		setString(&cfg.History.Path, h.Path)
	}

	if ind := payload.Indicator; ind != nil {
		setBool(&cfg.Indicator.Enable, ind.Enable)
		setBool(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
		setString(&cfg.Indicator.Locale, ind.Locale)
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
