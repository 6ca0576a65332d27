package indicator

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/rbright/voxcap/internal/audio"
)

//go:embed locales/*.toml
var localeFS embed.FS

var localeFiles = []string{"locales/active.en.toml", "locales/active.es.toml"}

// Messages renders user-facing text in the configured language, falling back to English.
type Messages struct {
	localizer *i18n.Localizer
}

// NewMessages loads the embedded catalogs. An empty locale defers to $LANG.
func NewMessages(locale string) (*Messages, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, name := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, name); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}

	if strings.TrimSpace(locale) == "" {
		locale = localeFromEnv(os.Getenv("LANG"))
	}
	return &Messages{localizer: i18n.NewLocalizer(bundle, locale, language.English.String())}, nil
}

// localeFromEnv turns a POSIX locale such as "es_MX.UTF-8" into a BCP 47 tag.
func localeFromEnv(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "C" || raw == "POSIX" {
		return language.English.String()
	}
	return strings.ReplaceAll(raw, "_", "-")
}

func (m *Messages) Title() string {
	return m.localize("Title", nil)
}

func (m *Messages) Recording(minSeconds, maxSeconds int) string {
	return m.localize("Recording", map[string]any{"Min": minSeconds, "Max": maxSeconds})
}

func (m *Messages) Finalizing() string {
	return m.localize("Finalizing", nil)
}

func (m *Messages) Saved(path string) string {
	return m.localize("Saved", map[string]any{"Path": path})
}

func (m *Messages) StopTooEarly(minSeconds, elapsed int) string {
	return m.localize("StopTooEarly", map[string]any{"Min": minSeconds, "Elapsed": elapsed})
}

// ForError returns the user-facing explanation for a capture failure kind. Unclassified failures
// keep their original message.
func (m *Messages) ForError(err *audio.Error) string {
	kind := audio.KindUnknown
	if err != nil && err.Kind != "" {
		kind = err.Kind
	}
	text := m.localize("Err"+string(kind), nil)
	if text == "" {
		kind = audio.KindUnknown
		text = m.localize("Err"+string(audio.KindUnknown), nil)
	}
	if kind == audio.KindUnknown && err != nil {
		if detail := strings.TrimSpace(err.Message); detail != "" {
			text = fmt.Sprintf("%s (%s)", text, detail)
		}
	}
	return text
}

func (m *Messages) localize(id string, data map[string]any) string {
	// A missing translation still yields the English text alongside the error.
	text, _ := m.localizer.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	return text
}
