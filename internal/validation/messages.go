package validation

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// GenericErrorKey is shown when the remote API reports an error key that has
// no message.
const GenericErrorKey = "ERROR_GENERIC"

//go:embed locales/*.toml
var locales embed.FS

// Messages maps error keys and validation tags to localized text. Danish is
// the default language.
type Messages struct {
	bundle *i18n.Bundle
}

func NewMessages(defaultLang language.Tag) (*Messages, error) {
	bundle := i18n.NewBundle(defaultLang)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(locales, "locales/*.toml")
	if err != nil {
		return nil, fmt.Errorf("list locales: %w", err)
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(locales, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return &Messages{bundle: bundle}, nil
}

// MustMessages is NewMessages for package-level wiring; the embedded files
// are fixed at build time.
func MustMessages(defaultLang language.Tag) *Messages {
	m, err := NewMessages(defaultLang)
	if err != nil {
		panic(err)
	}
	return m
}

// Languages lists the tags with loaded messages.
func (m *Messages) Languages() []language.Tag {
	return m.bundle.LanguageTags()
}

func (m *Messages) localizer(ctx context.Context) *i18n.Localizer {
	return i18n.NewLocalizer(m.bundle, Languages(ctx)...)
}

// ErrorMessage returns the message for a remote error key, falling back to
// the generic message for unknown keys.
func (m *Messages) ErrorMessage(ctx context.Context, key string) string {
	l := m.localizer(ctx)
	if key != "" {
		if msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: "Errors." + key}); err == nil {
			return msg
		}
	}
	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: "Errors." + GenericErrorKey})
	if err != nil {
		return GenericErrorKey
	}
	return msg
}

// HasErrorKey reports whether key has a message in the default language.
func (m *Messages) HasErrorKey(key string) bool {
	_, err := i18n.NewLocalizer(m.bundle).Localize(&i18n.LocalizeConfig{MessageID: "Errors." + key})
	return err == nil
}

func (m *Messages) fieldMessage(ctx context.Context, tag, field string) string {
	l := m.localizer(ctx)
	label, err := l.Localize(&i18n.LocalizeConfig{MessageID: "Fields." + field})
	if err != nil {
		label = field
	}
	data := map[string]string{"Field": label}
	msg, err := l.Localize(&i18n.LocalizeConfig{MessageID: "Validation." + tag, TemplateData: data})
	if err == nil {
		return msg
	}
	msg, err = l.Localize(&i18n.LocalizeConfig{MessageID: "Validation.default", TemplateData: data})
	if err != nil {
		return strings.TrimSpace(label + " " + tag)
	}
	return msg
}
