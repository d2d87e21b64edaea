package status

import (
	"embed"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

//go:embed locales/*.yaml
var locales embed.FS

// Translator renders status messages in the language a client asks for.
type Translator struct {
	bundle   *i18n.Bundle
	fallback string
}

// NewTranslator loads the embedded message files. fallback is used when the
// client sends no Accept-Language header ("it" for the original audience).
func NewTranslator(fallback string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := locales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := path.Join("locales", e.Name())
		data, err := locales.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(data, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return &Translator{bundle: bundle, fallback: fallback}, nil
}

// Localize resolves messageID for the Accept-Language value. Unknown IDs come
// back unchanged so a missing translation is visible rather than blank.
func (t *Translator) Localize(acceptLanguage, messageID string, data map[string]any) string {
	langs := []string{}
	if acceptLanguage != "" {
		langs = append(langs, acceptLanguage)
	}
	langs = append(langs, t.fallback)

	msg, err := i18n.NewLocalizer(t.bundle, langs...).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// Message is Localize for a Status.
func (t *Translator) Message(acceptLanguage string, s Status) string {
	return t.Localize(acceptLanguage, s.MessageID, s.Data)
}
