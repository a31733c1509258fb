package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Supported locales
const (
	LocaleEnglish = "en"
	LocaleGerman  = "de"
	DefaultLocale = LocaleEnglish
)

var supported = []language.Tag{language.English, language.German}

var matcher = language.NewMatcher(supported)

type localeKey struct{}

var (
	catalog     map[string]map[string]any
	catalogOnce sync.Once
)

func loadCatalog() {
	catalogOnce.Do(func() {
		catalog = make(map[string]map[string]any, len(supported))
		for _, tag := range supported {
			locale := tag.String()
			data, err := messagesFS.ReadFile("messages/" + locale + ".json")
			if err != nil {
				continue
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			catalog[locale] = msg
		}
	})
}

// Localizer resolves message keys such as "errors.pdmp_block" for one locale.
type Localizer struct {
	locale string
}

// NewLocalizer returns a localizer, falling back to English for unknown locales.
func NewLocalizer(locale string) *Localizer {
	loadCatalog()
	if _, ok := catalog[locale]; !ok {
		locale = DefaultLocale
	}
	return &Localizer{locale: locale}
}

func localizerFromContext(ctx context.Context) *Localizer {
	return NewLocalizer(GetLocaleFromContext(ctx))
}

// T translates a message key. Placeholders in the form {name} are replaced
// from params.
func (l *Localizer) T(key string, params ...map[string]string) string {
	msg := lookup(key, l.locale)
	if msg == "" {
		msg = lookup(key, DefaultLocale)
	}
	if msg == "" {
		return key
	}
	if len(params) > 0 {
		for k, v := range params[0] {
			msg = strings.ReplaceAll(msg, "{"+k+"}", v)
		}
	}
	return msg
}

// GetLocale returns the current locale
func (l *Localizer) GetLocale() string {
	return l.locale
}

func lookup(key, locale string) string {
	current, ok := catalog[locale]
	if !ok {
		return ""
	}
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		nested, ok := current[part].(map[string]any)
		if !ok {
			return ""
		}
		current = nested
	}
	str, _ := current[parts[len(parts)-1]].(string)
	return str
}

// WithLocale adds locale to context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// GetLocaleFromContext retrieves locale from context
func GetLocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}

// ParseAcceptLanguage picks the best supported locale for an Accept-Language header.
func ParseAcceptLanguage(header string) string {
	if header == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return DefaultLocale
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// T translates using the default locale
func T(key string, params ...map[string]string) string {
	return NewLocalizer(DefaultLocale).T(key, params...)
}

// TFromContext translates using locale from context
func TFromContext(ctx context.Context, key string, params ...map[string]string) string {
	return localizerFromContext(ctx).T(key, params...)
}
