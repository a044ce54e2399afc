package i18n

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/dmitrymomot/linebilling/pkg/logger"
)

// DefaultLanguage is used when no other default is configured.
const DefaultLanguage = "ja"

// Translator renders copy. It is immutable after construction and safe for
// concurrent use.
type Translator struct {
	translations map[string]map[string]any
	defaultLang  string
	logMissing   bool
	log          *slog.Logger
}

// Option configures a Translator.
type Option func(*Translator)

// WithDefaultLanguage sets the language used for unknown languages.
func WithDefaultLanguage(lang string) Option {
	return func(t *Translator) {
		if lang != "" {
			t.defaultLang = lang
		}
	}
}

// WithLogger sets the logger for missing-copy warnings.
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.log = l
		}
	}
}

// WithMissingTranslationsLogging logs every lookup of a missing key.
func WithMissingTranslationsLogging(on bool) Option {
	return func(t *Translator) {
		t.logMissing = on
	}
}

// NewTranslator loads all translations from adapter.
func NewTranslator(ctx context.Context, adapter TranslationAdapter, opts ...Option) (*Translator, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	t := &Translator{defaultLang: DefaultLanguage, log: logger.Discard()}
	for _, opt := range opts {
		opt(t)
	}

	translations, err := adapter.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(translations) == 0 {
		return nil, ErrNoTranslations
	}
	for lang, m := range translations {
		if lang == "" || m == nil {
			return nil, fmt.Errorf("i18n: invalid translations for language %q", lang)
		}
	}
	t.translations = translations
	t.log.DebugContext(ctx, "translations loaded", "languages", t.Languages())
	return t, nil
}

// Languages returns the loaded languages, sorted.
func (t *Translator) Languages() []string {
	langs := make([]string, 0, len(t.translations))
	for lang := range t.translations {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	return langs
}

// Require reports every key missing for lang.
func (t *Translator) Require(lang string, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if _, ok := t.lookup(lang, key); !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrMissingTranslation, lang, key))
		}
	}
	return errors.Join(errs...)
}

// Has reports whether key has a string value for lang.
func (t *Translator) Has(lang, key string) bool {
	_, ok := t.lookup(lang, key)
	return ok
}

// T renders key for lang. args are name/value pairs for %{name}
// placeholders; a trailing odd argument is ignored.
func (t *Translator) T(lang, key string, args ...string) string {
	s, ok := t.lookup(lang, key)
	if !ok {
		t.missing(lang, key)
		return substitute(key, args)
	}
	return substitute(s, args)
}

// N renders the plural form of key for n. Zero falls back to the other
// form when no zero form exists.
func (t *Translator) N(lang, key string, n int, args ...string) string {
	forms := []string{key + ".other"}
	switch n {
	case 0:
		forms = []string{key + ".zero", key + ".other"}
	case 1:
		forms = []string{key + ".one", key + ".other"}
	}
	forms = append(forms, key)

	args = append(slices.Clone(args), "count", strconv.Itoa(n))
	for _, f := range forms {
		if s, ok := t.lookup(lang, f); ok {
			return substitute(s, args)
		}
	}
	t.missing(lang, key)
	return substitute(key, args)
}

func (t *Translator) missing(lang, key string) {
	if t.logMissing {
		t.log.Warn("translation not found", "lang", lang, "key", key)
	}
}

// lookup resolves a dotted key, falling back to the default language.
func (t *Translator) lookup(lang, key string) (string, bool) {
	m, ok := t.translations[lang]
	if !ok {
		m = t.translations[t.defaultLang]
	}
	if m == nil {
		return "", false
	}

	parts := strings.Split(key, ".")
	var cur any = m
	for _, p := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = node[p]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case string:
		return v, true
	case int, int64, float64, bool:
		return fmt.Sprint(v), true
	default:
		return "", false
	}
}

var placeholder = regexp.MustCompile(`%\{([^}]+)\}`)

// substitute replaces %{name} with the value following name in args. A
// later pair overrides an earlier one with the same name.
func substitute(tmpl string, args []string) string {
	if len(args) < 2 || !strings.Contains(tmpl, "%{") {
		return tmpl
	}
	params := make(map[string]string, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		params[args[i]] = args[i+1]
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := params[m[2:len(m)-1]]; ok {
			return v
		}
		return m
	})
}
