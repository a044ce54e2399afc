package i18n_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/i18n"
)

func newTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	fsys := fstest.MapFS{
		"locales/ja.yaml": {Data: []byte(`
ja:
  greeting: "%{name}様、こんにちは"
  menu:
    title: メニュー
  items:
    zero: コンテンツはありません
    other: "%{count}件のコンテンツ"
  price: 1500
`)},
		"locales/en.yml": {Data: []byte(`
en:
  greeting: "Hello, %{name}"
`)},
		"locales/README.md": {Data: []byte("not copy")},
	}
	tr, err := i18n.NewTranslator(context.Background(),
		i18n.NewEmbeddedFSAdapter(i18n.NewYAMLParser(), fsys, "locales"))
	require.NoError(t, err)
	return tr
}

func TestTranslator(t *testing.T) {
	t.Parallel()

	tr := newTranslator(t)
	assert.Equal(t, []string{"en", "ja"}, tr.Languages())

	t.Run("placeholders", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "テスト様、こんにちは", tr.T("ja", "greeting", "name", "テスト"))
		assert.Equal(t, "Hello, Bob", tr.T("en", "greeting", "name", "Bob"))
		assert.Equal(t, "%{name}様、こんにちは", tr.T("ja", "greeting"))
	})

	t.Run("nested and scalar values", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "メニュー", tr.T("ja", "menu.title"))
		assert.Equal(t, "1500", tr.T("ja", "price"))
		assert.False(t, tr.Has("ja", "menu"), "a map is not copy")
	})

	t.Run("unknown language falls back to default", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "メニュー", tr.T("fr", "menu.title"))
	})

	t.Run("missing key renders the key", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "nope.key", tr.T("ja", "nope.key"))
	})

	t.Run("plurals", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "コンテンツはありません", tr.N("ja", "items", 0))
		assert.Equal(t, "1件のコンテンツ", tr.N("ja", "items", 1))
		assert.Equal(t, "3件のコンテンツ", tr.N("ja", "items", 3))
	})

	t.Run("require", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, tr.Require("ja", "greeting", "menu.title"))
		err := tr.Require("ja", "greeting", "missing", "menu")
		require.ErrorIs(t, err, i18n.ErrMissingTranslation)
		assert.Contains(t, err.Error(), "ja.missing")
		assert.Contains(t, err.Error(), "ja.menu")
	})
}

func TestNewTranslatorErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := i18n.NewTranslator(ctx, nil)
	assert.ErrorIs(t, err, i18n.ErrNilAdapter)

	_, err = i18n.NewTranslator(ctx, &i18n.MapAdapter{})
	assert.ErrorIs(t, err, i18n.ErrNoTranslations)

	bad := fstest.MapFS{"locales/ja.yaml": {Data: []byte("ja: [1, 2]")}}
	_, err = i18n.NewTranslator(ctx, i18n.NewEmbeddedFSAdapter(i18n.NewYAMLParser(), bad, "locales"))
	assert.ErrorIs(t, err, i18n.ErrFailedToParseYAML)

	_, err = i18n.NewTranslator(ctx, i18n.NewEmbeddedFSAdapter(i18n.NewYAMLParser(), fstest.MapFS{}, "locales"))
	assert.ErrorIs(t, err, i18n.ErrFailedToReadDir)
}
