// Package i18n holds user-facing copy in YAML files and renders it with
// named placeholders.
//
// Copy is organised by language, then by dot-separated keys:
//
//	ja:
//	  menu:
//	    title: メニュー
//	  added: "%{name}を追加しました"
//
// A Translator loads every language once through a TranslationAdapter. The
// EmbeddedFSAdapter reads all *.yaml files of a directory in an fs.FS, which
// is how binaries ship their copy:
//
//	//go:embed locales
//	var locales embed.FS
//
//	tr, err := i18n.NewTranslator(ctx, i18n.NewEmbeddedFSAdapter(i18n.NewYAMLParser(), locales, "locales"),
//		i18n.WithDefaultLanguage("ja"),
//	)
//	msg := tr.T("ja", "added", "name", "AI経理秘書")
//
// # Placeholders and plurals
//
// T replaces %{name} with the value following "name" in its arguments.
// Unknown placeholders are left as they are. N selects the zero, one or
// other form below a key and always provides %{count}.
//
// # Missing copy
//
// A missing key renders as the key itself, so a gap in the catalog is
// visible in the chat instead of producing an empty message. Use Require
// at startup to fail fast on keys the application depends on.
package i18n
