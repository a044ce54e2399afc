package i18n

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
)

// TranslationAdapter loads all translations, keyed by language.
type TranslationAdapter interface {
	Load(ctx context.Context) (map[string]map[string]any, error)
}

// MapAdapter serves translations from memory.
type MapAdapter struct {
	Data map[string]map[string]any
}

func (a *MapAdapter) Load(context.Context) (map[string]map[string]any, error) {
	if a.Data == nil {
		return map[string]map[string]any{}, nil
	}
	return a.Data, nil
}

// EmbeddedFSAdapter reads every file of dir the parser supports. Files are
// merged in directory order; a later file overrides keys of an earlier one.
type EmbeddedFSAdapter struct {
	parser Parser
	fsys   fs.FS
	dir    string
}

// NewEmbeddedFSAdapter returns an adapter over dir in fsys.
func NewEmbeddedFSAdapter(parser Parser, fsys fs.FS, dir string) *EmbeddedFSAdapter {
	return &EmbeddedFSAdapter{parser: parser, fsys: fsys, dir: dir}
}

func (a *EmbeddedFSAdapter) Load(ctx context.Context) (map[string]map[string]any, error) {
	if a.parser == nil || a.fsys == nil {
		return nil, ErrNilAdapter
	}
	entries, err := fs.ReadDir(a.fsys, a.dir)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadDir, err)
	}

	all := make(map[string]map[string]any)
	for _, entry := range entries {
		if entry.IsDir() || !a.parser.SupportsFileExtension(path.Ext(entry.Name())) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(ErrLoadingCancelled, err)
		}

		name := path.Join(a.dir, entry.Name())
		content, err := fs.ReadFile(a.fsys, name)
		if err != nil {
			return nil, errors.Join(ErrFailedToReadFile, err)
		}
		parsed, err := a.parser.Parse(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for lang, tr := range parsed {
			if all[lang] == nil {
				all[lang] = make(map[string]any)
			}
			maps.Copy(all[lang], tr)
		}
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoTranslations, a.dir)
	}
	return all, nil
}
