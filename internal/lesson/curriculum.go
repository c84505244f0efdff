package lesson

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
)

//go:embed curriculum/*.yaml
var curriculumFS embed.FS

// Builtin loads the curriculum shipped with the binary. Files are named
// NN-<id>.yaml and keep that order in the catalog.
func Builtin(logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	lessons, result, err := NewLoader(logger).LoadFS(curriculumFS, "curriculum", "builtin")
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.File + ": " + e.Message
		}
		return nil, fmt.Errorf("builtin curriculum: %s", strings.Join(msgs, "; "))
	}
	return NewCatalog(lessons...)
}

// LoadCatalog returns the builtin curriculum extended with the packs in
// dirs. Broken pack files are logged and skipped.
func LoadCatalog(dirs []string, skipBuiltin bool, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var catalog *Catalog
	if skipBuiltin {
		catalog = &Catalog{byID: map[string]*Lesson{}}
	} else {
		builtin, err := Builtin(logger)
		if err != nil {
			return nil, err
		}
		catalog = builtin
	}

	loader := NewLoader(logger)
	for _, dir := range dirs {
		lessons, _, err := loader.LoadDir(dir)
		if err != nil {
			return nil, err
		}
		if catalog, err = catalog.Extend(lessons...); err != nil {
			return nil, fmt.Errorf("lesson pack %s: %w", dir, err)
		}
	}
	return catalog, nil
}
