package lesson

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/sandbox"
	"github.com/jkaninda/shellguide/internal/validator"
)

// LessonFile is the YAML form of a lesson.
type LessonFile struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	Category    string          `yaml:"category"`
	Requires    string          `yaml:"requires"`
	Challenges  []ChallengeFile `yaml:"challenges"`
}

// ChallengeFile is the YAML form of a challenge.
type ChallengeFile struct {
	ID        string             `yaml:"id"`
	Prompt    string             `yaml:"prompt"`
	Hint      string             `yaml:"hint"`
	Teaching  string             `yaml:"teaching"`
	Expected  string             `yaml:"expected"`
	GUI       string             `yaml:"gui"`
	Tier      int                `yaml:"tier"`
	Operators []string           `yaml:"operators"`
	Layout    map[string]*string `yaml:"layout"` // null value = directory
	Mastery   *Mastery           `yaml:"mastery"`
	Validate  ValidateFile       `yaml:"validate"`
}

// ValidateFile declares the strategies of a challenge.
type ValidateFile struct {
	Exact       string        `yaml:"exact"`
	AnyOf       []string      `yaml:"any_of"`
	Explanation string        `yaml:"explanation"`
	Warned      []WarnedFile  `yaml:"warned"`
	Effect      *EffectFile   `yaml:"effect"`
	Mistakes    []MistakeFile `yaml:"mistakes"`
}

// WarnedFile is a working but discouraged form.
type WarnedFile struct {
	Command string `yaml:"command"`
	Caution string `yaml:"caution"`
}

// EffectFile is an effect check.
type EffectFile struct {
	Predicate   PredicateFile `yaml:"predicate"`
	Canonical   []string      `yaml:"canonical"`
	Explanation string        `yaml:"explanation"`
}

// MistakeFile is a known wrong attempt.
type MistakeFile struct {
	Command     string         `yaml:"command"`
	Predicate   *PredicateFile `yaml:"predicate"`
	Explanation string         `yaml:"explanation"`
	Effect      string         `yaml:"effect"`
	Suggestion  string         `yaml:"suggestion"`
}

// PredicateFile holds exactly one predicate key.
type PredicateFile struct {
	FileExists  string          `yaml:"file_exists"`
	FileAbsent  string          `yaml:"file_absent"`
	FileCreated string          `yaml:"file_created"`
	FileRemoved string          `yaml:"file_removed"`
	DirExists   string          `yaml:"dir_exists"`
	DirAbsent   string          `yaml:"dir_absent"`
	DirCreated  string          `yaml:"dir_created"`
	DirRemoved  string          `yaml:"dir_removed"`
	Unchanged   bool            `yaml:"unchanged"`
	All         []PredicateFile `yaml:"all"`
	Any         []PredicateFile `yaml:"any"`
	Not         *PredicateFile  `yaml:"not"`
}

// Build converts the declaration into a predicate.
func (p PredicateFile) Build() (validator.Predicate, error) {
	var built []validator.Predicate
	add := func(path string, fn func(string) validator.Predicate) {
		if path != "" {
			built = append(built, fn(path))
		}
	}
	add(p.FileExists, validator.FileExists)
	add(p.FileAbsent, validator.FileAbsent)
	add(p.FileCreated, validator.FileCreated)
	add(p.FileRemoved, validator.FileRemoved)
	add(p.DirExists, validator.DirExists)
	add(p.DirAbsent, validator.DirAbsent)
	add(p.DirCreated, validator.DirCreated)
	add(p.DirRemoved, validator.DirRemoved)
	if p.Unchanged {
		built = append(built, validator.Unchanged())
	}
	if len(p.All) > 0 {
		parts, err := buildAll(p.All)
		if err != nil {
			return nil, err
		}
		built = append(built, validator.All(parts...))
	}
	if len(p.Any) > 0 {
		parts, err := buildAll(p.Any)
		if err != nil {
			return nil, err
		}
		built = append(built, validator.Any(parts...))
	}
	if p.Not != nil {
		inner, err := p.Not.Build()
		if err != nil {
			return nil, err
		}
		built = append(built, validator.Not(inner))
	}

	switch len(built) {
	case 0:
		return nil, fmt.Errorf("predicate is empty")
	case 1:
		return built[0], nil
	default:
		return nil, fmt.Errorf("predicate has %d keys, use all/any to combine", len(built))
	}
}

func buildAll(files []PredicateFile) ([]validator.Predicate, error) {
	out := make([]validator.Predicate, 0, len(files))
	for _, f := range files {
		p, err := f.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Build converts the declaration into a Lesson.
func (f *LessonFile) Build() (*Lesson, error) {
	if f.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	l := &Lesson{
		ID:          f.ID,
		Title:       f.Title,
		Description: strings.TrimSpace(f.Description),
		Category:    f.Category,
		Requires:    f.Requires,
	}
	for i, cf := range f.Challenges {
		c, err := cf.build()
		if err != nil {
			return nil, fmt.Errorf("challenge %d (%s): %w", i+1, cf.ID, err)
		}
		l.Challenges = append(l.Challenges, c)
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (cf ChallengeFile) build() (*Challenge, error) {
	tier := Tier(cf.Tier)
	if cf.Tier == 0 {
		tier = TierBasic
	}
	for _, op := range cf.Operators {
		if op != executor.OpAnd {
			return nil, fmt.Errorf("operator %q cannot be enabled", op)
		}
	}

	layout := make(sandbox.Layout, len(cf.Layout))
	for path, content := range cf.Layout {
		if content == nil {
			layout[path] = sandbox.DirNode()
		} else {
			layout[path] = sandbox.FileNode(*content)
		}
	}

	v, err := cf.Validate.build()
	if err != nil {
		return nil, err
	}
	return &Challenge{
		ID:             cf.ID,
		Prompt:         strings.TrimSpace(cf.Prompt),
		Hint:           strings.TrimSpace(cf.Hint),
		Teaching:       strings.TrimSpace(cf.Teaching),
		Expected:       cf.Expected,
		GUIEquivalent:  cf.GUI,
		Layout:         layout,
		Validator:      v,
		Tier:           tier,
		ExtraOperators: executor.Operators(cf.Operators...),
		Mastery:        cf.Mastery,
	}, nil
}

func (vf ValidateFile) build() (*validator.Validator, error) {
	var strategies []validator.Strategy
	if vf.Exact != "" {
		strategies = append(strategies, validator.ExactMatch{Command: vf.Exact, Explanation: vf.Explanation})
	}
	if len(vf.AnyOf) > 0 {
		strategies = append(strategies, validator.AnyOf{Commands: vf.AnyOf, Explanation: vf.Explanation})
	}
	for _, w := range vf.Warned {
		if w.Command == "" {
			return nil, fmt.Errorf("warned form needs a command")
		}
		strategies = append(strategies, validator.Warned{Command: w.Command, Caution: w.Caution})
	}
	if vf.Effect != nil {
		p, err := vf.Effect.Predicate.Build()
		if err != nil {
			return nil, fmt.Errorf("effect: %w", err)
		}
		explanation := vf.Effect.Explanation
		if explanation == "" {
			explanation = vf.Explanation
		}
		strategies = append(strategies, validator.Effect{
			Predicate:   p,
			Canonical:   vf.Effect.Canonical,
			Explanation: explanation,
		})
	}
	if len(vf.Mistakes) > 0 {
		mistakes := make(validator.CommonMistakes, 0, len(vf.Mistakes))
		for i, mf := range vf.Mistakes {
			m := validator.Mistake{
				Command:     mf.Command,
				Explanation: mf.Explanation,
				Effect:      mf.Effect,
				Suggestion:  mf.Suggestion,
			}
			if mf.Predicate != nil {
				p, err := mf.Predicate.Build()
				if err != nil {
					return nil, fmt.Errorf("mistake %d: %w", i+1, err)
				}
				m.Predicate = p
			}
			if m.Command == "" && m.Predicate == nil {
				return nil, fmt.Errorf("mistake %d needs a command or a predicate", i+1)
			}
			mistakes = append(mistakes, m)
		}
		strategies = append(strategies, mistakes)
	}
	if len(strategies) == 0 {
		return nil, fmt.Errorf("validate: no strategy declared")
	}
	return validator.New(strategies...), nil
}

// LoadResult summarizes a directory load operation.
type LoadResult struct {
	Loaded int
	Errors []LoadError
}

// LoadError records a per-file parse or validation error.
type LoadError struct {
	File    string
	Message string
}

// Loader parses YAML lesson packs.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger}
}

// LoadDir parses every *.yaml and *.yml file in dir. Returns valid lessons
// and a result summary. Returns an error only if the directory itself
// cannot be read.
func (l *Loader) LoadDir(dir string) ([]*Lesson, *LoadResult, error) {
	return l.LoadFS(os.DirFS(dir), ".", dir)
}

// LoadFS is LoadDir over an fs.FS. label names the source in logs and
// load errors.
func (l *Loader) LoadFS(fsys fs.FS, dir, label string) ([]*Lesson, *LoadResult, error) {
	correlationID := newCorrelationID()

	l.logger.Info("loading lesson pack",
		slog.String("dir", label),
		slog.String("correlation_id", correlationID),
	)

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading lesson directory %s: %w", label, err)
	}

	result := &LoadResult{}
	var lessons []*Lesson
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		name := filepath.ToSlash(filepath.Join(dir, entry.Name()))
		display := filepath.Join(label, entry.Name())
		lesson, err := l.parse(fsys, name)
		if err != nil {
			l.logger.Warn("lesson parse error",
				slog.String("file", display),
				slog.String("error", err.Error()),
				slog.String("correlation_id", correlationID),
			)
			result.Errors = append(result.Errors, LoadError{File: display, Message: err.Error()})
			continue
		}

		l.logger.Debug("lesson loaded",
			slog.String("lesson", lesson.ID),
			slog.Int("challenges", len(lesson.Challenges)),
			slog.String("correlation_id", correlationID),
		)
		lessons = append(lessons, lesson)
		result.Loaded++
	}

	l.logger.Info("lesson pack load complete",
		slog.Int("loaded", result.Loaded),
		slog.Int("errors", len(result.Errors)),
		slog.String("correlation_id", correlationID),
	)
	return lessons, result, nil
}

// ParseFile reads a single lesson file.
func (l *Loader) ParseFile(path string) (*Lesson, error) {
	return l.parse(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

func (l *Loader) parse(fsys fs.FS, name string) (*Lesson, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var f LessonFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return f.Build()
}

// newCorrelationID returns a short random id that ties the log lines of
// one load together.
func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
