package executor

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jkaninda/shellguide/internal/sandbox"
)

// pathContext is what path classification resolves against.
type pathContext struct {
	root sandbox.Root
	cwd  string // absolute
}

// prepared is a validated command ready to run.
type prepared struct {
	text string
	name string
	args []string
	spec commandSpec

	// cd only
	cdTarget string
	cdErr    string
}

var modePattern = regexp.MustCompile(`^([0-7]{1,4}|[ugoa]*[-+=][rwxXstugo]*([-+=][rwxXstugo]*)*(,[ugoa]*[-+=][rwxXstugo]*([-+=][rwxXstugo]*)*)*)$`)

// prepare runs the allowlist and path containment checks for one command
// and returns its final argument vector.
func (e *Executor) prepare(cmd simpleCommand, pc pathContext) (*prepared, error) {
	head := cmd.words[0]
	name := head.value
	if head.glob || strings.ContainsRune(name, '/') {
		return nil, &DisallowedCommandError{Command: name}
	}
	spec, ok := commands[name]
	if !ok {
		return nil, &DisallowedCommandError{Command: name}
	}
	if e.policy != nil {
		if err := e.policy.CheckCommand(name); err != nil {
			return nil, &DisallowedCommandError{Command: name, Reason: err.Error()}
		}
	}

	p := &prepared{text: cmd.text, name: name, spec: spec}
	if spec.builtin {
		return p, e.prepareBuiltin(p, cmd.words[1:], pc)
	}

	var (
		args         = cmd.words[1:]
		operandsOnly bool
		targetFlag   bool
		operandCount int
		operandPaths []string
		operandArgs  []string
	)
	for i := 0; i < len(args); i++ {
		w := args[i]
		v := w.value

		if !operandsOnly && v == "--" {
			operandsOnly = true
			p.args = append(p.args, v)
			continue
		}
		if spec.primaries && findOperators[v] {
			p.args = append(p.args, v)
			continue
		}
		if !operandsOnly && isFlag(v) {
			if spec.modeOperand && operandCount == 0 && modePattern.MatchString(v) {
				p.args = append(p.args, v)
				operandCount++
				continue
			}
			var next *word
			if i+1 < len(args) {
				next = &args[i+1]
			}
			out, consumed, err := classifyFlag(spec, name, v, next, pc)
			if err != nil {
				return nil, err
			}
			if spec.pathFlags[flagName(v)] && (name == "cp" || name == "mv") {
				targetFlag = true
			}
			p.args = append(p.args, out...)
			if consumed {
				i++
			}
			continue
		}

		if spec.textOperands {
			p.args = append(p.args, expandGlob(w, pc)...)
			continue
		}
		if spec.modeOperand && operandCount == 0 && modePattern.MatchString(v) && !hasFlag(p.args, "--reference") {
			p.args = append(p.args, v)
			operandCount++
			continue
		}
		for _, candidate := range expandGlob(w, pc) {
			rewritten, abs, err := checkPath(candidate, pc)
			if err != nil {
				return nil, err
			}
			p.args = append(p.args, rewritten)
			operandPaths = append(operandPaths, abs)
			operandArgs = append(operandArgs, candidate)
		}
		operandCount++
	}

	if err := checkRootOperands(spec.root, pc.root, operandPaths, operandArgs, targetFlag); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Executor) prepareBuiltin(p *prepared, args []word, pc pathContext) error {
	if p.name != "cd" {
		return nil
	}
	var operands []string
	for _, w := range args {
		if isFlag(w.value) {
			p.cdErr = "cd: options are not supported here"
			return nil
		}
		operands = append(operands, expandGlob(w, pc)...)
	}
	switch len(operands) {
	case 0:
		p.cdTarget = string(pc.root)
	case 1:
		if operands[0] == "-" {
			p.cdErr = "cd: 'cd -' is not supported here"
			return nil
		}
		_, abs, err := checkPath(operands[0], pc)
		if err != nil {
			return err
		}
		p.args = operands
		p.cdTarget = abs
	default:
		p.cdErr = "cd: too many arguments"
	}
	return nil
}

// classifyFlag validates a flag token and, when the flag takes a value,
// the token after it.
func classifyFlag(spec commandSpec, cmd, v string, next *word, pc pathContext) ([]string, bool, error) {
	if reason, ok := spec.forbiddenFlag(v); ok {
		return nil, false, &DisallowedCommandError{Command: cmd, Flag: v, Reason: reason}
	}

	if strings.HasPrefix(v, "--") || spec.primaries {
		name, value, hasValue := strings.Cut(v, "=")
		if hasValue && !spec.primaries {
			if spec.valueFlags[name] {
				return []string{v}, false, nil
			}
			rewritten, _, err := checkPath(value, pc)
			if err != nil {
				return nil, false, err
			}
			return []string{name + "=" + rewritten}, false, nil
		}
		return flagWithNext(spec, v, v, next, pc)
	}

	letters := v[1:]
	for j := 0; j < len(letters); j++ {
		f := "-" + letters[j:j+1]
		if reason, ok := spec.forbidden[f]; ok {
			return nil, false, &DisallowedCommandError{Command: cmd, Flag: f, Reason: reason}
		}
		if !spec.valueFlags[f] && !spec.pathFlags[f] {
			continue
		}
		rest := letters[j+1:]
		if rest == "" {
			return flagWithNext(spec, f, v, next, pc)
		}
		if spec.pathFlags[f] {
			rewritten, _, err := checkPath(rest, pc)
			if err != nil {
				return nil, false, err
			}
			return []string{v[:j+2] + rewritten}, false, nil
		}
		return []string{v}, false, nil
	}
	if strings.ContainsRune(v, '/') {
		return nil, false, &PathEscapeError{Arg: v, Reason: "cannot tell whether this is a flag or a path"}
	}
	return []string{v}, false, nil
}

func flagWithNext(spec commandSpec, name, v string, next *word, pc pathContext) ([]string, bool, error) {
	switch {
	case spec.valueFlags[name]:
		if next == nil {
			return []string{v}, false, nil
		}
		return []string{v, next.value}, true, nil
	case spec.pathFlags[name]:
		if next == nil {
			return []string{v}, false, nil
		}
		rewritten, _, err := checkPath(next.value, pc)
		if err != nil {
			return nil, false, err
		}
		return []string{v, rewritten}, true, nil
	}
	if strings.ContainsRune(v, '/') {
		return nil, false, &PathEscapeError{Arg: v, Reason: "cannot tell whether this is a flag or a path"}
	}
	return []string{v}, false, nil
}

// checkPath resolves p and verifies it stays inside the root. A leading
// "~" refers to the sandbox root, which is the HOME of every sandboxed
// process. The returned argument has the tilde expanded.
func checkPath(p string, pc pathContext) (string, string, error) {
	arg := p
	if strings.HasPrefix(p, "~") {
		switch {
		case p == "~":
			arg = string(pc.root)
		case strings.HasPrefix(p, "~/"):
			arg = filepath.Join(string(pc.root), p[2:])
		default:
			return "", "", &PathEscapeError{Arg: p, Reason: "other home directories are outside the sandbox"}
		}
	}
	abs, err := sandbox.ResolveIn(pc.root, pc.cwd, arg)
	if err != nil {
		return "", "", &PathEscapeError{Arg: p}
	}
	return arg, abs, nil
}

// expandGlob expands an unquoted pattern inside the current directory the
// way a shell would. Hidden entries only match patterns that start with a
// dot and the sandbox marker never matches. Matches whose directory lies
// outside the root are dropped, so a pattern never lists foreign
// directories. A pattern without remaining matches is passed through
// literally.
func expandGlob(w word, pc pathContext) []string {
	if !w.glob {
		return []string{w.value}
	}
	pattern := w.value
	full := pattern
	if strings.HasPrefix(pattern, "~/") {
		full = filepath.Join(string(pc.root), pattern[2:])
	} else if !filepath.IsAbs(pattern) {
		full = filepath.Join(pc.cwd, pattern)
	}
	matches, err := filepath.Glob(full)
	if err != nil || len(matches) == 0 {
		return []string{w.value}
	}

	hiddenOK := strings.HasPrefix(filepath.Base(pattern), ".")
	var out []string
	for _, m := range matches {
		base := filepath.Base(m)
		if base == sandbox.MarkerFile || (strings.HasPrefix(base, ".") && !hiddenOK) {
			continue
		}
		if !globMatchInside(m, pc) {
			continue
		}
		if filepath.IsAbs(pattern) || strings.HasPrefix(pattern, "~/") {
			out = append(out, m)
			continue
		}
		rel, err := filepath.Rel(pc.cwd, m)
		if err != nil {
			rel = m
		}
		out = append(out, rel)
	}
	if len(out) == 0 {
		return []string{w.value}
	}
	return out
}

// globMatchInside reports whether the directory holding the absolute match
// m resolves inside the root. The entry itself is not followed, so a
// symlink inside the root still matches by name.
func globMatchInside(m string, pc pathContext) bool {
	dir, err := sandbox.ResolveIn(pc.root, pc.cwd, filepath.Dir(m))
	if err != nil {
		return false
	}
	return pc.root.Contains(filepath.Join(dir, filepath.Base(m)))
}

func checkRootOperands(rule rootRule, root sandbox.Root, paths, args []string, targetFlag bool) error {
	if rule == rootAllowed {
		return nil
	}
	limit := len(paths)
	if rule == rootForbiddenExceptLast && !targetFlag && limit > 1 {
		limit--
	}
	for i := 0; i < limit; i++ {
		if paths[i] == string(root) {
			return &PathEscapeError{Arg: args[i], Reason: "refers to the sandbox root itself"}
		}
	}
	return nil
}

func isFlag(v string) bool {
	return len(v) > 1 && v[0] == '-'
}

func flagName(v string) string {
	name, _, _ := strings.Cut(v, "=")
	if !strings.HasPrefix(name, "--") && len(name) > 2 {
		return name[:2]
	}
	return name
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name || strings.HasPrefix(a, name+"=") {
			return true
		}
	}
	return false
}
