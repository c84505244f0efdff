package executor

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// OpAnd is the only operator a request can enable.
const OpAnd = "&&"

// word is one argument after quote removal.
type word struct {
	value  string
	quoted bool // at least one part was quoted
	glob   bool // unquoted glob metacharacters present
}

// simpleCommand is a single program invocation from the input line.
type simpleCommand struct {
	text  string
	words []word
}

// script is a parsed line: one command, or several joined by &&.
type script struct {
	commands []simpleCommand
	chained  bool
}

// parse reads line with a bash parser and flattens it into simple commands.
// Any construct other than plain commands joined by && yields a
// BlockedOperatorError. Whether && itself is permitted is decided by the
// caller.
func parse(line string) (*script, error) {
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyCommand
	}
	f, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		if op := rawOperator(line); op != "" {
			return nil, &BlockedOperatorError{Operator: op}
		}
		return nil, &ParseError{Err: err}
	}
	switch len(f.Stmts) {
	case 0:
		return nil, ErrEmptyCommand
	case 1:
	default:
		return nil, &BlockedOperatorError{Operator: ";"}
	}

	s := &script{}
	if err := s.addStmt(line, f.Stmts[0]); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *script) addStmt(line string, st *syntax.Stmt) error {
	switch {
	case st.Background:
		return &BlockedOperatorError{Operator: "&"}
	case st.Coprocess:
		return &BlockedOperatorError{Operator: "coproc"}
	case st.Negated:
		return &BlockedOperatorError{Operator: "!"}
	case len(st.Redirs) > 0:
		return &BlockedOperatorError{Operator: st.Redirs[0].Op.String()}
	case st.Semicolon.IsValid():
		return &BlockedOperatorError{Operator: ";"}
	}

	switch c := st.Cmd.(type) {
	case *syntax.BinaryCmd:
		if c.Op != syntax.AndStmt {
			return &BlockedOperatorError{Operator: c.Op.String()}
		}
		s.chained = true
		if err := s.addStmt(line, c.X); err != nil {
			return err
		}
		return s.addStmt(line, c.Y)
	case *syntax.CallExpr:
		return s.addCall(line, st, c)
	case nil:
		return ErrEmptyCommand
	default:
		return &BlockedOperatorError{Operator: compoundName(c)}
	}
}

func (s *script) addCall(line string, st *syntax.Stmt, c *syntax.CallExpr) error {
	if len(c.Assigns) > 0 {
		return &BlockedOperatorError{Operator: "="}
	}
	if len(c.Args) == 0 {
		return ErrEmptyCommand
	}
	cmd := simpleCommand{text: sourceText(line, st)}
	for _, w := range c.Args {
		wd, err := convertWord(w)
		if err != nil {
			return err
		}
		cmd.words = append(cmd.words, wd)
	}
	s.commands = append(s.commands, cmd)
	return nil
}

func convertWord(w *syntax.Word) (word, error) {
	var (
		b   strings.Builder
		out word
	)
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			v, glob := unescapeUnquoted(p.Value)
			b.WriteString(v)
			out.glob = out.glob || glob
		case *syntax.SglQuoted:
			if p.Dollar {
				return word{}, &BlockedOperatorError{Operator: "$'"}
			}
			out.quoted = true
			b.WriteString(p.Value)
		case *syntax.DblQuoted:
			if p.Dollar {
				return word{}, &BlockedOperatorError{Operator: `$"`}
			}
			out.quoted = true
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return word{}, expansionError(inner)
				}
				b.WriteString(unescapeDouble(lit.Value))
			}
		default:
			return word{}, expansionError(part)
		}
	}
	out.value = b.String()
	return out, nil
}

func expansionError(part syntax.WordPart) error {
	op := "$"
	switch p := part.(type) {
	case *syntax.CmdSubst:
		op = "$("
		if p.Backquotes {
			op = "`"
		}
	case *syntax.ArithmExp:
		op = "$(("
	case *syntax.ProcSubst:
		op = p.Op.String()
	case *syntax.ExtGlob:
		op = p.Op.String()
	case *syntax.BraceExp:
		op = "{"
	}
	return &BlockedOperatorError{Operator: op}
}

func compoundName(cmd syntax.Command) string {
	switch c := cmd.(type) {
	case *syntax.Subshell:
		return "("
	case *syntax.Block:
		return "{"
	case *syntax.IfClause:
		return "if"
	case *syntax.WhileClause:
		if c.Until {
			return "until"
		}
		return "while"
	case *syntax.ForClause:
		if c.Select {
			return "select"
		}
		return "for"
	case *syntax.CaseClause:
		return "case"
	case *syntax.ArithmCmd:
		return "(("
	case *syntax.TestClause:
		return "[["
	case *syntax.DeclClause:
		if c.Variant != nil {
			return c.Variant.Value
		}
		return "declare"
	case *syntax.LetClause:
		return "let"
	case *syntax.TimeClause:
		return "time"
	case *syntax.CoprocClause:
		return "coproc"
	case *syntax.FuncDecl:
		return "function"
	default:
		return fmt.Sprintf("%T", cmd)
	}
}

// sourceText returns the original text of a statement.
func sourceText(line string, st *syntax.Stmt) string {
	start, end := int(st.Pos().Offset()), int(st.End().Offset())
	if start < 0 || end > len(line) || start >= end {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(line[start:end])
}

// unescapeUnquoted removes backslash escapes from an unquoted literal and
// reports whether an unescaped glob metacharacter was seen.
func unescapeUnquoted(raw string) (string, bool) {
	var (
		b    strings.Builder
		glob bool
	)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' {
			if i+1 < len(raw) {
				i++
				if raw[i] != '\n' {
					b.WriteByte(raw[i])
				}
			}
			continue
		}
		if c == '*' || c == '?' || c == '[' {
			glob = true
		}
		b.WriteByte(c)
	}
	return b.String(), glob
}

// unescapeDouble applies the escapes recognized inside double quotes.
func unescapeDouble(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			switch raw[i+1] {
			case '"', '\\', '$', '`':
				i++
				b.WriteByte(raw[i])
				continue
			case '\n':
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// OperatorSet lists the operators enabled for a request beyond plain
// commands. Only OpAnd has any effect.
type OperatorSet []string

// Operators builds an OperatorSet.
func Operators(ops ...string) OperatorSet { return OperatorSet(ops) }

// Allows reports whether op is enabled.
func (s OperatorSet) Allows(op string) bool {
	for _, o := range s {
		if o == op {
			return true
		}
	}
	return false
}

// Union returns the operators enabled in either set.
func (s OperatorSet) Union(o OperatorSet) OperatorSet {
	out := append(OperatorSet{}, s...)
	for _, op := range o {
		if !out.Allows(op) {
			out = append(out, op)
		}
	}
	return out
}

// rawOperators are looked for in lines the parser rejects, in this order.
var rawOperators = []string{"$(", "`", "|", ";", ">", "<", "&"}

// rawOperator returns the first blocked operator that appears anywhere in
// line. "&&" is skipped since it may be allowed.
func rawOperator(line string) string {
	text := strings.ReplaceAll(line, "&&", "")
	for _, op := range rawOperators {
		if strings.Contains(text, op) {
			return op
		}
	}
	return ""
}
