package validator

import (
	"fmt"
	"strings"

	"github.com/jkaninda/shellguide/internal/executor"
)

// Evaluation order of the strategy tiers.
const (
	rankExact = iota
	rankAnyOf
	rankWarned
	rankEffect
	rankMistake
)

// Strategy is one way of recognizing an attempt. The set is closed: only
// the types in this package implement it.
type Strategy interface {
	rank() int
	evaluate(a Attempt, normalized string) (Feedback, bool)
}

// ExactMatch accepts one exact command after normalization.
type ExactMatch struct {
	Command     string
	Explanation string
}

func (ExactMatch) rank() int { return rankExact }

func (s ExactMatch) evaluate(a Attempt, normalized string) (Feedback, bool) {
	if !ran(a) || normalized != Normalize(s.Command) {
		return Feedback{}, false
	}
	return Feedback{Kind: KindCorrect, Message: msgCorrect, Explanation: s.Explanation}, true
}

// AnyOf accepts any of several equivalent commands.
type AnyOf struct {
	Commands    []string
	Explanation string
}

func (AnyOf) rank() int { return rankAnyOf }

func (s AnyOf) evaluate(a Attempt, normalized string) (Feedback, bool) {
	if !ran(a) || !matchesAny(normalized, s.Commands) {
		return Feedback{}, false
	}
	return Feedback{Kind: KindCorrect, Message: msgCorrect, Explanation: s.Explanation}, true
}

// Warned accepts a command that works but carries a risk worth knowing.
type Warned struct {
	Command string
	Caution string
}

func (Warned) rank() int { return rankWarned }

func (s Warned) evaluate(a Attempt, normalized string) (Feedback, bool) {
	if !ran(a) || normalized != Normalize(s.Command) {
		return Feedback{}, false
	}
	return Feedback{Kind: KindAcceptable, Message: msgAcceptable, Explanation: s.Caution}, true
}

// Effect accepts any command that leaves the sandbox in the wanted state.
// When Canonical forms are given, a working command that is none of them
// is only ACCEPTABLE.
type Effect struct {
	Predicate   Predicate
	Canonical   []string
	Explanation string
}

func (Effect) rank() int { return rankEffect }

func (s Effect) evaluate(a Attempt, normalized string) (Feedback, bool) {
	if s.Predicate == nil || !s.Predicate.Holds(a.Before, a.After) {
		return Feedback{}, false
	}
	if len(s.Canonical) == 0 || matchesAny(normalized, s.Canonical) {
		return Feedback{Kind: KindCorrect, Message: msgCorrect, Explanation: s.Explanation}, true
	}
	explanation := fmt.Sprintf("It did the job. The usual way to write it is: %s", s.Canonical[0])
	if s.Explanation != "" {
		explanation = s.Explanation + " " + explanation
	}
	return Feedback{Kind: KindAcceptable, Message: msgAcceptable, Explanation: explanation}, true
}

// Mistake is a known wrong-but-plausible attempt. It matches on text,
// on effect, or on both when both are set.
type Mistake struct {
	Command     string
	Predicate   Predicate
	Explanation string
	Effect      string
	Suggestion  string
}

func (m Mistake) matches(a Attempt, normalized string) bool {
	if m.Command == "" && m.Predicate == nil {
		return false
	}
	if m.Command != "" && normalized != Normalize(m.Command) {
		return false
	}
	if m.Predicate != nil && !m.Predicate.Holds(a.Before, a.After) {
		return false
	}
	return true
}

// CommonMistakes diagnoses known wrong attempts.
type CommonMistakes []Mistake

func (CommonMistakes) rank() int { return rankMistake }

func (s CommonMistakes) evaluate(a Attempt, normalized string) (Feedback, bool) {
	for _, m := range s {
		if m.matches(a, normalized) {
			return Feedback{
				Kind:            KindIncorrect,
				Message:         msgMistake,
				Explanation:     m.Explanation,
				AttemptedEffect: m.Effect,
				Suggestion:      m.Suggestion,
			}, true
		}
	}
	return Feedback{}, false
}

// ran reports whether the attempt executed and exited cleanly.
func ran(a Attempt) bool {
	return a.Result == nil || a.Result.Status == executor.StatusSuccess
}

func matchesAny(normalized string, commands []string) bool {
	for _, c := range commands {
		if normalized == Normalize(c) {
			return true
		}
	}
	return false
}

// Normalize canonicalizes a command line for text comparison: surrounding
// whitespace is trimmed, inner runs collapse to one space, a leading "./"
// is dropped from arguments and a trailing "/" from arguments longer than
// one character.
func Normalize(cmd string) string {
	fields := strings.Fields(cmd)
	for i := 1; i < len(fields); i++ {
		f := fields[i]
		if len(f) > 2 && strings.HasPrefix(f, "./") {
			f = f[2:]
		}
		if len(f) > 1 && strings.HasSuffix(f, "/") {
			f = strings.TrimRight(f, "/")
			if f == "" {
				f = "/"
			}
		}
		fields[i] = f
	}
	return strings.Join(fields, " ")
}
