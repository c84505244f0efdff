package validator

import (
	"fmt"
	"strings"

	"github.com/jkaninda/shellguide/internal/sandbox"
)

// Predicate decides an effect from the snapshots around an attempt.
type Predicate interface {
	Holds(before, after sandbox.State) bool
	String() string
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(before, after sandbox.State) bool

func (f PredicateFunc) Holds(before, after sandbox.State) bool { return f(before, after) }

func (f PredicateFunc) String() string { return "custom" }

type statePredicate struct {
	name string
	path string
	fn   func(before, after sandbox.State, path string) bool
}

func (p statePredicate) Holds(before, after sandbox.State) bool {
	return p.fn(before, after, p.path)
}

func (p statePredicate) String() string { return p.name + "(" + p.path + ")" }

// FileExists holds when path is a file after the attempt.
func FileExists(path string) Predicate {
	return statePredicate{"file_exists", path, func(_, a sandbox.State, p string) bool { return a.HasFile(p) }}
}

// FileAbsent holds when path is not a file after the attempt.
func FileAbsent(path string) Predicate {
	return statePredicate{"file_absent", path, func(_, a sandbox.State, p string) bool { return !a.HasFile(p) }}
}

// FileCreated holds when path became a file during the attempt.
func FileCreated(path string) Predicate {
	return statePredicate{"file_created", path, func(b, a sandbox.State, p string) bool {
		return !b.HasFile(p) && a.HasFile(p)
	}}
}

// FileRemoved holds when path stopped being a file during the attempt.
func FileRemoved(path string) Predicate {
	return statePredicate{"file_removed", path, func(b, a sandbox.State, p string) bool {
		return b.HasFile(p) && !a.HasFile(p)
	}}
}

// DirExists holds when path is a directory after the attempt.
func DirExists(path string) Predicate {
	return statePredicate{"dir_exists", path, func(_, a sandbox.State, p string) bool { return a.HasDir(p) }}
}

// DirAbsent holds when path is not a directory after the attempt.
func DirAbsent(path string) Predicate {
	return statePredicate{"dir_absent", path, func(_, a sandbox.State, p string) bool { return !a.HasDir(p) }}
}

// DirCreated holds when path became a directory during the attempt.
func DirCreated(path string) Predicate {
	return statePredicate{"dir_created", path, func(b, a sandbox.State, p string) bool {
		return !b.HasDir(p) && a.HasDir(p)
	}}
}

// DirRemoved holds when path stopped being a directory during the attempt.
func DirRemoved(path string) Predicate {
	return statePredicate{"dir_removed", path, func(b, a sandbox.State, p string) bool {
		return b.HasDir(p) && !a.HasDir(p)
	}}
}

// Unchanged holds when the attempt left the sandbox as it was.
func Unchanged() Predicate {
	return PredicateFunc(func(b, a sandbox.State) bool { return b.Equal(a) })
}

type combinator struct {
	name  string
	parts []Predicate
	all   bool
}

func (c combinator) Holds(before, after sandbox.State) bool {
	for _, p := range c.parts {
		if p.Holds(before, after) != c.all {
			return !c.all
		}
	}
	return c.all
}

func (c combinator) String() string {
	names := make([]string, len(c.parts))
	for i, p := range c.parts {
		names[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", c.name, strings.Join(names, ", "))
}

// All holds when every part holds. All() holds.
func All(parts ...Predicate) Predicate { return combinator{name: "all", parts: parts, all: true} }

// Any holds when at least one part holds. Any() does not hold.
func Any(parts ...Predicate) Predicate { return combinator{name: "any", parts: parts} }

type negation struct{ p Predicate }

func (n negation) Holds(before, after sandbox.State) bool { return !n.p.Holds(before, after) }

func (n negation) String() string { return "not(" + n.p.String() + ")" }

// Not inverts p.
func Not(p Predicate) Predicate { return negation{p} }
