// Package validator decides whether an attempt satisfied a challenge.
//
// A Validator holds a fixed set of strategies and consults them in a fixed
// priority order no matter how they were declared: exact text, accepted
// alternatives, warned alternatives, effect on the sandbox, then known
// mistakes. The first strategy that recognizes the attempt produces the
// Feedback. Evaluation is pure: it only reads the attempt.
package validator

import (
	"sort"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/sandbox"
)

// Attempt is everything known about one submitted command.
type Attempt struct {
	Command string
	Before  sandbox.State
	After   sandbox.State
	Result  *executor.Result
}

// Validator evaluates attempts for one challenge.
type Validator struct {
	strategies []Strategy
}

// New builds a Validator. The strategies are reordered by priority.
func New(strategies ...Strategy) *Validator {
	ordered := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].rank() < ordered[j].rank() })
	return &Validator{strategies: ordered}
}

// Evaluate classifies the attempt. Attempts the executor refused are
// BLOCKED and never reach the strategies.
func (v *Validator) Evaluate(a Attempt) Feedback {
	if a.Result.Refused() {
		msg := msgBlocked
		if a.Result.Status == executor.StatusRejected {
			msg = msgRejected
		}
		return Feedback{Kind: KindBlocked, Message: msg, Explanation: a.Result.Reason}
	}

	normalized := Normalize(a.Command)
	for _, s := range v.strategies {
		if fb, ok := s.evaluate(a, normalized); ok {
			return fb
		}
	}
	return generic(a)
}

func generic(a Attempt) Feedback {
	if a.Result != nil && a.Result.Status == executor.StatusFailure {
		return Feedback{
			Kind:        KindIncorrect,
			Message:     msgTryAgain,
			Explanation: "The command failed: " + a.Result.Reason,
		}
	}
	if !a.Before.Equal(a.After) {
		return Feedback{
			Kind:        KindIncorrect,
			Message:     msgNoEffect,
			Explanation: "The command changed the sandbox, but not in the way this challenge asks for.",
		}
	}
	return Feedback{
		Kind:        KindIncorrect,
		Message:     msgTryAgain,
		Explanation: "That isn't what this challenge is looking for.",
	}
}
