// Package lesson defines the curriculum and the progression state machine
// that walks a learner through it.
//
// A Catalog holds immutable lessons, each an ordered list of challenges.
// A Tracker records where a learner is: which lessons are complete, which
// challenge of the active lesson is current, and whether a lesson is
// unlocked by its prerequisite.
package lesson

import (
	"fmt"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/sandbox"
	"github.com/jkaninda/shellguide/internal/validator"
)

// Tier is a challenge difficulty from 1 to 3.
type Tier int

const (
	TierBasic    Tier = 1
	TierChained  Tier = 2
	TierWorkflow Tier = 3
)

// Valid reports whether t is in range.
func (t Tier) Valid() bool { return t >= TierBasic && t <= TierWorkflow }

// Operators returns the operators a tier enables. Tier 2 and above allow
// chaining with "&&".
func (t Tier) Operators() executor.OperatorSet {
	if t >= TierChained {
		return executor.Operators(executor.OpAnd)
	}
	return nil
}

// Mastery is the cheat sheet entry a challenge awards.
type Mastery struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Challenge is one task inside a lesson. It must not be modified once it
// is part of a Catalog.
type Challenge struct {
	ID            string
	Prompt        string
	Hint          string
	Teaching      string
	Expected      string
	GUIEquivalent string
	Layout        sandbox.Layout
	Validator     *validator.Validator
	Tier          Tier
	// ExtraOperators are enabled on top of what the tier allows.
	ExtraOperators executor.OperatorSet
	Mastery        *Mastery
}

// Operators returns every operator the challenge permits.
func (c *Challenge) Operators() executor.OperatorSet {
	return c.Tier.Operators().Union(c.ExtraOperators)
}

func (c *Challenge) validate() error {
	if c.ID == "" {
		return fmt.Errorf("challenge id is required")
	}
	if c.Prompt == "" {
		return fmt.Errorf("challenge %s: prompt is required", c.ID)
	}
	if c.Validator == nil {
		return fmt.Errorf("challenge %s: validator is required", c.ID)
	}
	if !c.Tier.Valid() {
		return fmt.Errorf("challenge %s: tier %d out of range 1-3", c.ID, c.Tier)
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("challenge %s: %w", c.ID, err)
	}
	return nil
}

// Lesson is an ordered group of challenges.
type Lesson struct {
	ID          string
	Title       string
	Description string
	Category    string
	// Requires names the lesson that must be complete first.
	Requires   string
	Challenges []*Challenge
}

// Challenge returns the challenge at index i.
func (l *Lesson) Challenge(i int) (*Challenge, bool) {
	if i < 0 || i >= len(l.Challenges) {
		return nil, false
	}
	return l.Challenges[i], true
}

func (l *Lesson) validate() error {
	if l.ID == "" {
		return fmt.Errorf("lesson id is required")
	}
	if l.Title == "" {
		return fmt.Errorf("lesson %s: title is required", l.ID)
	}
	if len(l.Challenges) == 0 {
		return fmt.Errorf("lesson %s: at least one challenge is required", l.ID)
	}
	seen := make(map[string]bool, len(l.Challenges))
	for _, c := range l.Challenges {
		if err := c.validate(); err != nil {
			return fmt.Errorf("lesson %s: %w", l.ID, err)
		}
		if seen[c.ID] {
			return fmt.Errorf("lesson %s: duplicate challenge id %q", l.ID, c.ID)
		}
		seen[c.ID] = true
	}
	return nil
}
