// Package ledger keeps the cheat sheet of commands a learner has mastered.
//
// The cheat sheet only observes progression: entries are added after a
// challenge is passed and never influence validation.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Entry is one mastered command.
type Entry struct {
	Command     string `json:"command"`
	Description string `json:"description"`
	LessonID    string `json:"lesson_id"`
	Category    string `json:"category"`
}

// Group is the entries of one category.
type Group struct {
	Category string  `json:"category"`
	Entries  []Entry `json:"entries"`
}

// Store persists cheat sheet entries per learner. SaveEntry upserts by
// learner and command.
type Store interface {
	SaveEntry(ctx context.Context, learner string, entry Entry) error
	LoadEntries(ctx context.Context, learner string) ([]Entry, error)
}

// CheatSheet is an ordered set of entries keyed by command. Safe for
// concurrent use.
type CheatSheet struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]Entry
}

// New returns an empty cheat sheet.
func New() *CheatSheet {
	return &CheatSheet{entries: make(map[string]Entry)}
}

// Add records e. A command seen before keeps its position and takes the
// new details. Entries without a command are ignored. Reports whether the
// command is new.
func (c *CheatSheet) Add(e Entry) bool {
	if e.Command == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, seen := c.entries[e.Command]
	if !seen {
		c.order = append(c.order, e.Command)
	}
	c.entries[e.Command] = e
	return !seen
}

// Has reports whether command is on the sheet.
func (c *CheatSheet) Has(command string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[command]
	return ok
}

// Len returns the number of entries.
func (c *CheatSheet) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Entries returns the entries in insertion order.
func (c *CheatSheet) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.order))
	for _, cmd := range c.order {
		out = append(out, c.entries[cmd])
	}
	return out
}

// ByCategory groups the entries. Groups appear in the order their first
// entry was added.
func (c *CheatSheet) ByCategory() []Group {
	var groups []Group
	index := make(map[string]int)
	for _, e := range c.Entries() {
		i, ok := index[e.Category]
		if !ok {
			i = len(groups)
			index[e.Category] = i
			groups = append(groups, Group{Category: e.Category})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	return groups
}

// Format renders the sheet for a terminal.
func (c *CheatSheet) Format() string {
	groups := c.ByCategory()
	if len(groups) == 0 {
		return "Your cheat sheet is empty. Pass a challenge to add a command.\n"
	}
	width := 0
	for _, e := range c.Entries() {
		width = max(width, len(e.Command))
	}
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		title := g.Category
		if title == "" {
			title = "Other"
		}
		fmt.Fprintf(&b, "%s\n", title)
		for _, e := range g.Entries {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, e.Command, e.Description)
		}
	}
	return b.String()
}

// Load builds a cheat sheet from the entries stored for learner.
func Load(ctx context.Context, store Store, learner string) (*CheatSheet, error) {
	sheet := New()
	if store == nil {
		return sheet, nil
	}
	entries, err := store.LoadEntries(ctx, learner)
	if err != nil {
		return nil, fmt.Errorf("loading cheat sheet for %s: %w", learner, err)
	}
	for _, e := range entries {
		sheet.Add(e)
	}
	return sheet, nil
}
