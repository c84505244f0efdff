package lesson

import (
	"errors"
	"fmt"
)

// ErrUnknownLesson is returned for lesson ids not in the catalog.
var ErrUnknownLesson = errors.New("unknown lesson")

// Catalog is a validated, ordered set of lessons.
type Catalog struct {
	lessons []*Lesson
	byID    map[string]*Lesson
}

// NewCatalog validates lessons and builds a Catalog. Lesson ids must be
// unique, prerequisites must exist and must not form a cycle.
func NewCatalog(lessons ...*Lesson) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Lesson, len(lessons))}
	for _, l := range lessons {
		if err := l.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate lesson id %q", l.ID)
		}
		c.byID[l.ID] = l
		c.lessons = append(c.lessons, l)
	}

	for _, l := range c.lessons {
		if l.Requires == "" {
			continue
		}
		if _, ok := c.byID[l.Requires]; !ok {
			return nil, fmt.Errorf("lesson %s requires unknown lesson %q", l.ID, l.Requires)
		}
	}
	for _, l := range c.lessons {
		seen := map[string]bool{l.ID: true}
		for next := l.Requires; next != ""; next = c.byID[next].Requires {
			if seen[next] {
				return nil, fmt.Errorf("lesson %s: prerequisite cycle through %q", l.ID, next)
			}
			seen[next] = true
		}
	}
	return c, nil
}

// Lessons returns the lessons in catalog order.
func (c *Catalog) Lessons() []*Lesson {
	out := make([]*Lesson, len(c.lessons))
	copy(out, c.lessons)
	return out
}

// Lesson looks up a lesson by id.
func (c *Catalog) Lesson(id string) (*Lesson, error) {
	l, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLesson, id)
	}
	return l, nil
}

// Len returns the number of lessons.
func (c *Catalog) Len() int { return len(c.lessons) }

// Extend returns a catalog with lessons appended. A lesson whose id is
// already present replaces the existing one in place.
func (c *Catalog) Extend(lessons ...*Lesson) (*Catalog, error) {
	replaced := make(map[string]*Lesson, len(lessons))
	for _, l := range lessons {
		replaced[l.ID] = l
	}
	merged := make([]*Lesson, 0, len(c.lessons)+len(lessons))
	for _, l := range c.lessons {
		if r, ok := replaced[l.ID]; ok {
			merged = append(merged, r)
			delete(replaced, l.ID)
			continue
		}
		merged = append(merged, l)
	}
	for _, l := range lessons {
		if _, ok := replaced[l.ID]; ok {
			merged = append(merged, l)
			delete(replaced, l.ID)
		}
	}
	return NewCatalog(merged...)
}
