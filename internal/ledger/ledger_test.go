package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCheatSheetDeduplicates(t *testing.T) {
	s := New()
	if !s.Add(Entry{Command: "ls", Description: "list", Category: "Looking around"}) {
		t.Fatal("first ls should be new")
	}
	s.Add(Entry{Command: "pwd", Description: "where", Category: "Looking around"})
	if s.Add(Entry{Command: "ls", Description: "list files", Category: "Looking around"}) {
		t.Error("second ls should not be new")
	}
	if s.Add(Entry{Description: "no command"}) {
		t.Error("entry without command should be ignored")
	}

	entries := s.Entries()
	if len(entries) != 2 || s.Len() != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Command != "ls" || entries[0].Description != "list files" {
		t.Errorf("entries[0] = %+v, want updated ls in first position", entries[0])
	}
	if !s.Has("pwd") || s.Has("rm") {
		t.Error("Has() is wrong")
	}
}

func TestByCategory(t *testing.T) {
	s := New()
	s.Add(Entry{Command: "ls", Category: "Looking around"})
	s.Add(Entry{Command: "mkdir", Category: "Files and folders"})
	s.Add(Entry{Command: "pwd", Category: "Looking around"})

	groups := s.ByCategory()
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Category != "Looking around" || len(groups[0].Entries) != 2 {
		t.Errorf("groups[0] = %+v", groups[0])
	}
	if groups[1].Entries[0].Command != "mkdir" {
		t.Errorf("groups[1] = %+v", groups[1])
	}
}

func TestFormat(t *testing.T) {
	if out := New().Format(); !strings.Contains(out, "empty") {
		t.Errorf("empty Format() = %q", out)
	}
	s := New()
	s.Add(Entry{Command: "rm -r <dir>", Description: "Delete a directory", Category: "Files and folders"})
	out := s.Format()
	if !strings.HasPrefix(out, "Files and folders\n") || !strings.Contains(out, "rm -r <dir>  Delete a directory") {
		t.Errorf("Format() = %q", out)
	}
}

type memStore struct {
	entries []Entry
	err     error
}

func (m *memStore) SaveEntry(_ context.Context, _ string, e Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memStore) LoadEntries(context.Context, string) ([]Entry, error) {
	return m.entries, m.err
}

func TestLoad(t *testing.T) {
	store := &memStore{entries: []Entry{{Command: "ls"}, {Command: "ls"}, {Command: "cd"}}}
	s, err := Load(context.Background(), store, "ada")
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	if s, err := Load(context.Background(), nil, "ada"); err != nil || s.Len() != 0 {
		t.Errorf("nil store: %v, %v", s, err)
	}

	boom := errors.New("boom")
	if _, err := Load(context.Background(), &memStore{err: boom}, "ada"); !errors.Is(err, boom) {
		t.Errorf("Load error = %v, want wrapped boom", err)
	}
}
