package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jkaninda/shellguide/internal/sandbox"
)

func TestNew(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "workspace")

	ws, err := New(root)
	if err != nil {
		t.Fatalf("New(%q): %v", root, err)
	}
	if ws.Root != root {
		t.Errorf("Root = %q, want %q", ws.Root, root)
	}

	// Root directory should exist.
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root dir not created: %v", err)
	}
}

func TestDirectoryAccessors(t *testing.T) {
	tmp := t.TempDir()
	ws, err := New(filepath.Join(tmp, "ws"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		fn   func() string
		want string
	}{
		{"SandboxDir", ws.SandboxDir, "sandbox"},
		{"ScratchDir", ws.ScratchDir, "scratch"},
		{"LessonsDir", ws.LessonsDir, "lessons"},
		{"LogsDir", ws.LogsDir, "logs"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.fn()
			expected := filepath.Join(ws.Root, tc.want)
			if got != expected {
				t.Errorf("%s() = %q, want %q", tc.name, got, expected)
			}
			if _, err := os.Stat(got); err != nil {
				t.Errorf("directory not created: %v", err)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	ws, err := New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ws.ConfigPath(), filepath.Join(ws.Root, "config.yaml"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestCleanSandboxRemovesMarkedRoots(t *testing.T) {
	ws, err := New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"s-1", "s-2"} {
		m, err := sandbox.Create(ws.SandboxDir(), name, nil)
		if err != nil {
			t.Fatalf("sandbox.Create: %v", err)
		}
		if err := os.WriteFile(filepath.Join(string(m.Root()), "notes.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	n, err := ws.CleanSandbox()
	if err != nil {
		t.Fatalf("CleanSandbox: %v", err)
	}
	if n != 2 {
		t.Errorf("removed %d roots, want 2", n)
	}
	entries, _ := os.ReadDir(ws.SandboxDir())
	if len(entries) != 0 {
		t.Errorf("sandbox dir not empty after clean: %d entries", len(entries))
	}
}

func TestCleanSandboxKeepsUnmarked(t *testing.T) {
	ws, err := New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(ws.SandboxDir(), "not-a-sandbox")
	if err := os.MkdirAll(stray, 0o750); err != nil {
		t.Fatal(err)
	}

	n, err := ws.CleanSandbox()
	if err == nil {
		t.Fatal("expected an error reporting the kept entry")
	}
	if n != 0 {
		t.Errorf("removed %d roots, want 0", n)
	}
	if _, err := os.Stat(stray); err != nil {
		t.Errorf("unmarked directory was removed: %v", err)
	}
}

func TestCleanSandboxNoop(t *testing.T) {
	ws, err := New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}
	// No sandbox dir at all.
	os.RemoveAll(filepath.Join(ws.Root, "sandbox"))
	if _, err := ws.CleanSandbox(); err != nil {
		t.Fatalf("CleanSandbox on missing dir: %v", err)
	}
	if _, err := ws.CleanScratch(); err != nil {
		t.Fatalf("CleanScratch on missing dir: %v", err)
	}
}

func TestEnsureAll(t *testing.T) {
	ws, err := New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatal(err)
	}

	if err := ws.EnsureAll(); err != nil {
		t.Fatal(err)
	}

	for _, sub := range []string{"sandbox", "scratch", "lessons", "logs"} {
		p := filepath.Join(ws.Root, sub)
		if _, err := os.Stat(p); err != nil {
			t.Errorf("directory %q not created: %v", sub, err)
		}
	}
}

func TestResolveTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	got, err := resolvePath("~/test")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, "test")
	if got != want {
		t.Errorf("resolvePath(~/test) = %q, want %q", got, want)
	}
}
