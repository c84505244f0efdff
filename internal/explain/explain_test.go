package explain

import (
	"errors"
	"strings"
	"testing"

	"github.com/jkaninda/shellguide/internal/executor"
)

func TestLookup(t *testing.T) {
	c, err := Lookup("rm")
	if err != nil {
		t.Fatalf("Lookup(rm): %v", err)
	}
	if c.Name != "rm" || len(c.Flags) == 0 {
		t.Errorf("Lookup(rm) = %+v", c)
	}
	if _, err := Lookup("sudo"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Lookup(sudo) error = %v, want ErrUnknownCommand", err)
	}
}

func TestEveryAllowedCommandHasReference(t *testing.T) {
	for _, name := range executor.Allowlist() {
		if _, err := Lookup(name); err != nil {
			t.Errorf("%s is allowed but has no reference entry", name)
		}
	}
}

func TestCommandsSorted(t *testing.T) {
	cmds := Commands()
	for i := 1; i < len(cmds); i++ {
		if cmds[i-1].Name >= cmds[i].Name {
			t.Fatalf("Commands() not sorted at %s, %s", cmds[i-1].Name, cmds[i].Name)
		}
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"  mkdir -p a/b", "Make directory"},
		{"frobnicate x", ""},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			got := Summarize(tc.line)
			if tc.want == "" && got != "" {
				t.Errorf("Summarize(%q) = %q, want empty", tc.line, got)
			}
			if !strings.HasPrefix(got, tc.want) {
				t.Errorf("Summarize(%q) = %q, want prefix %q", tc.line, got, tc.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	c, _ := Lookup("cp")
	out := c.Format()
	if !strings.Contains(out, "cp: Copy") || !strings.Contains(out, "-r") {
		t.Errorf("Format() = %q", out)
	}
	stat, _ := Lookup("stat")
	if strings.Contains(stat.Format(), "Flags:") {
		t.Error("stat has no flags section")
	}
}
