package validator

import (
	"testing"

	"github.com/jkaninda/shellguide/internal/executor"
	"github.com/jkaninda/shellguide/internal/sandbox"
)

func state(files []string, dirs ...string) sandbox.State {
	return sandbox.NewState("", files, dirs)
}

func success() *executor.Result { return &executor.Result{Status: executor.StatusSuccess} }

func failure(reason string) *executor.Result {
	return &executor.Result{Status: executor.StatusFailure, Reason: reason}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  ls   -la  ", "ls -la"},
		{"cd ./project/", "cd project"},
		{"cp -r src/ ./backup/", "cp -r src backup"},
		{"cd /", "cd /"},
		{"cd ./", "cd ."},
		{"ls\t.", "ls ."},
		{"./ls", "./ls"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	for _, k := range []Kind{KindCorrect, KindAcceptable, KindIncorrect, KindBlocked} {
		parsed, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", k.String(), err)
		}
		if parsed != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), parsed, k)
		}
	}
	if _, err := ParseKind("maybe"); err == nil {
		t.Error("ParseKind accepted an unknown kind")
	}
}

func deleteNotes() *Validator {
	return New(
		CommonMistakes{
			{Command: "rm -rf notes.txt", Explanation: "-rf is for directories.", Suggestion: "rm notes.txt"},
		},
		Effect{Predicate: FileRemoved("notes.txt"), Canonical: []string{"rm notes.txt"}},
		Warned{Command: "rm -f notes.txt", Caution: "-f silences errors."},
	)
}

func TestEvaluate(t *testing.T) {
	withNotes := state([]string{"notes.txt", "todo.txt"})
	withoutNotes := state([]string{"todo.txt"})

	tests := []struct {
		name       string
		v          *Validator
		attempt    Attempt
		want       Kind
		suggestion string
	}{
		{
			name:    "canonical effect",
			v:       deleteNotes(),
			attempt: Attempt{Command: "rm notes.txt", Before: withNotes, After: withoutNotes, Result: success()},
			want:    KindCorrect,
		},
		{
			name:    "canonical with ./ prefix",
			v:       deleteNotes(),
			attempt: Attempt{Command: "rm ./notes.txt", Before: withNotes, After: withoutNotes, Result: success()},
			want:    KindCorrect,
		},
		{
			name:    "warned form",
			v:       deleteNotes(),
			attempt: Attempt{Command: "rm -f notes.txt", Before: withNotes, After: withoutNotes, Result: success()},
			want:    KindAcceptable,
		},
		{
			name:       "mistake declared first still ranks after effect",
			v:          deleteNotes(),
			attempt:    Attempt{Command: "rm -rf notes.txt", Before: withNotes, After: withoutNotes, Result: success()},
			want:       KindAcceptable,
			suggestion: "",
		},
		{
			name:    "effect by another command",
			v:       deleteNotes(),
			attempt: Attempt{Command: "rm -i notes.txt", Before: withNotes, After: withoutNotes, Result: success()},
			want:    KindAcceptable,
		},
		{
			name:    "no effect",
			v:       deleteNotes(),
			attempt: Attempt{Command: "rm todo.txt", Before: withNotes, After: state([]string{"notes.txt"}), Result: success()},
			want:    KindIncorrect,
		},
		{
			name: "blocked never evaluated",
			v:    deleteNotes(),
			attempt: Attempt{
				Command: "rm notes.txt; ls",
				Before:  withNotes,
				After:   withNotes,
				Result:  &executor.Result{Status: executor.StatusBlocked, Reason: `operator ";" is not allowed here`},
			},
			want: KindBlocked,
		},
		{
			name: "rejected maps to blocked",
			v:    deleteNotes(),
			attempt: Attempt{
				Command: "rm ../../etc/passwd",
				Before:  withNotes,
				After:   withNotes,
				Result:  &executor.Result{Status: executor.StatusRejected},
			},
			want: KindBlocked,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fb := tc.v.Evaluate(tc.attempt)
			if fb.Kind != tc.want {
				t.Fatalf("Kind = %v, want %v (message %q)", fb.Kind, tc.want, fb.Message)
			}
			if fb.Suggestion != tc.suggestion {
				t.Errorf("Suggestion = %q, want %q", fb.Suggestion, tc.suggestion)
			}
		})
	}
}

func TestEvaluateMistakeSuggestion(t *testing.T) {
	v := New(
		Effect{Predicate: DirCreated("backup"), Canonical: []string{"cp -r project backup", "cp -R project backup"}},
		CommonMistakes{
			{
				Command:     "cp project backup",
				Explanation: "Without -r, cp refuses to copy directories.",
				Effect:      "cp skipped the directory and copied nothing.",
				Suggestion:  "cp -r project backup",
			},
			{
				Command:    "mv project backup",
				Effect:     "mv renamed the original instead of copying it.",
				Suggestion: "cp -r project backup",
			},
		},
	)
	before := state(nil, "project")

	fb := v.Evaluate(Attempt{
		Command: "cp project backup",
		Before:  before,
		After:   before,
		Result:  failure("cp: -r not specified; omitting directory 'project'"),
	})
	if fb.Kind != KindIncorrect {
		t.Fatalf("Kind = %v, want INCORRECT", fb.Kind)
	}
	if fb.Suggestion != "cp -r project backup" {
		t.Errorf("Suggestion = %q", fb.Suggestion)
	}
	if fb.AttemptedEffect == "" {
		t.Error("AttemptedEffect is empty")
	}

	fb = v.Evaluate(Attempt{
		Command: "cp -R project backup/",
		Before:  before,
		After:   state(nil, "project", "backup"),
		Result:  success(),
	})
	if fb.Kind != KindCorrect {
		t.Errorf("cp -R: Kind = %v, want CORRECT", fb.Kind)
	}
}

func TestEvaluateTextStrategiesNeedSuccess(t *testing.T) {
	v := New(ExactMatch{Command: "cat notes.txt"})
	fb := v.Evaluate(Attempt{Command: "cat notes.txt", Result: failure("cat: notes.txt: No such file or directory")})
	if fb.Kind != KindIncorrect {
		t.Fatalf("Kind = %v, want INCORRECT", fb.Kind)
	}
	if fb.Message != msgTryAgain {
		t.Errorf("Message = %q", fb.Message)
	}

	fb = v.Evaluate(Attempt{Command: "cat  notes.txt", Result: success()})
	if fb.Kind != KindCorrect {
		t.Errorf("Kind = %v, want CORRECT", fb.Kind)
	}
}

func TestEvaluateAnyOf(t *testing.T) {
	v := New(AnyOf{Commands: []string{"ls -a", "ls -la", "ls -al"}})
	for _, cmd := range []string{"ls -a", "ls -al", " ls  -la "} {
		if fb := v.Evaluate(Attempt{Command: cmd, Result: success()}); fb.Kind != KindCorrect {
			t.Errorf("%q: Kind = %v, want CORRECT", cmd, fb.Kind)
		}
	}
	if fb := v.Evaluate(Attempt{Command: "ls", Result: success()}); fb.Kind != KindIncorrect {
		t.Errorf("ls: Kind = %v, want INCORRECT", fb.Kind)
	}
}

func TestPredicates(t *testing.T) {
	before := state([]string{"a.txt"}, "src")
	after := state([]string{"b.txt"}, "src", "out")

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"file exists", FileExists("b.txt"), true},
		{"file absent", FileAbsent("a.txt"), true},
		{"file created", FileCreated("b.txt"), true},
		{"file removed", FileRemoved("a.txt"), true},
		{"file removed not present before", FileRemoved("b.txt"), false},
		{"dir exists", DirExists("src"), true},
		{"dir created", DirCreated("out"), true},
		{"dir created already there", DirCreated("src"), false},
		{"dir removed", DirRemoved("src"), false},
		{"dir absent", DirAbsent("tmp"), true},
		{"all", All(FileCreated("b.txt"), DirCreated("out")), true},
		{"all one false", All(FileCreated("b.txt"), DirRemoved("src")), false},
		{"any", Any(DirRemoved("src"), FileRemoved("a.txt")), true},
		{"any empty", Any(), false},
		{"not", Not(FileExists("a.txt")), true},
		{"unchanged", Unchanged(), false},
		{"func", PredicateFunc(func(b, a sandbox.State) bool { return a.Len() > b.Len() }), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Holds(before, after); got != tc.want {
				t.Errorf("%s.Holds = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
}
