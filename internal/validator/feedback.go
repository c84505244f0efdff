package validator

import (
	"fmt"
	"strings"
)

// Kind classifies an attempt.
type Kind int

const (
	KindIncorrect Kind = iota
	KindCorrect
	KindAcceptable
	KindBlocked
)

// String returns the upper-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCorrect:
		return "CORRECT"
	case KindAcceptable:
		return "ACCEPTABLE"
	case KindIncorrect:
		return "INCORRECT"
	case KindBlocked:
		return "BLOCKED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CORRECT":
		return KindCorrect, nil
	case "ACCEPTABLE":
		return KindAcceptable, nil
	case "INCORRECT":
		return KindIncorrect, nil
	case "BLOCKED":
		return KindBlocked, nil
	}
	return KindIncorrect, fmt.Errorf("unknown feedback kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Feedback is the verdict on one attempt.
type Feedback struct {
	Kind            Kind   `json:"kind"`
	Message         string `json:"message"`
	Explanation     string `json:"explanation,omitempty"`
	AttemptedEffect string `json:"attempted_effect,omitempty"`
	Suggestion      string `json:"suggestion,omitempty"`
}

// Advances reports whether the attempt completes the challenge.
func (f Feedback) Advances() bool {
	return f.Kind == KindCorrect || f.Kind == KindAcceptable
}

const (
	msgCorrect    = "Correct!"
	msgAcceptable = "That works!"
	msgMistake    = "Not quite right."
	msgTryAgain   = "Not quite. Try again!"
	msgNoEffect   = "That didn't have the expected effect. Try again!"
	msgBlocked    = "That command isn't allowed here."
	msgRejected   = "That command was stopped before it ran."
)
