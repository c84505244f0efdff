package executor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyCommand is returned for blank input.
	ErrEmptyCommand = errors.New("empty command")

	// ErrInterrupted marks a step stopped by the caller rather than by its
	// own timeout.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrNotFound marks an allowlisted program missing from the host.
	ErrNotFound = errors.New("command not found")
)

// BlockedOperatorError reports a shell operator or construct that is not
// permitted for the current request.
type BlockedOperatorError struct {
	Operator string
}

func (e *BlockedOperatorError) Error() string {
	return fmt.Sprintf("operator %q is not allowed here", e.Operator)
}

// DisallowedCommandError reports a program outside the allowlist, or an
// allowlisted program used with a forbidden flag.
type DisallowedCommandError struct {
	Command string
	Flag    string
	Reason  string
}

func (e *DisallowedCommandError) Error() string {
	if e.Flag != "" {
		msg := fmt.Sprintf("%s %s is not allowed", e.Command, e.Flag)
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
		return msg
	}
	if e.Reason != "" {
		return fmt.Sprintf("command %q is not allowed: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("command %q is not allowed", e.Command)
}

// PathEscapeError reports an argument that resolves outside the sandbox
// root, or that cannot be classified safely.
type PathEscapeError struct {
	Arg    string
	Reason string
}

func (e *PathEscapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("argument %q rejected: %s", e.Arg, e.Reason)
	}
	return fmt.Sprintf("argument %q points outside the sandbox", e.Arg)
}

// ExecutionTimeoutError reports a step killed after exceeding its time limit.
type ExecutionTimeoutError struct {
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("command timed out (%s limit)", e.Timeout)
}

// ParseError wraps input the shell parser could not read.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "cannot parse command: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
