// Package executor validates and runs learner command lines inside a
// sandbox root.
//
// A line goes through four gates before anything runs: shell parsing with
// operator detection, the program allowlist, path containment for every
// argument, and chain splitting on "&&". A rejected line never executes,
// not even partially. Accepted lines run step by step without a shell;
// cd and pwd are handled in-process against a tracked working directory.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jkaninda/shellguide/internal/sandbox"
)

const (
	// DefaultTimeout bounds a single step.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxOutputBytes caps each of stdout and stderr per step.
	DefaultMaxOutputBytes = 64 << 10
)

// Status is the outcome class of a request or step.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusBlocked  Status = "blocked"
	StatusRejected Status = "rejected"
)

// Runner executes learner commands. Implemented by *Executor and by the
// instrumented wrapper in the observability package.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request is one line of learner input.
type Request struct {
	Line string
	Root sandbox.Root
	// Cwd is relative to Root; "" and "." both mean the root.
	Cwd       string
	Operators OperatorSet
}

// Step is the outcome of one command of a chain.
type Step struct {
	Command   string        `json:"command"`
	Args      []string      `json:"args,omitempty"`
	Status    Status        `json:"status"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Duration  time.Duration `json:"duration"`
	Message   string        `json:"message,omitempty"`
	Err       error         `json:"-"`
}

// Result is the outcome of a whole request.
type Result struct {
	Status Status `json:"status"`
	Steps  []Step `json:"steps"`
	// Reason explains a non-success status in learner terms.
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
	// Cwd is the working directory after the request, relative to the root.
	Cwd string `json:"cwd"`
}

// Succeeded reports whether every step ran and exited zero.
func (r *Result) Succeeded() bool { return r != nil && r.Status == StatusSuccess }

// Refused reports whether the request was stopped before execution.
func (r *Result) Refused() bool {
	return r != nil && (r.Status == StatusBlocked || r.Status == StatusRejected)
}

// Stdout concatenates the stdout of every attempted step.
func (r *Result) Stdout() string {
	var b strings.Builder
	for _, s := range r.Steps {
		b.WriteString(s.Stdout)
	}
	return b.String()
}

// Stderr concatenates the stderr and messages of every attempted step.
func (r *Result) Stderr() string {
	var b strings.Builder
	for _, s := range r.Steps {
		b.WriteString(s.Stderr)
		if s.Message != "" && s.Stderr == "" {
			b.WriteString(s.Message)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Config configures an Executor.
type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int
	Policy         Policy
}

// Executor runs learner command lines. It is safe for concurrent use on
// different roots; callers serialize requests against the same root.
type Executor struct {
	timeout   time.Duration
	maxOutput int
	policy    Policy
	logger    *slog.Logger
}

// New creates an Executor.
func New(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	return &Executor{
		timeout:   timeout,
		maxOutput: maxOutput,
		policy:    cfg.Policy,
		logger:    logger,
	}
}

// Timeout returns the per-step time limit.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// Run validates req.Line and executes it. Safety refusals and command
// failures are reported in the Result; the error return is reserved for
// requests without a root.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Root == "" {
		return nil, errors.New("executor: request has no sandbox root")
	}

	cwd, err := sandbox.ResolveIn(req.Root, string(req.Root), req.Cwd)
	if err != nil {
		cwd = string(req.Root)
	}
	res := &Result{Cwd: relCwd(req.Root, cwd)}

	sc, err := parse(req.Line)
	if err != nil {
		return refuse(res, err), nil
	}
	if sc.chained && !req.Operators.Allows(OpAnd) {
		return refuse(res, &BlockedOperatorError{Operator: OpAnd}), nil
	}

	// Every step is checked before the first one runs. cd is simulated so
	// later steps are checked against the directory they will run in.
	simulated := pathContext{root: req.Root, cwd: cwd}
	for _, c := range sc.commands {
		p, err := e.prepare(c, simulated)
		if err != nil {
			return refuse(res, err), nil
		}
		if p.name == "cd" && p.cdTarget != "" {
			simulated.cwd = p.cdTarget
		}
	}

	for _, c := range sc.commands {
		if ctx.Err() != nil {
			res.Steps = append(res.Steps, Step{
				Command:  c.text,
				Status:   StatusFailure,
				ExitCode: -1,
				Message:  "interrupted",
				Err:      ErrInterrupted,
			})
			break
		}

		// Re-checked against the live filesystem: earlier steps may have
		// changed what globs match.
		p, err := e.prepare(c, pathContext{root: req.Root, cwd: cwd})
		if err != nil {
			res.Steps = append(res.Steps, Step{
				Command: c.text,
				Status:  refusalStatus(err),
				Message: err.Error(),
				Err:     err,
			})
			break
		}

		var step Step
		step, cwd = e.runStep(ctx, p, req.Root, cwd)
		res.Steps = append(res.Steps, step)
		if step.Status != StatusSuccess {
			break
		}
	}

	last := res.Steps[len(res.Steps)-1]
	res.Status = last.Status
	res.Cwd = relCwd(req.Root, cwd)
	if res.Status != StatusSuccess {
		res.Err = last.Err
		res.Reason = last.Message
		if res.Reason == "" {
			res.Reason = firstLine(last.Stderr)
		}
	}
	return res, nil
}

func (e *Executor) runStep(ctx context.Context, p *prepared, root sandbox.Root, cwd string) (Step, string) {
	step := Step{Command: p.text, Args: append([]string{p.name}, p.args...)}

	switch p.name {
	case "cd":
		return e.changeDir(step, p, cwd)
	case "pwd":
		step.Status = StatusSuccess
		step.Stdout = cwd + "\n"
		return step, cwd
	}

	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		step.Status = StatusFailure
		step.ExitCode = 1
		step.Message = "the current directory no longer exists, returning to the sandbox root"
		return step, string(root)
	}

	bin, err := lookPath(p.name)
	if err != nil {
		step.Status = StatusFailure
		step.ExitCode = 127
		step.Message = fmt.Sprintf("command '%s' not found on this system", p.name)
		step.Err = err
		return step, cwd
	}

	out := e.runProcess(ctx, bin, p.args, cwd, string(root))
	step.Stdout = out.stdout
	step.Stderr = out.stderr
	step.Truncated = out.truncated
	step.ExitCode = out.exitCode
	step.Duration = out.duration
	step.TimedOut = out.timedOut
	step.Err = out.err
	if out.err != nil {
		step.Message = out.err.Error()
	}
	if out.exitCode == 0 && out.err == nil {
		step.Status = StatusSuccess
	} else {
		step.Status = StatusFailure
	}
	return step, cwd
}

func (e *Executor) changeDir(step Step, p *prepared, cwd string) (Step, string) {
	fail := func(msg string) (Step, string) {
		step.Status = StatusFailure
		step.ExitCode = 1
		step.Message = msg
		return step, cwd
	}
	if p.cdErr != "" {
		return fail(p.cdErr)
	}
	info, err := os.Stat(p.cdTarget)
	if err != nil {
		return fail("cd: no such directory: " + strings.Join(p.args, " "))
	}
	if !info.IsDir() {
		return fail("cd: not a directory: " + strings.Join(p.args, " "))
	}
	step.Status = StatusSuccess
	return step, p.cdTarget
}

func refuse(res *Result, err error) *Result {
	res.Status = refusalStatus(err)
	res.Err = err
	res.Reason = err.Error()
	return res
}

// refusalStatus maps a validation error to BLOCKED (policy) or REJECTED
// (unsafe or unreadable input).
func refusalStatus(err error) Status {
	var (
		opErr  *BlockedOperatorError
		cmdErr *DisallowedCommandError
	)
	if errors.As(err, &opErr) || errors.As(err, &cmdErr) {
		return StatusBlocked
	}
	return StatusRejected
}

func relCwd(root sandbox.Root, abs string) string {
	rel, err := root.Rel(abs)
	if err != nil {
		return "."
	}
	return rel
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
