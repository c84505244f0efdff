package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// searchPath is the only place binaries are looked up. The host PATH is
// never consulted.
var searchPath = []string{"/usr/local/bin", "/usr/bin", "/bin"}

// processOutcome captures one finished process.
type processOutcome struct {
	stdout      string
	stderr      string
	truncated   bool
	exitCode    int
	duration    time.Duration
	timedOut    bool
	interrupted bool
	err         error
}

// lookPath finds name in searchPath.
func lookPath(name string) (string, error) {
	for _, dir := range searchPath {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0111 != 0 {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// runProcess executes bin as an isolated OS process:
//   - its own process group, killed as a whole on timeout or cancel
//   - no environment inherited from the host, HOME and TMPDIR point at the root
//   - empty stdin
//   - stdout and stderr capped at maxOutput bytes each
func (e *Executor) runProcess(ctx context.Context, bin string, args []string, dir, home string) processOutcome {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, bin, args...)
	cmd.Dir = dir
	cmd.Env = buildEnv(home)
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID = kill the entire process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, remaining: e.maxOutput}
	stderr := &limitedWriter{w: &stderrBuf, remaining: e.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	e.logger.Info("sandbox executing",
		slog.String("command", bin),
		slog.Any("args", args),
		slog.String("dir", dir),
		slog.Duration("timeout", e.timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	out := processOutcome{
		stdout:    stdoutBuf.String(),
		stderr:    stderrBuf.String(),
		truncated: stdout.truncated || stderr.truncated,
		duration:  time.Since(start),
	}

	if runErr != nil {
		if stepCtx.Err() != nil {
			out.exitCode = -1
			if errors.Is(ctx.Err(), context.Canceled) {
				out.interrupted = true
				out.err = ErrInterrupted
			} else {
				out.timedOut = true
				out.err = &ExecutionTimeoutError{Timeout: e.timeout}
			}
			e.logger.Warn("sandbox execution stopped",
				slog.String("command", bin),
				slog.Bool("timed_out", out.timedOut),
				slog.Duration("duration", out.duration),
			)
			return out
		}

		// Non-zero exit code is not an error, it's a result.
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.exitCode = exitErr.ExitCode()
		} else {
			out.exitCode = -1
			out.err = fmt.Errorf("starting %s: %w", filepath.Base(bin), runErr)
		}
	}

	e.logger.Info("sandbox execution completed",
		slog.String("command", bin),
		slog.Int("exit_code", out.exitCode),
		slog.Duration("duration", out.duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)
	return out
}

// buildEnv constructs a minimal environment. The parent environment is
// never inherited.
func buildEnv(home string) []string {
	return []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + home,
		"TMPDIR=" + home,
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
		"TERM=dumb",
	}
}

// limitedWriter keeps the first remaining bytes and discards the rest.
type limitedWriter struct {
	w         io.Writer
	remaining int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.remaining <= 0 {
		if n > 0 {
			lw.truncated = true
		}
		return n, nil
	}
	if n > lw.remaining {
		p = p[:lw.remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
