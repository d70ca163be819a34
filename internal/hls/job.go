package hls

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/harmoniaapp/harmonia-server/internal/domain"
	"github.com/harmoniaapp/harmonia-server/internal/errors"
)

// stderrTailLimit bounds the retained transcoder error text.
const stderrTailLimit = 4096

// Runner spawns transcoder processes. It is a pure process wrapper:
// argument construction and output-file semantics live with its callers.
type Runner struct {
	binPath string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a runner for the transcoder binary at binPath.
// timeout is the hard per-process deadline.
func NewRunner(binPath string, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{binPath: binPath, timeout: timeout, logger: logger}
}

// LookupTranscoder resolves the transcoder binary: explicit path wins,
// otherwise ffmpeg is searched on PATH.
func LookupTranscoder(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", errors.TranscoderUnavailable("ffmpeg not found on PATH").WithCause(err)
	}
	return path, nil
}

// Run executes the transcoder with argv and waits for it to exit. The
// process is killed when ctx is cancelled or the deadline elapses.
// Stderr is drained continuously - a full pipe buffer would deadlock a
// long transcode - keeping only the final 4 KiB for diagnostics.
func (r *Runner) Run(ctx context.Context, argv []string) (domain.JobResult, error) {
	result := domain.JobResult{StartedAt: time.Now()}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binPath, argv...) //nolint:gosec // binPath is resolved at startup
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		result.Status = domain.JobStatusFailed
		return result, errors.Wrap(err, errors.CodeInternal, "create stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		result.Status = domain.JobStatusFailed
		result.EndedAt = time.Now()
		return result, errors.TranscoderUnavailable("failed to start transcoder").WithCause(err)
	}

	tailCh := make(chan []byte, 1)
	go func() {
		tailCh <- drainTail(stderr, stderrTailLimit)
	}()

	waitErr := cmd.Wait()
	result.EndedAt = time.Now()
	result.StderrTail = string(<-tailCh)
	result.ExitCode = cmd.ProcessState.ExitCode()

	switch {
	case waitErr == nil:
		result.Status = domain.JobStatusCompleted
	case runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		result.Status = domain.JobStatusTimedOut
	case ctx.Err() != nil:
		// External cancellation is not an error: the caller asked for it.
		result.Status = domain.JobStatusCancelled
	default:
		result.Status = domain.JobStatusFailed
	}

	if result.Status == domain.JobStatusFailed || result.Status == domain.JobStatusTimedOut {
		r.logger.Warn("transcoder exited abnormally",
			slog.String("status", string(result.Status)),
			slog.Int("exit_code", result.ExitCode),
			slog.String("stderr_tail", result.StderrTail),
		)
	}

	return result, nil
}

// drainTail consumes the reader to EOF, retaining the last limit bytes.
func drainTail(r io.Reader, limit int) []byte {
	buf := make([]byte, 1024)
	var tail []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			tail = append(tail, buf[:n]...)
			if len(tail) > limit {
				tail = tail[len(tail)-limit:]
			}
		}
		if err != nil {
			return tail
		}
	}
}
