package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Stream identifies which output pipe a chunk came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Executor abstracts command execution for testability. Implementations must
// deliver chunks one at a time, never concurrently.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onChunk func(stream Stream, chunk string)) error
}

// Chunk is one trimmed piece of process output together with any progress
// value the configured parser extracted from it.
type Chunk struct {
	Stream      Stream
	Text        string
	Progress    int
	HasProgress bool
}

// Error reports a failed external command.
type Error struct {
	Binary   string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	if e.Output != "" {
		return e.Output
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s timed out", e.Binary)
	}
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s exited with %d", e.Binary, e.ExitCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Binary, e.Err)
	}
	return fmt.Sprintf("%s failed", e.Binary)
}

func (e *Error) Unwrap() error { return e.Err }

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithTimeout bounds every invocation. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.timeout = d
	}
}

// Runner observes external commands. It knows nothing about what the command
// does; callers decide what to do with output and progress.
type Runner struct {
	exec    Executor
	timeout time.Duration
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{exec: commandExecutor{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Output runs binary and returns its stdout.
func (r *Runner) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	err := r.run(ctx, binary, args, func(stream Stream, chunk string) {
		if stream == Stderr {
			stderr.WriteString(chunk)
			return
		}
		stdout.WriteString(chunk)
	})
	if err != nil {
		if perr := (*Error)(nil); errors.As(err, &perr) && perr.Output == "" {
			perr.Output = strings.TrimSpace(stderr.String())
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Stream runs binary, handing each trimmed output chunk to onChunk after the
// parser has been applied. On failure the returned *Error carries the last
// captured stderr chunk.
func (r *Runner) Stream(ctx context.Context, binary string, args []string, parser ProgressParser, onChunk func(Chunk)) error {
	var lastErr string
	err := r.run(ctx, binary, args, func(stream Stream, raw string) {
		text := strings.TrimSpace(raw)
		if text == "" {
			return
		}
		if stream == Stderr {
			lastErr = text
		}
		chunk := Chunk{Stream: stream, Text: text}
		if parser != nil {
			chunk.Progress, chunk.HasProgress = parser(text)
		}
		if onChunk != nil {
			onChunk(chunk)
		}
	})
	if err != nil {
		if perr := (*Error)(nil); errors.As(err, &perr) && perr.Output == "" {
			perr.Output = lastErr
		}
		return err
	}
	return nil
}

// Available reports whether binary exists on PATH and answers the given probe
// arguments with a zero exit status.
func (r *Runner) Available(ctx context.Context, binary string, probeArgs ...string) bool {
	if _, err := exec.LookPath(binary); err != nil {
		return false
	}
	return r.run(ctx, binary, probeArgs, func(Stream, string) {}) == nil
}

func (r *Runner) run(ctx context.Context, binary string, args []string, onChunk func(Stream, string)) error {
	if strings.TrimSpace(binary) == "" {
		return &Error{Binary: binary, Err: errors.New("binary required")}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	err := r.exec.Run(ctx, binary, args, onChunk)
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	out := &Error{Binary: binary, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		out.Err = ctxErr
	}
	return out
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onChunk func(Stream, string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	type chunk struct {
		stream Stream
		text   string
	}
	chunks := make(chan chunk, 16)
	var wg sync.WaitGroup
	pump := func(stream Stream, rd io.Reader) {
		defer wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := rd.Read(buf)
			if n > 0 {
				chunks <- chunk{stream: stream, text: string(buf[:n])}
			}
			if err != nil {
				return
			}
		}
	}
	wg.Add(2)
	go pump(Stdout, stdout)
	go pump(Stderr, stderr)
	go func() {
		wg.Wait()
		close(chunks)
	}()

	for c := range chunks {
		onChunk(c.stream, c.text)
	}
	return cmd.Wait()
}

var _ Executor = commandExecutor{}
