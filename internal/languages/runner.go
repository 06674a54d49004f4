package languages

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// stderrTailLines is how many trailing stderr lines a CommandError keeps.
	stderrTailLines = 20
	// maxLineBytes caps a single progress line.
	maxLineBytes = 64 * 1024
	// waitDelay bounds how long Wait lingers on pipes still held open by
	// descendants after the process exits or is killed.
	waitDelay = 5 * time.Second
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// OnLine receives each stdout and stderr line as it is produced.
	OnLine func(line string)
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandError reports a failed external process.
type CommandError struct {
	Command string
	Err     error
	Stderr  string
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Command, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandRunner abstracts process execution so adapters can be tested
// without real indexers installed.
type CommandRunner interface {
	LookPath(name string) (string, error)
	// Run executes cmd to completion, streaming output lines to cmd.OnLine.
	Run(ctx context.Context, cmd Command) error
	// Output executes cmd and returns its trimmed stdout.
	Output(ctx context.Context, cmd Command) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// LookPath implements CommandRunner.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	killProcessGroup(cmd)

	// exec copies the child's pipes into these writers; Wait returns once
	// the copies finish or WaitDelay expires.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	tail := newTailBuffer(stderrTailLines)
	var mu sync.Mutex // OnLine is called from both pipe readers
	emit := func(line string) {
		if c.OnLine == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		c.OnLine(line)
	}

	var g errgroup.Group
	g.Go(func() error {
		return drainLines(outR, emit)
	})
	g.Go(func() error {
		return drainLines(errR, func(line string) {
			tail.add(line)
			emit(line)
		})
	})

	var waitErr error
	if err := cmd.Start(); err != nil {
		waitErr = err
	} else {
		waitErr = cmd.Wait()
	}
	_ = outW.Close()
	_ = errW.Close()
	readErr := g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CommandError{Command: c.String(), Err: ctxErr}
	}
	if cmd.Process == nil {
		return &CommandError{Command: c.String(), Err: waitErr}
	}
	if waitErr != nil {
		return &CommandError{Command: c.String(), Err: waitErr, Stderr: tail.String()}
	}
	if readErr != nil {
		return &CommandError{Command: c.String(), Err: readErr}
	}
	return nil
}

// Output implements CommandRunner.
func (ExecRunner) Output(ctx context.Context, c Command) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	killProcessGroup(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", &CommandError{Command: c.String(), Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}
	return strings.TrimSpace(string(out)), nil
}

// drainLines passes each line of r to fn. Lines longer than maxLineBytes are
// truncated. r is read to EOF even after a read error so the writer never
// blocks on a full pipe.
func drainLines(r io.Reader, fn func(string)) error {
	err := scanLines(r, fn)
	if err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return err
}

func scanLines(r io.Reader, fn func(string)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if n := min(len(chunk), maxLineBytes-len(line)); n > 0 {
			line = append(line, chunk[:n]...)
		}
		if err != nil {
			if len(line) > 0 {
				fn(string(line))
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !isPrefix {
			fn(string(line))
			line = line[:0]
		}
	}
}

type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(strings.Join(t.lines, "\n"))
}
