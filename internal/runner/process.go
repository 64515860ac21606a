package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// chunkSize bounds one log event's payload.
const chunkSize = 4096

// newCommand creates an exec.Cmd in its own process group. Cancelling ctx
// kills the whole group, not just the direct child.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	// Grandchildren holding the pipes open must not block Wait forever.
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// pipes holds a started command's output streams.
type pipes struct {
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// openPipes attaches stdout and stderr pipes. Must be called before Start.
func openPipes(cmd *exec.Cmd) (pipes, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return pipes{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return pipes{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	return pipes{stdout: stdout, stderr: stderr}, nil
}

// drain reads both pipes concurrently until EOF, handing every chunk to
// onChunk and collecting the full text of each stream. Both pipes are
// drained before it returns, so cmd.Wait is safe to call afterwards.
func drain(p pipes, onChunk func(stream string, data []byte)) (stdout, stderr []byte) {
	var wg sync.WaitGroup
	var outBuf, errBuf []byte

	read := func(stream string, r io.Reader, dst *[]byte) {
		defer wg.Done()
		buf := make([]byte, chunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				*dst = append(*dst, buf[:n]...)
				if onChunk != nil {
					onChunk(stream, buf[:n])
				}
			}
			if err != nil {
				return
			}
		}
	}

	wg.Add(2)
	go read(StreamStdout, p.stdout, &outBuf)
	go read(StreamStderr, p.stderr, &errBuf)
	wg.Wait()

	return outBuf, errBuf
}

// exitCode extracts the exit status from a Wait error, or -1 when the
// process was signalled or the error is not an exit error.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// killProcessGroup kills the entire process group associated with the command.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	// Negative pid addresses the group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}
	return nil
}

// ProcessManager tracks running runner processes so they can all be
// terminated at shutdown.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewProcessManager creates a new ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		procs: make(map[int]*exec.Cmd),
	}
}

// Track registers a started process.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.procs[cmd.Process.Pid] = cmd
}

// Untrack removes a process once Wait has returned.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.procs, cmd.Process.Pid)
}

// KillAll terminates every tracked process group.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for pid, cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("failed to kill process %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked processes.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
