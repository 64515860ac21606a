// Package runner launches the external task runner as a subprocess and
// turns its lifecycle into events: runStart, a stream of log chunks, then
// runComplete or runError. What the runner does with the task is opaque.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/AnEntrypoint/sequential-gui/internal/artifact"
	"github.com/AnEntrypoint/sequential-gui/internal/errs"
	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/persistence"
)

// Stream names carried by log events.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ErrRunnerUnavailable is returned without launching anything while the
// runner binary keeps failing to start.
var ErrRunnerUnavailable = errors.New("runner unavailable")

// Config describes how to launch the runner. The final command line is
// Command Args... <taskID> --input <json> --save.
type Config struct {
	Command string
	Args    []string
	Dir     string   // working directory, normally the ecosystem root
	Env     []string // extra KEY=VALUE entries appended to the environment
}

// DefaultConfig invokes the ecosystem CLI through npx.
func DefaultConfig() Config {
	return Config{
		Command: "npx",
		Args:    []string{"sequential-ecosystem", "run"},
	}
}

// ExitError is a runner that started but exited unsuccessfully. Message is
// the runner's stderr, or its stdout when stderr was empty.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("runner exited with status %d", e.Code)
}

// Result is the outcome of a successful invocation.
type Result struct {
	InvocationID string        `json:"invocationId"`
	TaskID       string        `json:"taskId"`
	Stdout       string        `json:"stdout"`
	Stderr       string        `json:"stderr"`
	Duration     time.Duration `json:"duration"`
}

// Invoker runs tasks through the external runner.
type Invoker struct {
	cfg     Config
	bus     *events.Bus
	history persistence.Store
	procs   *ProcessManager
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewInvoker creates an invoker. bus, history and procs may be nil.
func NewInvoker(cfg Config, bus *events.Bus, history persistence.Store, procs *ProcessManager, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	if procs == nil {
		procs = NewProcessManager()
	}
	if cfg.Command == "" {
		cfg = DefaultConfig()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "runner",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not the runner's.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("runner circuit breaker changed state", "from", from.String(), "to", to.String())
		},
	})

	return &Invoker{
		cfg:     cfg,
		bus:     bus,
		history: history,
		procs:   procs,
		breaker: breaker,
		logger:  logger,
	}
}

// Processes returns the manager tracking running invocations.
func (inv *Invoker) Processes() *ProcessManager {
	return inv.procs
}

// Run invokes the runner for taskID and blocks until it exits. input must be
// JSON; empty input is sent as {}. Output is published as log events while
// the runner runs. Cancelling ctx kills the runner's process group.
func (inv *Invoker) Run(ctx context.Context, taskID string, input json.RawMessage) (Result, error) {
	if err := artifact.ValidateTaskID(taskID); err != nil {
		return Result{}, err
	}
	inputArg, err := normalizeInput(input)
	if err != nil {
		return Result{}, err
	}

	id := uuid.NewString()
	start := time.Now()
	inv.recordStart(ctx, id, taskID, inputArg)
	inv.publish(events.RunStartEvent{Task: taskID, Timestamp: start.UTC()})

	res, err := inv.execute(ctx, id, taskID, inputArg)
	res.Duration = time.Since(start)

	inv.recordFinish(ctx, id, err)
	if err != nil {
		inv.logger.Warn("runner failed", "task", taskID, "invocation", id, "error", err)
		inv.publish(events.RunErrorEvent{Task: taskID, Error: err.Error(), Timestamp: time.Now().UTC()})
		return res, err
	}
	inv.logger.Info("runner completed", "task", taskID, "invocation", id, "duration", res.Duration)
	inv.publish(events.RunCompleteEvent{Task: taskID, Timestamp: time.Now().UTC()})
	return res, nil
}

func (inv *Invoker) execute(ctx context.Context, id, taskID, input string) (Result, error) {
	res := Result{InvocationID: id, TaskID: taskID}

	args := append(append([]string{}, inv.cfg.Args...), taskID, "--input", input, "--save")
	cmd := newCommand(ctx, inv.cfg.Command, args...)
	cmd.Dir = inv.cfg.Dir
	if len(inv.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), inv.cfg.Env...)
	}

	// Only launching goes through the breaker; a task that runs and fails
	// says nothing about the runner's health. Pipes are opened inside so a
	// rejected launch allocates nothing, and a failed Start closes them.
	var p pipes
	_, err := inv.breaker.Execute(func() (interface{}, error) {
		var err error
		if p, err = openPipes(cmd); err != nil {
			return nil, err
		}
		return nil, cmd.Start()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return res, fmt.Errorf("%w: %v", ErrRunnerUnavailable, err)
	}
	if err != nil {
		return res, fmt.Errorf("failed to start runner: %w", err)
	}

	inv.procs.Track(cmd)
	defer inv.procs.Untrack(cmd)

	stdout, stderr := drain(p, func(stream string, data []byte) {
		inv.publish(events.LogEvent{Task: taskID, Stream: stream, Data: string(data), Timestamp: time.Now().UTC()})
	})
	waitErr := cmd.Wait()

	res.Stdout = string(stdout)
	res.Stderr = string(stderr)

	if waitErr != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("runner cancelled: %w", ctx.Err())
		}
		msg := res.Stderr
		if msg == "" {
			msg = res.Stdout
		}
		return res, &ExitError{Code: exitCode(waitErr), Message: msg}
	}
	return res, nil
}

// normalizeInput compacts input to a single-line JSON argument.
func normalizeInput(input json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return "", fmt.Errorf("run input: %w: %v", errs.ErrMalformedDocument, err)
	}
	return buf.String(), nil
}

func (inv *Invoker) recordStart(ctx context.Context, id, taskID, input string) {
	if inv.history == nil {
		return
	}
	if err := inv.history.StartInvocation(context.WithoutCancel(ctx), id, taskID, input); err != nil {
		inv.logger.Warn("failed to record invocation", "invocation", id, "error", err)
	}
}

func (inv *Invoker) recordFinish(ctx context.Context, id string, runErr error) {
	if inv.history == nil {
		return
	}
	if err := inv.history.FinishInvocation(context.WithoutCancel(ctx), id, runErr); err != nil {
		inv.logger.Warn("failed to record invocation result", "invocation", id, "error", err)
	}
}

func (inv *Invoker) publish(ev events.Event) {
	if inv.bus != nil {
		inv.bus.Publish(ev)
	}
}
