package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AnEntrypoint/sequential-gui/internal/errs"
	"github.com/AnEntrypoint/sequential-gui/internal/events"
	"github.com/AnEntrypoint/sequential-gui/internal/persistence"
)

// fakeRunnerConfig points the invoker at testdata/fake-runner.sh.
func fakeRunnerConfig(t *testing.T) Config {
	t.Helper()
	workDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return Config{
		Command: "bash",
		Args:    []string{filepath.Join(workDir, "testdata", "fake-runner.sh")},
		Dir:     t.TempDir(),
	}
}

func newTestInvoker(t *testing.T, cfg Config) (*Invoker, *events.Bus, *persistence.SQLiteStore) {
	t.Helper()
	history, err := persistence.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create history store: %v", err)
	}
	t.Cleanup(func() { history.Close() })
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return NewInvoker(cfg, bus, history, nil, nil), bus, history
}

// collect drains every event currently buffered on sub.
func collect(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

// TestRun_Success verifies the event sequence and captured output of a
// successful invocation.
func TestRun_Success(t *testing.T) {
	inv, bus, history := newTestInvoker(t, fakeRunnerConfig(t))
	sub := bus.SubscribeAll(1024)

	res, err := inv.Run(context.Background(), "ok", json.RawMessage(`{ "x": 1 }`))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.Stdout, `running ok with {"x":1}`) {
		t.Errorf("expected compacted input in stdout, got %q", res.Stdout)
	}
	if !strings.Contains(res.Stderr, "warming up") {
		t.Errorf("expected stderr to be captured, got %q", res.Stderr)
	}

	evs := collect(sub)
	if len(evs) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(evs))
	}
	if _, ok := evs[0].(events.RunStartEvent); !ok {
		t.Errorf("expected runStart first, got %T", evs[0])
	}
	if _, ok := evs[len(evs)-1].(events.RunCompleteEvent); !ok {
		t.Errorf("expected runComplete last, got %T", evs[len(evs)-1])
	}

	var logged strings.Builder
	streams := map[string]bool{}
	for _, ev := range evs[1 : len(evs)-1] {
		logEv, ok := ev.(events.LogEvent)
		if !ok {
			t.Errorf("expected only log events between start and complete, got %T", ev)
			continue
		}
		if logEv.Task != "ok" {
			t.Errorf("log event has task %q", logEv.Task)
		}
		streams[logEv.Stream] = true
		logged.WriteString(logEv.Data)
	}
	if !streams[StreamStdout] || !streams[StreamStderr] {
		t.Errorf("expected both streams to be logged, got %v", streams)
	}
	if !strings.Contains(logged.String(), "running ok") {
		t.Errorf("log events missing stdout: %q", logged.String())
	}

	invs, err := history.ListInvocations(context.Background(), "ok", 0)
	if err != nil {
		t.Fatalf("ListInvocations: %v", err)
	}
	if len(invs) != 1 || invs[0].ID != res.InvocationID || invs[0].Status != persistence.InvocationSucceeded {
		t.Errorf("unexpected invocation log %+v", invs)
	}
}

// TestRun_CommandLine verifies the argument layout passed to the runner.
func TestRun_CommandLine(t *testing.T) {
	inv, _, _ := newTestInvoker(t, fakeRunnerConfig(t))

	res, err := inv.Run(context.Background(), "args", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "args\n--input\n{}\n--save\n"
	if res.Stdout != want {
		t.Errorf("expected args %q, got %q", want, res.Stdout)
	}
}

// TestRun_Failure verifies stderr becomes the error text.
func TestRun_Failure(t *testing.T) {
	inv, bus, history := newTestInvoker(t, fakeRunnerConfig(t))
	sub := bus.Subscribe(events.TopicRun, 10)

	_, err := inv.Run(context.Background(), "fail", nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.Code != 3 || exitErr.Message != "boom\n" {
		t.Errorf("unexpected exit error %+v", exitErr)
	}

	evs := collect(sub)
	if len(evs) != 2 {
		t.Fatalf("expected runStart and runError, got %d events", len(evs))
	}
	runErr, ok := evs[1].(events.RunErrorEvent)
	if !ok || runErr.Error != "boom\n" {
		t.Errorf("unexpected final event %#v", evs[1])
	}

	invs, _ := history.ListInvocations(context.Background(), "fail", 0)
	if len(invs) != 1 || invs[0].Status != persistence.InvocationFailed || invs[0].Error != "boom\n" {
		t.Errorf("unexpected invocation log %+v", invs)
	}
}

// TestRun_FailureFallsBackToStdout verifies stdout is used when stderr is empty.
func TestRun_FailureFallsBackToStdout(t *testing.T) {
	inv, _, _ := newTestInvoker(t, fakeRunnerConfig(t))

	_, err := inv.Run(context.Background(), "quiet-fail", nil)
	if err == nil || err.Error() != "only stdout\n" {
		t.Errorf("expected stdout as error text, got %v", err)
	}
}

// TestRun_LargeOutput verifies concurrent pipe reading does not deadlock.
func TestRun_LargeOutput(t *testing.T) {
	inv, _, _ := newTestInvoker(t, fakeRunnerConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := inv.Run(ctx, "large", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) != 16384 {
		t.Errorf("expected 16384 lines, got %d", len(lines))
	}
}

// TestRun_InvalidInput verifies nothing is launched for malformed input.
func TestRun_InvalidInput(t *testing.T) {
	inv, bus, _ := newTestInvoker(t, fakeRunnerConfig(t))
	sub := bus.SubscribeAll(10)

	if _, err := inv.Run(context.Background(), "ok", json.RawMessage(`{nope`)); !errors.Is(err, errs.ErrMalformedDocument) {
		t.Errorf("expected ErrMalformedDocument, got %v", err)
	}
	if _, err := inv.Run(context.Background(), "../x", nil); !errors.Is(err, errs.ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
	if evs := collect(sub); len(evs) != 0 {
		t.Errorf("expected no events, got %d", len(evs))
	}
}

// TestRun_Cancellation verifies cancelling the context kills the runner.
func TestRun_Cancellation(t *testing.T) {
	inv, _, _ := newTestInvoker(t, fakeRunnerConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := inv.Run(ctx, "sleep", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("runner was not killed promptly (%v)", elapsed)
	}
	if n := inv.Processes().Count(); n != 0 {
		t.Errorf("expected no tracked processes, got %d", n)
	}
}

// TestRun_BreakerTripsOnStartFailures verifies the breaker opens after five
// launch failures.
func TestRun_BreakerTripsOnStartFailures(t *testing.T) {
	cfg := Config{Command: filepath.Join(t.TempDir(), "missing-runner")}
	inv, _, _ := newTestInvoker(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := inv.Run(ctx, "ok", nil)
		if err == nil || errors.Is(err, ErrRunnerUnavailable) {
			t.Fatalf("attempt %d: expected start failure, got %v", i+1, err)
		}
	}

	_, err := inv.Run(ctx, "ok", nil)
	if !errors.Is(err, ErrRunnerUnavailable) {
		t.Errorf("expected ErrRunnerUnavailable after 5 failures, got %v", err)
	}
}

// TestRun_OpenBreakerAllocatesNoPipes verifies rejected launches do not
// leave descriptors behind.
func TestRun_OpenBreakerAllocatesNoPipes(t *testing.T) {
	if _, err := os.ReadDir("/proc/self/fd"); err != nil {
		t.Skip("no /proc/self/fd on this platform")
	}
	cfg := Config{Command: filepath.Join(t.TempDir(), "missing-runner")}
	inv, _, _ := newTestInvoker(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		inv.Run(ctx, "ok", nil)
	}

	openFDs := func() int {
		entries, err := os.ReadDir("/proc/self/fd")
		if err != nil {
			t.Fatal(err)
		}
		return len(entries)
	}
	before := openFDs()
	for i := 0; i < 20; i++ {
		if _, err := inv.Run(ctx, "ok", nil); !errors.Is(err, ErrRunnerUnavailable) {
			t.Fatalf("attempt %d: expected ErrRunnerUnavailable, got %v", i+1, err)
		}
	}
	// Each leaked launch would hold four descriptors.
	if after := openFDs(); after > before+4 {
		t.Errorf("descriptors grew from %d to %d while the breaker was open", before, after)
	}
}

// TestRun_TaskFailuresDoNotTripBreaker verifies runner exit codes are not
// counted against the runner.
func TestRun_TaskFailuresDoNotTripBreaker(t *testing.T) {
	inv, _, _ := newTestInvoker(t, fakeRunnerConfig(t))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := inv.Run(ctx, "fail", nil); errors.Is(err, ErrRunnerUnavailable) {
			t.Fatalf("attempt %d: breaker opened on task failure", i+1)
		}
	}
	if _, err := inv.Run(ctx, "ok", nil); err != nil {
		t.Errorf("expected success after task failures, got %v", err)
	}
}
