package events

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestPublishSubscribe verifies basic publish/subscribe functionality.
func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicRun, 10)

	bus.Publish(RunStartEvent{Task: "task-1", Timestamp: time.Now()})

	select {
	case received := <-sub.Events():
		if received.TaskID() != "task-1" {
			t.Errorf("expected task ID 'task-1', got '%s'", received.TaskID())
		}
		if received.EventType() != EventTypeRunStart {
			t.Errorf("expected event type '%s', got '%s'", EventTypeRunStart, received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

// TestMultipleSubscribers verifies multiple subscribers receive the same event.
func TestMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub1 := bus.Subscribe(TopicArtifact, 10)
	sub2 := bus.Subscribe(TopicArtifact, 10)

	bus.Publish(ArtifactChangedEvent{Task: "task-2", Scope: "task", Path: "/a.txt", Op: OpWrite})

	for i, sub := range []*Subscription{sub1, sub2} {
		select {
		case received := <-sub.Events():
			ev, ok := received.(ArtifactChangedEvent)
			if !ok || ev.Path != "/a.txt" {
				t.Errorf("subscriber %d: unexpected event %+v", i+1, received)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("subscriber %d: timeout waiting for event", i+1)
		}
	}
}

// TestNonBlockingSend verifies that publishing doesn't block when channels are full.
func TestNonBlockingSend(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.Subscribe(TopicLog, 1)

	done := make(chan bool)
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(LogEvent{Task: "t", Data: fmt.Sprintf("chunk %d", i)})
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publisher blocked (expected non-blocking behavior)")
	}

	select {
	case received := <-sub.Events():
		if received.(LogEvent).Data != "chunk 0" {
			t.Errorf("expected first chunk to be kept, got %+v", received)
		}
	default:
		t.Error("expected at least one event in buffer")
	}
	if sub.Dropped() != 9 {
		t.Errorf("expected 9 dropped events, got %d", sub.Dropped())
	}
}

// TestSlowSubscriberDoesNotAffectOthers verifies a full subscriber only loses its own events.
func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	slow := bus.Subscribe(TopicLog, 1)
	fast := bus.Subscribe(TopicLog, 100)

	for i := 0; i < 50; i++ {
		bus.Publish(LogEvent{Data: fmt.Sprintf("%d", i)})
	}

	if got := len(fast.Events()); got != 50 {
		t.Errorf("fast subscriber: expected 50 events, got %d", got)
	}
	if got := len(slow.Events()); got != 1 {
		t.Errorf("slow subscriber: expected 1 event, got %d", got)
	}
}

// TestPublishOrder verifies that one call's events arrive in argument order.
func TestPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub := bus.SubscribeAll(10)

	bus.Publish(
		RunStartEvent{Task: "t"},
		LogEvent{Task: "t", Data: "hello"},
		RunErrorEvent{Task: "t", Error: "boom"},
	)

	want := []string{EventTypeRunStart, EventTypeLog, EventTypeRunError}
	for i, typ := range want {
		select {
		case received := <-sub.Events():
			if received.EventType() != typ {
				t.Errorf("event %d: expected %s, got %s", i, typ, received.EventType())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("event %d: timeout", i)
		}
	}
}

// TestCloseSignalsSubscribers verifies that closing the bus closes subscriber channels.
func TestCloseSignalsSubscribers(t *testing.T) {
	bus := NewBus()

	sub := bus.Subscribe(TopicRun, 10)

	bus.Close()

	received := 0
	for range sub.Events() {
		received++
	}

	if received != 0 {
		t.Errorf("expected 0 events after close, got %d", received)
	}

	// Closing the handle afterwards is a no-op.
	sub.Close()
}

// TestSubscriptionClose verifies an unsubscribed handle stops receiving.
func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	gone := bus.Subscribe(TopicRun, 10)
	kept := bus.Subscribe(TopicRun, 10)
	all := bus.SubscribeAll(10)
	all.Close()
	gone.Close()
	gone.Close()

	bus.Publish(RunCompleteEvent{Task: "t"})

	if _, ok := <-gone.Events(); ok {
		t.Error("closed subscription received an event")
	}
	if _, ok := <-all.Events(); ok {
		t.Error("closed all-topic subscription received an event")
	}
	select {
	case <-kept.Events():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("remaining subscriber did not receive event")
	}
}

// TestPublishAfterClose verifies publishing after close doesn't panic.
func TestPublishAfterClose(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(TopicRun, 10)

	bus.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("publishing after close caused panic: %v", r)
		}
	}()

	bus.Publish(RunStartEvent{Task: "task-1"})

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("received event after bus was closed")
		}
	default:
	}

	late := bus.SubscribeAll(1)
	if _, ok := <-late.Events(); ok {
		t.Error("subscription on a closed bus should be closed")
	}
}

// TestMultipleTopics verifies topic isolation.
func TestMultipleTopics(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	runSub := bus.Subscribe(TopicRun, 10)
	taskSub := bus.Subscribe(TopicTask, 10)

	bus.Publish(RunStartEvent{Task: "task-1"})
	bus.Publish(TaskUpdatedEvent{Task: "task-1", What: "graph"})

	select {
	case received := <-runSub.Events():
		if received.EventType() != EventTypeRunStart {
			t.Errorf("run channel: expected run event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("run channel: timeout waiting for event")
	}

	select {
	case received := <-taskSub.Events():
		if received.EventType() != EventTypeTaskUpdated {
			t.Errorf("task channel: expected task event, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("task channel: timeout waiting for event")
	}

	select {
	case <-runSub.Events():
		t.Error("run channel received unexpected event")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case <-taskSub.Events():
		t.Error("task channel received unexpected event")
	case <-time.After(10 * time.Millisecond):
	}
}

// TestSubscribeAll verifies that SubscribeAll receives events from all topics.
func TestSubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.SubscribeAll(20)

	bus.Publish(RunStartEvent{Task: "task-1"})
	bus.Publish(ArtifactChangedEvent{Task: "task-1", Scope: "global", Path: "/x", Op: OpDelete})

	receivedTypes := make(map[string]bool)
	for i := 0; i < 2; i++ {
		select {
		case received := <-all.Events():
			receivedTypes[received.EventType()] = true
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}

	if !receivedTypes[EventTypeRunStart] {
		t.Error("SubscribeAll did not receive run event")
	}
	if !receivedTypes[EventTypeArtifactChanged] {
		t.Error("SubscribeAll did not receive artifact event")
	}

	select {
	case <-all.Events():
		t.Error("received unexpected third event")
	case <-time.After(10 * time.Millisecond):
	}
}

// TestConcurrentSubscribeAndPublish exercises the bus under the race detector.
func TestConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(LogEvent{Data: "x"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sub := bus.Subscribe(TopicLog, 4)
				sub.Close()
			}
		}()
	}
	wg.Wait()
}
