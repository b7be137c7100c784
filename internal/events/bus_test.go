package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan ProcessAddedEvent, 1)

	unsub := bus.Subscribe(func(e ProcessAddedEvent) {
		received <- e
	})
	defer unsub()

	event := ProcessAddedEvent{
		ID:        "web",
		Command:   "python3 -m http.server",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.ID != event.ID || got.Command != event.Command {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan ProcessStateChangedEvent, 1)
	received2 := make(chan ProcessStateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e ProcessStateChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e ProcessStateChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(ProcessStateChangedEvent{ID: "web", OldState: "not_started", NewState: "running"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ProcessErrorEvent, 1)

	unsub := bus.Subscribe(func(e ProcessErrorEvent) {
		received <- e
	})

	bus.Publish(ProcessErrorEvent{ID: "a"})
	<-received

	unsub()

	bus.Publish(ProcessErrorEvent{ID: "b"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	addedReceived := make(chan bool, 1)
	removedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ ProcessAddedEvent) {
		addedReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ ProcessRemovedEvent) {
		removedReceived <- true
	})
	defer unsub2()

	bus.Publish(ProcessAddedEvent{ID: "a"})
	<-addedReceived

	select {
	case <-removedReceived:
		t.Fatal("Removed subscriber should NOT have received ProcessAddedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(ProcessRemovedEvent{ID: "a"})
	<-removedReceived

	select {
	case <-addedReceived:
		t.Fatal("Added subscriber should NOT have received ProcessRemovedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ ProcessOutputEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(ProcessOutputEvent{
					ID:        "spam",
					Stream:    "stdout",
					Line:      "x",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"ProcessStateChanged", ProcessStateChangedEvent{ID: "a"}},
		{"ProcessError", ProcessErrorEvent{ID: "a"}},
		{"ProcessOutput", ProcessOutputEvent{ID: "a"}},
		{"ProcessAdded", ProcessAddedEvent{ID: "a"}},
		{"ProcessRemoved", ProcessRemovedEvent{ID: "a"}},
		{"ConfigReloaded", ConfigReloadedEvent{Path: "p"}},
		{"ConfigError", ConfigErrorEvent{Path: "p"}},
		{"ProcessMetrics", ProcessMetricsEvent{ID: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case ProcessStateChangedEvent:
				unsub = bus.Subscribe(func(e ProcessStateChangedEvent) { received <- e })
			case ProcessErrorEvent:
				unsub = bus.Subscribe(func(e ProcessErrorEvent) { received <- e })
			case ProcessOutputEvent:
				unsub = bus.Subscribe(func(e ProcessOutputEvent) { received <- e })
			case ProcessAddedEvent:
				unsub = bus.Subscribe(func(e ProcessAddedEvent) { received <- e })
			case ProcessRemovedEvent:
				unsub = bus.Subscribe(func(e ProcessRemovedEvent) { received <- e })
			case ConfigReloadedEvent:
				unsub = bus.Subscribe(func(e ConfigReloadedEvent) { received <- e })
			case ConfigErrorEvent:
				unsub = bus.Subscribe(func(e ConfigErrorEvent) { received <- e })
			case ProcessMetricsEvent:
				unsub = bus.Subscribe(func(e ProcessMetricsEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestProcessStateChangedEventJSON(t *testing.T) {
	code := 0
	data, err := json.Marshal(ProcessStateChangedEvent{
		ID:        "web",
		OldState:  "running",
		NewState:  "exited",
		ExitCode:  &code,
		Timestamp: "2025-01-27T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if result["exit_code"] != float64(0) {
		t.Errorf("expected exit_code 0 to be present, got %v", result["exit_code"])
	}
	if _, ok := result["error"]; ok {
		t.Error("expected empty error to be omitted")
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[ProcessAddedEvent](bus, ch)
	defer unsub()

	bus.Publish(ProcessAddedEvent{ID: "web"})

	received := <-ch
	ev, ok := received.(ProcessAddedEvent)
	if !ok {
		t.Fatalf("Expected ProcessAddedEvent, got %T", received)
	}
	if ev.ID != "web" {
		t.Errorf("Expected id web, got %s", ev.ID)
	}
}

func TestSubscribeToChannelFiltered(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannelFiltered(bus, ch, func(e ProcessOutputEvent) bool { return e.ID == "keep" })
	defer unsub()

	bus.Publish(ProcessOutputEvent{ID: "drop", Line: "1"})
	bus.Publish(ProcessOutputEvent{ID: "keep", Line: "2"})

	select {
	case got := <-ch:
		if ev := got.(ProcessOutputEvent); ev.ID != "keep" {
			t.Errorf("expected only kept events, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for filtered event")
	}
	select {
	case got := <-ch:
		t.Errorf("unexpected extra event %+v", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[ProcessRemovedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(ProcessRemovedEvent{ID: "a"})
		done <- true
	}()

	<-done // Should complete without blocking
}
