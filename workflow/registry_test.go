package workflow

import (
	"testing"
	"time"
)

func TestRegistry_BuffersEventsBeforeSubscribe(t *testing.T) {
	registry := NewRegistry()
	registry.Register("run-1")
	registry.Publish("run-1", "status", map[string]interface{}{"status": "running"})
	registry.Publish("run-1", "documents_ready", map[string]interface{}{"count": 2})

	stream, ok := registry.Subscribe("run-1")
	if !ok {
		t.Fatalf("expected stream for registered run")
	}
	first, ok := stream.Next()
	if !ok || first.Event != "status" {
		t.Fatalf("first event = %+v ok=%v", first, ok)
	}
	second, ok := stream.Next()
	if !ok || second.Event != "documents_ready" {
		t.Fatalf("second event = %+v ok=%v", second, ok)
	}
}

func TestRegistry_CloseDrainsThenEnds(t *testing.T) {
	registry := NewRegistry()
	registry.Register("run-2")
	registry.Publish("run-2", "status", nil)

	stream, ok := registry.Subscribe("run-2")
	if !ok {
		t.Fatalf("expected stream")
	}
	registry.Close("run-2")

	if _, ok := stream.Next(); !ok {
		t.Fatalf("buffered event should still be delivered after close")
	}
	if _, ok := stream.Next(); ok {
		t.Fatalf("expected end of stream after drain")
	}
	// Closed runs are unregistered and ignore further publishes.
	if _, ok := registry.Subscribe("run-2"); ok {
		t.Fatalf("closed run should be unregistered")
	}
	registry.Publish("run-2", "status", nil)
}

func TestRegistry_NextBlocksUntilPublish(t *testing.T) {
	registry := NewRegistry()
	registry.Register("run-3")
	stream, _ := registry.Subscribe("run-3")

	done := make(chan Event, 1)
	go func() {
		event, _ := stream.Next()
		done <- event
	}()

	time.Sleep(10 * time.Millisecond)
	registry.Publish("run-3", "complete", nil)

	select {
	case event := <-done:
		if event.Event != "complete" {
			t.Fatalf("event = %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("Next did not wake after publish")
	}
}

func TestRegistry_Results(t *testing.T) {
	registry := NewRegistry()
	if _, ok := registry.Result("missing"); ok {
		t.Fatalf("unexpected result for unknown run")
	}
	registry.SetResult(&RunResult{RunId: "run-4", PackagePath: "out/package_run-4.zip"})
	result, ok := registry.Result("run-4")
	if !ok || result.PackagePath != "out/package_run-4.zip" {
		t.Fatalf("result = %+v ok=%v", result, ok)
	}
}
