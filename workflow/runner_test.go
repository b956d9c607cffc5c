package workflow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/auditecx/audit_backend/planner"
)

func drain(t *testing.T, s *stream) []Event {
	t.Helper()
	done := make(chan []Event, 1)
	go func() {
		var events []Event
		for {
			event, ok := s.Next()
			if !ok {
				done <- events
				return
			}
			events = append(events, event)
		}
	}()
	select {
	case events := <-done:
		return events
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not close")
		return nil
	}
}

func testRunner(t *testing.T, adapter planner.Adapter) *Runner {
	t.Helper()
	pool := NewPool(1, 4, testLogger())
	t.Cleanup(pool.Shutdown)
	notifications := NewNotificationLog(filepath.Join(t.TempDir(), "notifications.json"))
	return NewRunner(NewRegistry(), pool, testOrchestrator(t), notifications, adapter, testLogger())
}

func TestRunner_SubmitCompletesRun(t *testing.T) {
	runner := testRunner(t, &planner.MockAdapter{})

	runId, parsed, err := runner.Submit("Prepare the audit package for VEND-100", SubmitOptions{Email: "auditor@example.com"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if parsed.Intent != "generate_package" {
		t.Fatalf("intent = %s", parsed.Intent)
	}

	s, ok := runner.Registry.Subscribe(runId)
	if !ok {
		t.Fatalf("stream not registered before Submit returned")
	}
	events := drain(t, s)

	var sawComplete, sawChunk bool
	for _, event := range events {
		switch event.Event {
		case "complete":
			sawComplete = true
			if event.Payload["email"] != "auditor@example.com" {
				t.Fatalf("complete payload = %v", event.Payload)
			}
		case "summary_chunk":
			sawChunk = true
		case "error":
			t.Fatalf("unexpected error event: %v", event.Payload)
		}
	}
	if !sawComplete || !sawChunk {
		t.Fatalf("complete=%v chunk=%v events=%v", sawComplete, sawChunk, events)
	}

	result, ok := runner.Registry.Result(runId)
	if !ok || result.Failed || result.PackagePath == "" {
		t.Fatalf("result = %+v ok=%v", result, ok)
	}
}

func TestRunner_AdapterFailureFallsBackToStaticPlan(t *testing.T) {
	runner := testRunner(t, &planner.MockAdapter{Err: errors.New("adapter offline")})

	runId, _, err := runner.Submit("Prepare the audit package for VEND-100", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit should fall back, got %v", err)
	}

	s, _ := runner.Registry.Subscribe(runId)
	events := drain(t, s)
	for _, event := range events {
		if event.Event == "complete" {
			return
		}
	}
	t.Fatalf("run did not complete under static fallback: %v", events)
}

func TestRunner_DryRunSkipsPackage(t *testing.T) {
	runner := testRunner(t, &planner.MockAdapter{})

	runId, _, err := runner.Submit("Generate the audit package for VEND-100", SubmitOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s, _ := runner.Registry.Subscribe(runId)
	drain(t, s)

	result, ok := runner.Registry.Result(runId)
	if !ok || result.Failed {
		t.Fatalf("result = %+v ok=%v", result, ok)
	}
	if result.PackagePath != "" {
		t.Fatalf("dry run produced package %s", result.PackagePath)
	}
}

func TestRunner_SaturatedPoolClosesStream(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	t.Cleanup(pool.Shutdown)
	runner := NewRunner(NewRegistry(), pool, testOrchestrator(t), nil, &planner.MockAdapter{}, testLogger())

	// Occupy the worker and the single queue slot.
	block := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) { close(started); <-block }); err != nil {
		t.Fatalf("Submit filler: %v", err)
	}
	<-started
	if err := pool.Submit(func(ctx context.Context) {}); err != nil {
		t.Fatalf("Submit filler: %v", err)
	}

	_, _, err := runner.Submit("Prepare audit package for VEND-100", SubmitOptions{})
	if !errors.Is(err, ErrPoolSaturated) {
		t.Fatalf("err = %v, want ErrPoolSaturated", err)
	}
	close(block)
}
