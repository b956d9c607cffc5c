// Package workflow drives the audit pipeline: run admission, plan
// execution, progress streaming, scheduling and notifications.
package workflow

import (
	"sync"
)

// Event is one progress item on a run's stream.
type Event struct {
	Event   string                 `json:"event"`
	Payload map[string]interface{} `json:"payload"`
}

// RunResult is the in-memory outcome snapshot served to download and
// confirm-send requests. It does not survive a restart; the durable
// manifest on disk is the source of truth after that.
type RunResult struct {
	RunId        string `json:"run_id"`
	PackagePath  string `json:"package_path"`
	ManifestPath string `json:"manifest_path"`
	SummaryText  string `json:"summary_text"`
	Failed       bool   `json:"failed"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// stream is an unbounded single-producer/single-consumer event queue.
// Closing it is the stream-termination sentinel: consumers drain what is
// buffered and then observe the end of the stream.
type stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

func newStream() *stream {
	s := &stream{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *stream) push(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.items = append(s.items, event)
	s.cond.Signal()
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Broadcast()
}

// Next blocks until an event is available or the stream is closed and
// drained; ok is false only at end of stream.
func (s *stream) Next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.items) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.items) == 0 {
		return Event{}, false
	}
	event := s.items[0]
	s.items = s.items[1:]
	return event, true
}

// Registry owns the run_id → stream and run_id → result tables behind a
// single internal lock. Callers never hold the lock across task execution;
// streams are registered before the producing worker is admitted, so a
// client can attach to the stream before the first event is published.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*stream
	results map[string]*RunResult
}

func NewRegistry() *Registry {
	return &Registry{
		streams: map[string]*stream{},
		results: map[string]*RunResult{},
	}
}

// Register creates the event stream for a run. Registering an existing
// run_id replaces the stale stream; run ids are unique process-wide.
func (r *Registry) Register(runId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[runId] = newStream()
}

// Subscribe returns the run's stream, or false for an unknown run.
func (r *Registry) Subscribe(runId string) (*stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[runId]
	return s, ok
}

// Publish appends an event to the run's stream. Publishing to an unknown
// or already-closed run is a no-op.
func (r *Registry) Publish(runId string, event string, payload map[string]interface{}) {
	r.mu.Lock()
	s := r.streams[runId]
	r.mu.Unlock()
	if s != nil {
		s.push(Event{Event: event, Payload: payload})
	}
}

// Close terminates the run's stream and unregisters it. Subscribed
// consumers drain buffered events and then observe end of stream.
func (r *Registry) Close(runId string) {
	r.mu.Lock()
	s := r.streams[runId]
	delete(r.streams, runId)
	r.mu.Unlock()
	if s != nil {
		s.close()
	}
}

func (r *Registry) SetResult(result *RunResult) {
	if result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.RunId] = result
}

func (r *Registry) Result(runId string) (*RunResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[runId]
	return result, ok
}
