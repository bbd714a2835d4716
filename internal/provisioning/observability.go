package provisioning

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured events emitted while a run executes.
type Observer interface {
	// Event emits a structured event
	Event(event Event)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured provisioning event.
type Event struct {
	Type      EventType         // Type of event
	RunID     string            // Run the event belongs to
	Vendor    string            // Vendor id, empty for run-level events
	Message   string            // Human-readable message
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of provisioning event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunPaused    EventType = "run.paused"
	EventRunResumed   EventType = "run.resumed"
	EventRunCancelled EventType = "run.cancelled"
	EventRunCompleted EventType = "run.completed"

	EventTaskStarted   EventType = "task.started"
	EventTaskStep      EventType = "task.step"
	EventTaskRetry     EventType = "task.retry"
	EventTaskSucceeded EventType = "task.succeeded"
	EventTaskFailed    EventType = "task.failed"
	EventTaskSkipped   EventType = "task.skipped"

	EventWaitOpened    EventType = "wait.opened"
	EventWaitHeartbeat EventType = "wait.heartbeat"
	EventWaitClosed    EventType = "wait.closed"

	EventConflictOpened   EventType = "conflict.opened"
	EventConflictResolved EventType = "conflict.resolved"
)

// LogObserver writes events to a logr.Logger.
type LogObserver struct {
	log           logr.Logger
	contextFields map[string]string
}

// NewLogObserver creates an observer that logs through log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{
		log:           log,
		contextFields: make(map[string]string),
	}
}

// Event implements Observer interface.
func (o *LogObserver) Event(event Event) {
	kv := []any{"event", string(event.Type)}
	if event.RunID != "" {
		kv = append(kv, "run", event.RunID)
	}
	if event.Vendor != "" {
		kv = append(kv, "vendor", event.Vendor)
	}
	for _, k := range mergedKeys(o.contextFields, event.Fields) {
		v, ok := event.Fields[k]
		if !ok {
			v = o.contextFields[k]
		}
		kv = append(kv, k, v)
	}

	switch event.Type {
	case EventTaskFailed, EventRunCancelled:
		o.log.Error(nil, event.Message, kv...)
	case EventWaitHeartbeat, EventTaskStep:
		o.log.V(1).Info(event.Message, kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// WithFields implements Observer interface.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	newFields := make(map[string]string, len(o.contextFields)+len(fields))
	for k, v := range o.contextFields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &LogObserver{log: o.log, contextFields: newFields}
}

func mergedKeys(a, b map[string]string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]string{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// MultiObserver fans each event out to several observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver drops nil entries from observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, o := range observers {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
	return m
}

// Event implements Observer interface.
func (m *MultiObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, o := range m.observers {
		o.Event(event)
	}
}

// WithFields implements Observer interface.
func (m *MultiObserver) WithFields(fields map[string]string) Observer {
	out := &MultiObserver{observers: make([]Observer, 0, len(m.observers))}
	for _, o := range m.observers {
		out.observers = append(out.observers, o.WithFields(fields))
	}
	return out
}

// RecordingObserver keeps every event in memory. Safe for concurrent use.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

// Event implements Observer interface.
func (r *RecordingObserver) Event(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// WithFields returns the same recorder; context fields are not tracked.
func (r *RecordingObserver) WithFields(map[string]string) Observer { return r }

// Events returns a copy of the recorded events.
func (r *RecordingObserver) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events with the given type.
func (r *RecordingObserver) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Helper functions for common events

// LogTaskStarted logs a task start event.
func LogTaskStarted(observer Observer, runID, vendor string) {
	observer.Event(Event{
		Type:    EventTaskStarted,
		RunID:   runID,
		Vendor:  vendor,
		Message: "starting",
	})
}

// LogTaskFinished logs the terminal event matching snap.Status.
func LogTaskFinished(observer Observer, snap Snapshot) {
	e := Event{
		RunID:  snap.RunID,
		Vendor: snap.VendorID,
		Fields: map[string]string{
			"status":   string(snap.Status),
			"duration": snap.Duration().Round(time.Millisecond).String(),
		},
	}
	switch snap.Status {
	case StatusSucceeded:
		e.Type = EventTaskSucceeded
		e.Message = "account created"
	case StatusSkipped:
		e.Type = EventTaskSkipped
		e.Message = "skipped"
		e.Fields["reason"] = string(snap.Reason)
	default:
		e.Type = EventTaskFailed
		e.Message = "failed"
		e.Fields["kind"] = string(snap.ErrorKind)
		if n := len(snap.Errors); n > 0 {
			e.Message = fmt.Sprintf("failed: %s", snap.Errors[n-1])
		}
	}
	observer.Event(e)
}

// LogRetry logs a backoff before retry attempt of step.
func LogRetry(observer Observer, runID, vendor, step string, attempt int, delay time.Duration, err error) {
	observer.Event(Event{
		Type:    EventTaskRetry,
		RunID:   runID,
		Vendor:  vendor,
		Message: fmt.Sprintf("%s failed, retrying in %v: %v", step, delay, err),
		Fields: map[string]string{
			"step":    step,
			"attempt": fmt.Sprintf("%d", attempt),
		},
	})
}

// LogHeartbeat logs a liveness event of an open wait condition.
func LogHeartbeat(observer Observer, runID, vendor string, kind ChallengeKind, elapsed, remaining time.Duration) {
	observer.Event(Event{
		Type:    EventWaitHeartbeat,
		RunID:   runID,
		Vendor:  vendor,
		Message: fmt.Sprintf("waiting for %s challenge", kind),
		Fields: map[string]string{
			"challenge": string(kind),
			"elapsed":   elapsed.Round(time.Second).String(),
			"remaining": remaining.Round(time.Second).String(),
		},
	})
}
