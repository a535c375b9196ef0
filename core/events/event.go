package events

import "termlend/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Flattener is implemented by events that can render themselves as a
// types.Event for persistence and export.
type Flattener interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (audit store, metrics,
// gateway).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers each event to every wrapped emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. Tests and the simulator use
// it to inspect activity.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil {
		return
	}
	r.Events = append(r.Events, evt)
}

// Types returns the event types recorded so far.
func (r *Recorder) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Events))
	for _, evt := range r.Events {
		out = append(out, evt.EventType())
	}
	return out
}

// Flatten converts an event to its types.Event form when supported.
func Flatten(evt Event) *types.Event {
	if f, ok := evt.(Flattener); ok {
		return f.Event()
	}
	if evt == nil {
		return nil
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
