package input

import (
	"sync"
	"testing"
	"time"
)

type recordingSynth struct {
	mu     sync.Mutex
	events []Event
	x, y   int
}

func (r *recordingSynth) Synthesize(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSynth) Scroll(direction string, amount int) error {
	return r.Synthesize(Event{Action: "scroll:" + direction, DeltaY: amount})
}

func (r *recordingSynth) CursorPosition() (int, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.x, r.y, true
}

func (r *recordingSynth) recorded() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"input","action":"mouse_click","x":10,"y":20,"button":"left"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Action != ActionMouseClick || ev.X != 10 || ev.Y != 20 || ev.Button != "left" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestParseEventRejectsMissingAction(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"x":1}`)); err == nil {
		t.Fatal("expected error for event without action")
	}
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	synth := &recordingSynth{}
	d := NewDispatcher(synth)
	defer d.Close()

	d.Send(Event{Action: ActionMouseMove, X: 1})
	d.Send(Event{Action: ActionMouseMove, X: 2})
	d.Send(Event{Action: ActionMouseClick, X: 2, Button: "left"})

	deadline := time.Now().Add(time.Second)
	for len(synth.recorded()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	got := synth.recorded()
	if len(got) != 3 {
		t.Fatalf("delivered %d events, want 3", len(got))
	}
	if got[0].X != 1 || got[1].X != 2 || got[2].Action != ActionMouseClick {
		t.Fatalf("events out of order: %+v", got)
	}
}
