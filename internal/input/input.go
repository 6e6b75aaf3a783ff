// Package input forwards client input events to the platform synthesizer.
// Synthesis itself is platform work behind the Synthesizer interface; the
// dispatcher decouples the session message loop from it with a dedicated
// worker so a slow platform call never stalls control traffic.
package input

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/screenlink/agent/internal/logging"
)

var log = logging.L("input")

// Event actions carried in the "input" control message.
const (
	ActionMouseMove   = "mouse_move"
	ActionMouseClick  = "mouse_click"
	ActionMouseDown   = "mouse_down"
	ActionMouseUp     = "mouse_up"
	ActionMouseScroll = "mouse_scroll"
	ActionKeyPress    = "key_press"
	ActionKeyType     = "key_type"
)

// Event is one client input event. Fields are populated per action.
type Event struct {
	Action string `json:"action"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Button string `json:"button,omitempty"`
	DeltaX int    `json:"delta_x,omitempty"`
	DeltaY int    `json:"delta_y,omitempty"`
	Key    string `json:"key,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ParseEvent decodes an input message payload.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("parse input event: %w", err)
	}
	if ev.Action == "" {
		return Event{}, errors.New("input event has no action")
	}
	return ev, nil
}

// Synthesizer injects events into the OS. Implemented per platform; the
// default build returns ErrNotSupported for everything so the streaming and
// control paths stay testable without an interactive session.
type Synthesizer interface {
	Synthesize(Event) error
	Scroll(direction string, amount int) error
	// CursorPosition reports the OS cursor location for mouse telemetry.
	// ok is false when the platform cannot provide it.
	CursorPosition() (x, y int, ok bool)
}

// ErrNotSupported is returned by the stub synthesizer.
var ErrNotSupported = errors.New("input synthesis not supported on this platform")

// Dispatcher serializes events onto a single worker goroutine, matching the
// one-synthesizer-handle-per-process constraint of most platforms.
type Dispatcher struct {
	synth Synthesizer
	queue chan Event
	done  chan struct{}
}

// NewDispatcher starts the worker. A nil synthesizer gets the platform stub.
func NewDispatcher(synth Synthesizer) *Dispatcher {
	if synth == nil {
		synth = newPlatformSynthesizer()
	}
	d := &Dispatcher{
		synth: synth,
		queue: make(chan Event, 64),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Send enqueues an event. Fire-and-forget: a full queue drops the event,
// which is acceptable for idempotent positional input.
func (d *Dispatcher) Send(ev Event) {
	select {
	case d.queue <- ev:
	case <-d.done:
	default:
		log.Warn("input queue full, event dropped", "action", ev.Action)
	}
}

// Scroll performs a directional scroll on behalf of the scroll control
// message. Runs inline; platform scroll calls are cheap.
func (d *Dispatcher) Scroll(direction string, amount int) error {
	return d.synth.Scroll(direction, amount)
}

// CursorPosition reports the current OS cursor position.
func (d *Dispatcher) CursorPosition() (int, int, bool) {
	return d.synth.CursorPosition()
}

// Close stops the worker. Queued events are discarded.
func (d *Dispatcher) Close() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.queue:
			if err := d.synth.Synthesize(ev); err != nil && !errors.Is(err, ErrNotSupported) {
				log.Warn("input synthesis failed", "action", ev.Action, "error", err)
			}
		}
	}
}
