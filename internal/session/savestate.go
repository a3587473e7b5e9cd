package session

import (
	"sync"

	"github.com/andreddluiz/shiftflow/internal/events"
)

// SaveState is the save indicator shown to the operator.
type SaveState string

const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveFailed SaveState = "failed"
)

// Tracker holds the current save indicator and publishes transitions on the
// event bus.
type Tracker struct {
	mu    sync.Mutex
	state SaveState
	bus   *events.Bus
}

func NewTracker(bus *events.Bus) *Tracker {
	return &Tracker{state: SaveIdle, bus: bus}
}

func (t *Tracker) Current() SaveState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Set transitions the indicator, publishing only actual changes.
func (t *Tracker) Set(state SaveState) {
	t.mu.Lock()
	changed := t.state != state
	t.state = state
	t.mu.Unlock()

	if changed {
		t.bus.Publish(events.EventSaveState, state)
	}
}
