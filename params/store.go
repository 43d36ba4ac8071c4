package params

import (
	"sync"

	"github.com/skyhookml/distrain/distrain"
)

// Store holds the current global weights for one training session. The mode
// decides the locking discipline on ApplyDelta: asynchronous serializes
// deltas so the accumulated sum is deterministic (up to arrival order),
// hogwild applies them without mutual exclusion and accepts lost updates.
type Store struct {
	mode    distrain.Mode
	mu      sync.Mutex
	weights distrain.WeightSet
}

func NewStore(mode distrain.Mode, initial distrain.WeightSet) *Store {
	return &Store{
		mode:    mode,
		weights: initial.Copy(),
	}
}

func (s *Store) locked() bool {
	return s.mode != distrain.Hogwild
}

// Get returns a snapshot copy of the current weights.
func (s *Store) Get() distrain.WeightSet {
	if s.locked() {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.weights.Copy()
}

// Set replaces the weights wholesale. Used for initialization and for the
// final sync after asynchronous training completes.
func (s *Store) Set(w distrain.WeightSet) {
	if s.locked() {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	s.weights = w.Copy()
}

// ApplyDelta applies current = current - delta. In hogwild mode this runs
// unlocked on purpose; the race is the mode's defining tradeoff.
func (s *Store) ApplyDelta(delta distrain.WeightSet) error {
	if s.locked() {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	updated, err := distrain.SubtractParams(s.weights, delta)
	if err != nil {
		return err
	}
	s.weights = updated
	return nil
}
