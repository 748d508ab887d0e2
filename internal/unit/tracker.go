package unit

import (
	"fmt"
	"sync"
)

// Tracker owns the mutable state of one homogeneous collection of work
// units. It performs no I/O. All mutation goes through Transition so the
// lifecycle graph is enforced in exactly one place; readers get copies.
type Tracker struct {
	mu     sync.RWMutex
	units  []Unit
	byID   map[int64]int
	nextID int64
}

// NewTracker returns an empty tracker. IDs are assigned at Add time and
// never reused, even across Reset.
func NewTracker() *Tracker {
	return &Tracker{byID: make(map[int64]int), nextID: 1}
}

// Add appends a new pending unit for the given input and returns it.
func (t *Tracker) Add(inputRef string) Unit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(inputRef, 0, 0)
}

// AddTransition appends a new pending unit linking two source units.
func (t *Tracker) AddTransition(inputRef string, fromID, toID int64) Unit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(inputRef, fromID, toID)
}

func (t *Tracker) addLocked(inputRef string, fromID, toID int64) Unit {
	u := Unit{
		ID:       t.nextID,
		Status:   StatusPending,
		InputRef: inputRef,
		FromID:   fromID,
		ToID:     toID,
	}
	t.nextID++
	t.byID[u.ID] = len(t.units)
	t.units = append(t.units, u)
	return u
}

// Reset discards every unit. Used when a new source asset replaces the
// collection wholesale.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.units = nil
	t.byID = make(map[int64]int)
}

// Remove deletes a unit by id. Its id is not reused.
func (t *Tracker) Remove(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.byID[id]
	if !ok {
		return false
	}
	t.units = append(t.units[:idx], t.units[idx+1:]...)
	delete(t.byID, id)
	for i := idx; i < len(t.units); i++ {
		t.byID[t.units[i].ID] = i
	}
	return true
}

// Transition atomically applies a status change plus field patch to one
// unit. A transition that violates the lifecycle graph is rejected with an
// error and leaves the unit untouched; callers log and move on.
func (t *Tracker) Transition(id int64, to Status, patch Patch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("unit %d not found", id)
	}
	u := &t.units[idx]
	if !CanTransition(u.Status, to) {
		return fmt.Errorf("unit %d: illegal transition %s -> %s", id, u.Status, to)
	}
	u.Status = to
	if to == StatusProcessing {
		// Retry attempt start clears the previous failure.
		u.ErrorDetail = ""
	}
	if patch.OutputRef != nil {
		u.OutputRef = *patch.OutputRef
	}
	if patch.ErrorDetail != nil {
		u.ErrorDetail = *patch.ErrorDetail
	}
	return nil
}

// Get returns a copy of one unit.
func (t *Tracker) Get(id int64) (Unit, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.byID[id]
	if !ok {
		return Unit{}, false
	}
	return t.units[idx], true
}

// Snapshot returns a copy of every unit in insertion order.
func (t *Tracker) Snapshot() []Unit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := make([]Unit, len(t.units))
	copy(cp, t.units)
	return cp
}

// Len returns the number of tracked units.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.units)
}

// Aggregate derives status counts and a completion percentage. It informs
// display only; control decisions use AllTerminal.
func (t *Tracker) Aggregate() Aggregate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	agg := Aggregate{Total: len(t.units)}
	for _, u := range t.units {
		switch u.Status {
		case StatusPending:
			agg.Pending++
		case StatusProcessing:
			agg.Processing++
		case StatusCompleted:
			agg.Completed++
		case StatusError:
			agg.Error++
		}
	}
	if agg.Total > 0 {
		agg.Percent = float64(agg.Completed) / float64(agg.Total) * 100
	}
	return agg
}

// AllTerminal reports whether every unit has completed. A single error or
// pending unit keeps the collection non-terminal; it must be retried or
// explicitly removed.
func (t *Tracker) AllTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.units) == 0 {
		return false
	}
	for _, u := range t.units {
		if !u.Status.IsTerminal() {
			return false
		}
	}
	return true
}
