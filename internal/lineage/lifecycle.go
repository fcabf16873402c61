package lineage

import (
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors for state transition validation.
var (
	// ErrInvalidTransition indicates an invalid state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminalStateImmutable indicates an attempt to transition from a terminal state.
	ErrTerminalStateImmutable = errors.New("terminal state is immutable")

	// ErrDuplicateStart indicates a duplicate START event for the same run.
	ErrDuplicateStart = errors.New("duplicate START event")

	// ErrBackwardTransition indicates an attempt to transition backwards (e.g., RUNNING → START).
	ErrBackwardTransition = errors.New("cannot transition backwards")
)

// ValidateStateTransition validates a state transition according to OpenLineage run cycle.
//
// Valid transitions:
//   - START → {RUNNING, COMPLETE, FAIL, ABORT}
//   - RUNNING → {RUNNING, COMPLETE, FAIL, ABORT}
//   - COMPLETE/FAIL/ABORT → same state (idempotent)
//   - OTHER → any state, any state → OTHER
//
// Spec: https://openlineage.io/docs/spec/run-cycle#run-states
func ValidateStateTransition(from, to EventType) error {
	if from == EventTypeOther || to == EventTypeOther {
		return nil
	}

	if from.IsTerminal() {
		if from != to {
			return fmt.Errorf("%w: %s → %s", ErrTerminalStateImmutable, from, to)
		}

		return nil
	}

	switch from {
	case EventTypeStart:
		if to == EventTypeStart {
			return fmt.Errorf("%w: run already has START state", ErrDuplicateStart)
		}

		return nil
	case EventTypeRunning:
		if to == EventTypeStart {
			return fmt.Errorf("%w: RUNNING → START", ErrBackwardTransition)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
}

// Tracker follows the state of a single run so that a client never emits an
// out-of-cycle event, such as COMPLETE after FAIL or a second START.
//
// A Tracker is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	runID string
	state EventType
}

// NewTracker creates a Tracker for the run identified by runID.
func NewTracker(runID string) *Tracker {
	return &Tracker{runID: runID}
}

// RunID returns the identifier of the tracked run.
func (t *Tracker) RunID() string {
	return t.runID
}

// State returns the last accepted non-OTHER state, or "" before the first one.
func (t *Tracker) State() EventType {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// Advance records a transition to next. It returns an error from
// ValidateStateTransition and leaves the state unchanged when the transition
// is invalid. The first state of a run may be anything.
func (t *Tracker) Advance(next EventType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if next == EventTypeOther {
		return nil
	}

	if t.state != "" {
		if err := ValidateStateTransition(t.state, next); err != nil {
			return fmt.Errorf("run %s: %w", t.runID, err)
		}
	}

	t.state = next

	return nil
}
