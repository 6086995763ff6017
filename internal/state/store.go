package state

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/adaptive-input/internal/gate"
	"github.com/danielpatrickdp/adaptive-input/internal/phenotype"
)

// #region store-struct
// Store owns the canonical phenotype for one player session. Readers load
// the current immutable snapshot without locking; the single writer
// publishes a new snapshot with an atomic swap.
type Store struct {
	current atomic.Pointer[phenotype.Phenotype]

	mu       sync.Mutex // serialises writers only
	gate     *gate.Gate
	history  []CommitRecord
	onCommit func(phenotype.Phenotype, CommitRecord)
	now      func() time.Time
}

// #endregion store-struct

// #region constructor
// NewStore creates a store seeded with initial, which must be valid.
func NewStore(initial phenotype.Phenotype, g *gate.Gate) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial phenotype: %w", err)
	}
	if g == nil {
		g = gate.NewGate(gate.DefaultGateConfig())
	}
	s := &Store{
		gate:    g,
		history: make([]CommitRecord, 0, HistoryLimit),
		now:     func() time.Time { return time.Now().UTC() },
	}
	p := initial
	s.current.Store(&p)
	return s, nil
}

// #endregion constructor

// #region readers
// Current returns a copy of the current snapshot.
func (s *Store) Current() phenotype.Phenotype {
	return *s.current.Load()
}

// Snapshot returns the current snapshot pointer. Callers must treat it as
// read-only; it is never mutated after publication.
func (s *Store) Snapshot() *phenotype.Phenotype {
	return s.current.Load()
}

// Gate returns the gate used to validate commits.
func (s *Store) Gate() *gate.Gate { return s.gate }

// History returns the audit trail, oldest first.
func (s *Store) History() []CommitRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommitRecord, len(s.history))
	copy(out, s.history)
	return out
}

// #endregion readers

// #region commit
// OnCommit registers a hook invoked after each successful commit, under
// the writer lock. Hooks must not call back into Commit.
func (s *Store) OnCommit(fn func(phenotype.Phenotype, CommitRecord)) {
	s.mu.Lock()
	s.onCommit = fn
	s.mu.Unlock()
}

// Commit validates delta against the current snapshot through the gate.
// Fields over the gradual-adaptation cap are clamped; a severe violation
// returns a *RejectedDeltaError and leaves the snapshot unchanged.
func (s *Store) Commit(delta phenotype.Delta) (phenotype.Phenotype, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	decision := s.gate.Evaluate(*prev, delta)
	now := s.now()

	if decision.Action != "commit" {
		s.record(CommitRecord{
			ParentID:    prev.VersionID,
			Epoch:       prev.Epoch,
			Decision:    decision.Action,
			Reason:      decision.Reason,
			Adjustments: decision.Adjustments,
			Delta:       delta,
			At:          now,
		})
		return *prev, &RejectedDeltaError{Decision: decision}
	}

	next := decision.Proposed
	next.Epoch = prev.Epoch + 1
	next.ParentID = prev.VersionID
	next.VersionID = uuid.New().String()
	next.CommittedAt = now
	s.current.Store(&next)

	rec := CommitRecord{
		VersionID:   next.VersionID,
		ParentID:    next.ParentID,
		Epoch:       next.Epoch,
		Decision:    "commit",
		Reason:      delta.Reason,
		Adjustments: decision.Adjustments,
		Delta:       phenotype.Diff(*prev, next),
		At:          now,
	}
	s.record(rec)
	if s.onCommit != nil {
		s.onCommit(next, rec)
	}
	return next, nil
}

// Replace swaps in a restored phenotype, bypassing the gradual constraint.
// Used at session start when loading a persisted profile.
func (s *Store) Replace(p phenotype.Phenotype) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("replace phenotype: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(&p)
	return nil
}

func (s *Store) record(rec CommitRecord) {
	if len(s.history) == HistoryLimit {
		copy(s.history, s.history[1:])
		s.history = s.history[:HistoryLimit-1]
	}
	s.history = append(s.history, rec)
}

// #endregion commit
