package simulation

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrStoreClosed is returned by mutations after the store was torn down
	ErrStoreClosed = errors.New("store closed")
	// ErrUnknownDirection is returned for a direction outside the four approaches
	ErrUnknownDirection = errors.New("unknown direction")
)

// Store is the synchronization contract shared by every actor. Mutations of
// one approach are serialized; mutations of different approaches are
// independent. Readers only ever see fully applied writes.
type Store interface {
	// Snapshot returns a copy of one approach
	Snapshot(dir Direction) (ApproachState, error)
	// SnapshotAll copies every approach at a single point in time, indexed
	// by Direction
	SnapshotAll() ([4]ApproachState, error)
	// Color returns the light currently shown to one approach
	Color(dir Direction) (LightColor, error)
	// Mutate applies fn atomically with respect to other mutators of dir
	Mutate(dir Direction, fn func(*ApproachState)) error
	// Transfer applies fn to two approaches at once, so a vehicle moved
	// between them is never visible in neither or in both
	Transfer(from, to Direction, fn func(from, to *ApproachState)) error
	Counters() Counters
	IncrementCompleted() int64
	IncrementCycle() int64
	// Close tears the store down. Later mutations fail with ErrStoreClosed;
	// reads keep returning the final state.
	Close()
}

type partition struct {
	mu    sync.RWMutex
	state ApproachState
}

// MemoryStore keeps all approaches in one address space, each behind its
// own lock
type MemoryStore struct {
	parts     [4]partition
	completed atomic.Int64
	cycle     atomic.Int64
	closed    atomic.Bool
}

// NewMemoryStore creates a store with every approach red and empty
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) part(dir Direction) (*partition, error) {
	if !dir.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
	return &s.parts[dir], nil
}

func (s *MemoryStore) Snapshot(dir Direction) (ApproachState, error) {
	p, err := s.part(dir)
	if err != nil {
		return ApproachState{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Clone(), nil
}

func (s *MemoryStore) SnapshotAll() ([4]ApproachState, error) {
	var out [4]ApproachState
	for i := range s.parts {
		s.parts[i].mu.RLock()
		defer s.parts[i].mu.RUnlock()
	}
	for i := range s.parts {
		out[i] = s.parts[i].state.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Color(dir Direction) (LightColor, error) {
	p, err := s.part(dir)
	if err != nil {
		return Red, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Color, nil
}

func (s *MemoryStore) Mutate(dir Direction, fn func(*ApproachState)) error {
	p, err := s.part(dir)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.closed.Load() {
		return ErrStoreClosed
	}
	fn(&p.state)
	return nil
}

func (s *MemoryStore) Transfer(from, to Direction, fn func(from, to *ApproachState)) error {
	src, err := s.part(from)
	if err != nil {
		return err
	}
	dst, err := s.part(to)
	if err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("transfer within %s", from)
	}

	// Locks are always taken in canonical order so two transfers running
	// around the ring cannot deadlock.
	first, second := src, dst
	if to < from {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if s.closed.Load() {
		return ErrStoreClosed
	}
	fn(&src.state, &dst.state)
	return nil
}

func (s *MemoryStore) Counters() Counters {
	return Counters{
		Completed: s.completed.Load(),
		Cycle:     s.cycle.Load(),
	}
}

func (s *MemoryStore) IncrementCompleted() int64 {
	return s.completed.Add(1)
}

func (s *MemoryStore) IncrementCycle() int64 {
	return s.cycle.Add(1)
}

func (s *MemoryStore) Close() {
	s.closed.Store(true)
}
