package simulation

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type brokerRequest struct {
	apply func(parts *[4]ApproachState)
	done  chan struct{}
}

// BrokerStore isolates approach state behind a single owner goroutine.
// Callers never touch the owned records: every request works on a copy that
// is moved back in once the request completes, so no vehicle data is aliased
// between an approach actor and the broker.
type BrokerStore struct {
	requests chan brokerRequest
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// final is written by the broker goroutine before done is closed
	final [4]ApproachState

	completed atomic.Int64
	cycle     atomic.Int64
}

// NewBrokerStore starts the broker goroutine. Close must be called to stop it.
func NewBrokerStore() *BrokerStore {
	b := &BrokerStore{
		requests: make(chan brokerRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go b.serve()
	return b
}

func (b *BrokerStore) serve() {
	var parts [4]ApproachState
	for {
		select {
		case req := <-b.requests:
			req.apply(&parts)
			close(req.done)
		case <-b.quit:
			b.final = parts
			close(b.done)
			return
		}
	}
}

func (b *BrokerStore) do(apply func(parts *[4]ApproachState)) error {
	req := brokerRequest{apply: apply, done: make(chan struct{})}
	select {
	case b.requests <- req:
	case <-b.quit:
		return ErrStoreClosed
	}
	<-req.done
	return nil
}

func (b *BrokerStore) closedState(dir Direction) (ApproachState, bool) {
	select {
	case <-b.done:
		return b.final[dir].Clone(), true
	default:
		return ApproachState{}, false
	}
}

func (b *BrokerStore) Snapshot(dir Direction) (ApproachState, error) {
	if !dir.Valid() {
		return ApproachState{}, fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
	if st, ok := b.closedState(dir); ok {
		return st, nil
	}
	var out ApproachState
	err := b.do(func(parts *[4]ApproachState) {
		out = parts[dir].Clone()
	})
	if err != nil {
		<-b.done
		return b.final[dir].Clone(), nil
	}
	return out, nil
}

func (b *BrokerStore) SnapshotAll() ([4]ApproachState, error) {
	var out [4]ApproachState
	err := b.do(func(parts *[4]ApproachState) {
		for i := range parts {
			out[i] = parts[i].Clone()
		}
	})
	if err != nil {
		<-b.done
		for i := range b.final {
			out[i] = b.final[i].Clone()
		}
	}
	return out, nil
}

func (b *BrokerStore) Color(dir Direction) (LightColor, error) {
	st, err := b.Snapshot(dir)
	return st.Color, err
}

func (b *BrokerStore) Mutate(dir Direction, fn func(*ApproachState)) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownDirection, int(dir))
	}
	return b.do(func(parts *[4]ApproachState) {
		moved := parts[dir].Clone()
		fn(&moved)
		parts[dir] = moved.Clone()
	})
}

func (b *BrokerStore) Transfer(from, to Direction, fn func(from, to *ApproachState)) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %d -> %d", ErrUnknownDirection, int(from), int(to))
	}
	if from == to {
		return fmt.Errorf("transfer within %s", from)
	}
	return b.do(func(parts *[4]ApproachState) {
		src, dst := parts[from].Clone(), parts[to].Clone()
		fn(&src, &dst)
		parts[from], parts[to] = src.Clone(), dst.Clone()
	})
}

func (b *BrokerStore) Counters() Counters {
	return Counters{
		Completed: b.completed.Load(),
		Cycle:     b.cycle.Load(),
	}
}

func (b *BrokerStore) IncrementCompleted() int64 {
	return b.completed.Add(1)
}

func (b *BrokerStore) IncrementCycle() int64 {
	return b.cycle.Add(1)
}

func (b *BrokerStore) Close() {
	b.stopOnce.Do(func() {
		close(b.quit)
	})
	<-b.done
}
