package simulation

import (
	"sync"
	"time"
)

// TrafficStats aggregates wait-time samples of completed vehicles
type TrafficStats struct {
	TotalVehicles int     `json:"total_vehicles"`
	TotalWaitTime float64 `json:"total_wait_time"`
}

func (s *TrafficStats) add(wait time.Duration) {
	s.TotalVehicles++
	s.TotalWaitTime += wait.Seconds()
}

// Average returns the mean wait in seconds, or 0 without samples
func (s TrafficStats) Average() float64 {
	if s.TotalVehicles == 0 {
		return 0
	}
	return s.TotalWaitTime / float64(s.TotalVehicles)
}

// StatsSink receives one sample per completed vehicle
type StatsSink interface {
	Record(wait time.Duration)
	Stats() TrafficStats
	// Close stops accepting samples. Stats stays readable afterwards.
	Close()
}

// LockedStats updates the aggregate in place under a mutex
type LockedStats struct {
	mu     sync.Mutex
	closed bool
	stats  TrafficStats
}

func NewLockedStats() *LockedStats {
	return &LockedStats{}
}

func (s *LockedStats) Record(wait time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stats.add(wait)
}

func (s *LockedStats) Stats() TrafficStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *LockedStats) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// ChannelStats decouples producers from aggregation: samples go onto an
// unbounded FIFO and a single consumer folds them into the aggregate.
// Stats may lag behind Record until the queue drains; after Close returns
// every recorded sample has been applied.
type ChannelStats struct {
	sendMu sync.RWMutex
	closed bool
	in     chan time.Duration

	mu    sync.Mutex
	stats TrafficStats
	done  chan struct{}
}

func NewChannelStats() *ChannelStats {
	s := &ChannelStats{
		in:   make(chan time.Duration),
		done: make(chan struct{}),
	}
	out := make(chan time.Duration)
	go s.pump(out)
	go s.consume(out)
	return s
}

// pump buffers samples without bound between producers and the consumer
func (s *ChannelStats) pump(out chan<- time.Duration) {
	defer close(out)
	var queue []time.Duration
	in := s.in
	for in != nil || len(queue) > 0 {
		var send chan<- time.Duration
		var head time.Duration
		if len(queue) > 0 {
			send = out
			head = queue[0]
		}
		select {
		case sample, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, sample)
		case send <- head:
			queue = queue[1:]
		}
	}
}

func (s *ChannelStats) consume(out <-chan time.Duration) {
	defer close(s.done)
	for sample := range out {
		s.mu.Lock()
		s.stats.add(sample)
		s.mu.Unlock()
	}
}

func (s *ChannelStats) Record(wait time.Duration) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return
	}
	s.in <- wait
}

func (s *ChannelStats) Stats() TrafficStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *ChannelStats) Close() {
	s.sendMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.in)
	}
	s.sendMu.Unlock()
	<-s.done
}
