// internal/storage/memory.go
package storage

import (
	"fmt"
	"math"
	"sync"
	"time"

	"smart-home-gateway/internal/data"
)

const defaultCapacity = 1000 // last 1000 samples per channel, same bound as /history1000

// MemoryStore holds one bounded ring buffer per sensor channel. The channel
// set is fixed at construction, so the map itself is read-only and each
// buffer carries its own lock: writers to the same channel serialize,
// writers to different channels never block each other.
type MemoryStore struct {
	channels map[data.Channel]*channelBuffer
}

type channelBuffer struct {
	mu       sync.RWMutex
	buf      []data.Sample
	head     int // index of the oldest sample
	size     int
	capacity int
	maxSkew  time.Duration

	// Running sums over the whole buffer, maintained on append and
	// eviction so whole-window stats stay O(1).
	sum   float64
	sumSq float64
}

func NewMemoryStore(capacity int, maxSkew time.Duration, channels []data.Channel) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if len(channels) == 0 {
		channels = data.Channels
	}
	s := &MemoryStore{channels: make(map[data.Channel]*channelBuffer, len(channels))}
	for _, ch := range channels {
		s.channels[ch] = &channelBuffer{
			buf:      make([]data.Sample, capacity),
			capacity: capacity,
			maxSkew:  maxSkew,
		}
	}
	return s
}

// Channels returns the configured channel set in the canonical order.
func (s *MemoryStore) Channels() []data.Channel {
	out := make([]data.Channel, 0, len(s.channels))
	for _, ch := range data.Channels {
		if _, ok := s.channels[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (s *MemoryStore) buffer(ch data.Channel) (*channelBuffer, error) {
	b, ok := s.channels[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", data.ErrUnknownChannel, ch)
	}
	return b, nil
}

// Append validates and stores one sample. Samples arriving out of order are
// accepted and slotted so readers always observe non-decreasing timestamps.
// Once the channel is at capacity the oldest sample is evicted; a sample
// older than everything retained is itself the oldest, so it is dropped.
func (s *MemoryStore) Append(ch data.Channel, value float64, ts time.Time) error {
	b, err := s.buffer(ch)
	if err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: non-finite value for %s", data.ErrInvalidSample, ch)
	}
	if b.maxSkew > 0 && ts.After(time.Now().Add(b.maxSkew)) {
		return fmt.Errorf("%w: timestamp %s too far in the future", data.ErrInvalidSample, ts.Format(time.RFC3339))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == b.capacity {
		if ts.Before(b.at(0).Timestamp) {
			// The newcomer would be evicted as the oldest sample anyway.
			return nil
		}
		evicted := b.buf[b.head]
		b.sum -= evicted.Value
		b.sumSq -= evicted.Value * evicted.Value
		b.head = (b.head + 1) % b.capacity
		b.size--
	}

	// Find the logical insertion slot, walking back from the newest sample.
	// In-order arrival (the common case) terminates immediately.
	pos := b.size
	for pos > 0 && b.at(pos-1).Timestamp.After(ts) {
		pos--
	}
	for i := b.size; i > pos; i-- {
		*b.atPtr(i) = *b.atPtr(i - 1)
	}
	*b.atPtr(pos) = data.Sample{Channel: ch, Value: value, Timestamp: ts}
	b.size++
	b.sum += value
	b.sumSq += value * value
	return nil
}

// at returns the sample at logical index i (0 = oldest). Caller holds a lock.
func (b *channelBuffer) at(i int) data.Sample {
	return b.buf[(b.head+i)%b.capacity]
}

func (b *channelBuffer) atPtr(i int) *data.Sample {
	return &b.buf[(b.head+i)%b.capacity]
}

// Latest returns the most recent sample, or nil if the channel is empty.
func (s *MemoryStore) Latest(ch data.Channel) (*data.Sample, error) {
	b, err := s.buffer(ch)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return nil, nil
	}
	last := b.at(b.size - 1)
	return &last, nil
}

// Recent returns the most recent n samples, oldest first. n <= 0 returns the
// whole buffer. The result is a copy, immune to concurrent appends.
func (s *MemoryStore) Recent(ch data.Channel, n int) ([]data.Sample, error) {
	b, err := s.buffer(ch)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]data.Sample, n)
	for i := 0; i < n; i++ {
		out[i] = b.at(b.size - n + i)
	}
	return out, nil
}

// Range returns samples with from <= timestamp <= to, oldest first.
func (s *MemoryStore) Range(ch data.Channel, from, to time.Time) ([]data.Sample, error) {
	b, err := s.buffer(ch)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []data.Sample
	for i := 0; i < b.size; i++ {
		smp := b.at(i)
		if smp.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && smp.Timestamp.After(to) {
			break
		}
		out = append(out, smp)
	}
	return out, nil
}

// SnapshotWithSums returns a copy of the whole buffer together with the
// maintained running sums, taken under a single read lock so the two can
// never disagree.
func (s *MemoryStore) SnapshotWithSums(ch data.Channel) ([]data.Sample, float64, float64, error) {
	b, err := s.buffer(ch)
	if err != nil {
		return nil, 0, 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]data.Sample, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.at(i)
	}
	return out, b.sum, b.sumSq, nil
}

// RunningSums exposes the maintained whole-buffer aggregates so full-window
// averages and deviations avoid rescanning the buffer.
func (s *MemoryStore) RunningSums(ch data.Channel) (count int, sum, sumSq float64, err error) {
	b, berr := s.buffer(ch)
	if berr != nil {
		return 0, 0, 0, berr
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size, b.sum, b.sumSq, nil
}
