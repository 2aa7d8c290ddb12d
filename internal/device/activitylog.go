// internal/device/activitylog.go
package device

import (
	"sync"
	"time"
)

const defaultLogCapacity = 1000

// ActivityEntry records one commanded device state change.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Action    string    `json:"action"`
	Value     string    `json:"value"`
}

// ActivityLog is a bounded in-memory log of device state changes, newest
// first on read. Oldest entries are evicted once the capacity is exceeded.
type ActivityLog struct {
	mu       sync.Mutex
	entries  []ActivityEntry
	head     int
	size     int
	capacity int
}

func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &ActivityLog{
		entries:  make([]ActivityEntry, capacity),
		capacity: capacity,
	}
}

func (l *ActivityLog) Record(device, action, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[(l.head+l.size)%l.capacity] = ActivityEntry{
		Timestamp: time.Now(),
		Device:    device,
		Action:    action,
		Value:     value,
	}
	if l.size == l.capacity {
		l.head = (l.head + 1) % l.capacity
	} else {
		l.size++
	}
}

// Recent returns up to limit entries, newest first.
func (l *ActivityLog) Recent(limit int) []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ActivityEntry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.head+l.size-1-i)%l.capacity]
	}
	return out
}
