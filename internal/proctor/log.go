package proctor

import (
	"sync"

	"peercall/native/internal/domain"
)

// DefaultLogSize bounds the inbound event feed.
const DefaultLogSize = 200

// Log keeps the most recent events received from the room, newest first.
type Log struct {
	mu     sync.Mutex
	size   int
	events []domain.ProctorEvent
}

func NewLog(size int) *Log {
	if size <= 0 {
		size = DefaultLogSize
	}
	return &Log{size: size}
}

func (l *Log) Add(ev domain.ProctorEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, domain.ProctorEvent{})
	copy(l.events[1:], l.events)
	l.events[0] = ev
	if len(l.events) > l.size {
		l.events = l.events[:l.size]
	}
}

// Events returns a copy of the feed, newest first.
func (l *Log) Events() []domain.ProctorEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ProctorEvent(nil), l.events...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
