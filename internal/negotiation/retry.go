package negotiation

import (
	"time"

	"peercall/native/internal/clock"
	"peercall/native/internal/domain"
)

// RetryPolicy is an exponential backoff bounded by Cap and MaxAttempts.
type RetryPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy waits 500ms, 1s, 2s and 4s before giving up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 500 * time.Millisecond, Cap: 5 * time.Second, MaxAttempts: 4}
}

// Delay returns the wait before attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// Exhausted reports whether attempt lies past the retry budget. An
// exhausted attempt still fires once so the stall can be reported.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt > p.MaxAttempts
}

// RetryFire is delivered when a retry timer expires. It carries the
// session generation it was armed for so stale fires can be discarded.
type RetryFire struct {
	Participant domain.ParticipantRef
	Attempt     int
	Gen         uint64
	seq         uint64
}

// RetryRecord is the live timer of one participant.
type RetryRecord struct {
	Participant domain.ParticipantRef
	Attempt     int
	Gen         uint64
	Deadline    time.Time

	timer clock.Timer
	seq   uint64
}

// RetryScheduler keeps at most one live retry timer per participant. It is
// not safe for concurrent use; the owner serializes calls. Timer callbacks
// only call fire with a value copy.
type RetryScheduler struct {
	clock   clock.Clock
	policy  RetryPolicy
	fire    func(RetryFire)
	records map[domain.ParticipantRef]*RetryRecord
	seq     uint64
}

func NewRetryScheduler(c clock.Clock, policy RetryPolicy, fire func(RetryFire)) *RetryScheduler {
	return &RetryScheduler{
		clock:   c,
		policy:  policy,
		fire:    fire,
		records: make(map[domain.ParticipantRef]*RetryRecord),
	}
}

func (s *RetryScheduler) Policy() RetryPolicy { return s.policy }

// Arm replaces any timer of p with one for attempt, tagged with gen.
func (s *RetryScheduler) Arm(p domain.ParticipantRef, gen uint64, attempt int) RetryRecord {
	s.Clear(p)
	s.seq++
	delay := s.policy.Delay(attempt)
	fire := RetryFire{Participant: p, Attempt: attempt, Gen: gen, seq: s.seq}
	rec := &RetryRecord{
		Participant: p,
		Attempt:     attempt,
		Gen:         gen,
		Deadline:    s.clock.Now().Add(delay),
		seq:         s.seq,
	}
	rec.timer = s.clock.AfterFunc(delay, func() { s.fire(fire) })
	s.records[p] = rec
	return *rec
}

// Take consumes the record matching f. It returns false for fires that were
// cleared or superseded after the timer expired.
func (s *RetryScheduler) Take(f RetryFire) bool {
	rec, ok := s.records[f.Participant]
	if !ok || rec.seq != f.seq {
		return false
	}
	delete(s.records, f.Participant)
	return true
}

// Clear stops the timer of p, if any.
func (s *RetryScheduler) Clear(p domain.ParticipantRef) {
	if rec, ok := s.records[p]; ok {
		rec.timer.Stop()
		delete(s.records, p)
	}
}

// ClearAll stops every timer.
func (s *RetryScheduler) ClearAll() {
	for p := range s.records {
		s.Clear(p)
	}
}

// Record returns the live record of p.
func (s *RetryScheduler) Record(p domain.ParticipantRef) (RetryRecord, bool) {
	rec, ok := s.records[p]
	if !ok {
		return RetryRecord{}, false
	}
	return *rec, true
}

// Len returns the number of live timers.
func (s *RetryScheduler) Len() int { return len(s.records) }
