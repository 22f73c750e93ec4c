package negotiation

import (
	"peercall/native/internal/domain"
)

const (
	maxPendingAnswers    = 4
	maxPendingCandidates = 128
)

// Entry is the per-participant bookkeeping of the table.
type Entry struct {
	Participant domain.ParticipantRef
	Session     *Session
	Dedup       Deduplicator

	answers    []domain.SDPPayload
	candidates []domain.ICECandidatePayload
}

// QueueAnswer keeps an answer that arrived before it could be applied.
func (e *Entry) QueueAnswer(a domain.SDPPayload) {
	if len(e.answers) == maxPendingAnswers {
		e.answers = e.answers[1:]
	}
	e.answers = append(e.answers, a)
}

// QueueCandidate keeps a candidate that arrived before any session existed.
func (e *Entry) QueueCandidate(c domain.ICECandidatePayload) {
	if len(e.candidates) == maxPendingCandidates {
		e.candidates = e.candidates[1:]
	}
	e.candidates = append(e.candidates, c)
}

// DropAnswers forgets every queued answer. Answers still queued once a
// session is connected belong to superseded offers.
func (e *Entry) DropAnswers() int {
	n := len(e.answers)
	e.answers = nil
	return n
}

// PendingAnswers returns the number of queued answers.
func (e *Entry) PendingAnswers() int { return len(e.answers) }

// PendingCandidates returns the number of queued candidates.
func (e *Entry) PendingCandidates() int { return len(e.candidates) }

// Drain feeds queued candidates to the session in arrival order, then tries
// queued answers. Answers the session cannot take yet stay queued.
// Duplicates of the last applied answer are discarded.
func (e *Entry) Drain() (applied int, err error) {
	s := e.Session
	if s == nil || s.Closed() {
		return 0, nil
	}
	candidates := e.candidates
	e.candidates = nil
	for _, c := range candidates {
		if cerr := s.AddCandidate(c); cerr != nil && err == nil {
			err = cerr
		}
	}

	var keep []domain.SDPPayload
	for _, a := range e.answers {
		switch {
		case e.Dedup.Duplicate(AnswerMessage, a):
		case s.ExpectsAnswer():
			if aerr := s.ApplyAnswer(a); aerr != nil {
				if err == nil {
					err = aerr
				}
				continue
			}
			e.Dedup.Record(AnswerMessage, a)
			applied++
		default:
			keep = append(keep, a)
		}
	}
	e.answers = keep
	return applied, err
}

// Table maps participants to their session and signaling state. It enforces
// the single-session invariant: installing a session closes every other
// one and clears its retry timer first.
type Table struct {
	entries map[domain.ParticipantRef]*Entry
	retry   *RetryScheduler
	gen     uint64
}

func NewTable(retry *RetryScheduler) *Table {
	return &Table{
		entries: make(map[domain.ParticipantRef]*Entry),
		retry:   retry,
	}
}

// Entry returns the entry of p, creating it if needed.
func (t *Table) Entry(p domain.ParticipantRef) *Entry {
	e, ok := t.entries[p]
	if !ok {
		e = &Entry{Participant: p}
		t.entries[p] = e
	}
	return e
}

// Lookup returns the entry of p if one exists.
func (t *Table) Lookup(p domain.ParticipantRef) (*Entry, bool) {
	e, ok := t.entries[p]
	return e, ok
}

// Session returns the live session of p.
func (t *Table) Session(p domain.ParticipantRef) *Session {
	if e, ok := t.entries[p]; ok && e.Session != nil && !e.Session.Closed() {
		return e.Session
	}
	return nil
}

// Active returns the live session, if any.
func (t *Table) Active() *Session {
	for _, e := range t.entries {
		if e.Session != nil && !e.Session.Closed() {
			return e.Session
		}
	}
	return nil
}

// Current reports whether gen is the generation of a live session.
func (t *Table) Current(gen uint64) *Session {
	if s := t.Active(); s != nil && s.Gen() == gen {
		return s
	}
	return nil
}

// Install closes every existing session, clearing timers, then installs the
// session returned by build under a fresh generation.
func (t *Table) Install(p domain.ParticipantRef, build func(gen uint64) (*Session, error)) (*Session, error) {
	for ref, e := range t.entries {
		t.retry.Clear(ref)
		if e.Session != nil {
			e.Session.Close()
			e.Session = nil
		}
	}
	t.gen++
	s, err := build(t.gen)
	if err != nil {
		return nil, err
	}
	t.Entry(p).Session = s
	return s, nil
}

// Discard closes the session of p and clears its timer, keeping the
// signaling memo.
func (t *Table) Discard(p domain.ParticipantRef) {
	t.retry.Clear(p)
	if e, ok := t.entries[p]; ok && e.Session != nil {
		e.Session.Close()
		e.Session = nil
	}
}

// Remove forgets p entirely.
func (t *Table) Remove(p domain.ParticipantRef) {
	t.Discard(p)
	delete(t.entries, p)
}

// CloseAll closes every session and clears every timer.
func (t *Table) CloseAll() {
	t.retry.ClearAll()
	for _, e := range t.entries {
		if e.Session != nil {
			e.Session.Close()
			e.Session = nil
		}
	}
}

// LiveSessions counts sessions that are not closed.
func (t *Table) LiveSessions() int {
	n := 0
	for _, e := range t.entries {
		if e.Session != nil && !e.Session.Closed() {
			n++
		}
	}
	return n
}
