package negotiation

import (
	"fmt"
	"time"

	"peercall/native/internal/domain"
)

// Event is an input to the session state machine.
type Event int

const (
	EvOfferCreated Event = iota
	EvOfferSent
	EvOfferApplied
	EvAnswerApplied
	EvTransportUp
	EvTransportDown
	EvLeave
)

func (e Event) String() string {
	return [...]string{"offer-created", "offer-sent", "offer-applied", "answer-applied", "transport-up", "transport-down", "leave"}[e]
}

// Transition returns the state reached from `from` on ev, or false when the
// event is not accepted in that state.
func Transition(role domain.NegotiationRole, from domain.SignalingState, ev Event) (domain.SignalingState, bool) {
	if from == domain.StateClosed {
		return from, false
	}
	if ev == EvTransportDown || ev == EvLeave {
		return domain.StateClosed, true
	}

	if role == domain.RoleInitiator {
		switch {
		case from == domain.StateIdle && ev == EvOfferCreated:
			return domain.StateOfferSent, true
		case from == domain.StateOfferSent && ev == EvOfferSent:
			return domain.StateAnswerPending, true
		case from == domain.StateAnswerPending && ev == EvAnswerApplied:
			return domain.StateConnected, true
		case from == domain.StateConnected && ev == EvTransportUp:
			return domain.StateConnected, true
		}
		return from, false
	}

	switch {
	case (from == domain.StateIdle || from == domain.StateAnswerApplied) && ev == EvOfferApplied:
		return domain.StateAnswerApplied, true
	case (from == domain.StateAnswerApplied || from == domain.StateConnected) && ev == EvTransportUp:
		return domain.StateConnected, true
	}
	return from, false
}

// Outbox emits the descriptions and candidates of a session.
type Outbox interface {
	Offer(target domain.ParticipantRef, sdp domain.SDPPayload) error
	Answer(target domain.ParticipantRef, sdp domain.SDPPayload) error
	Candidate(target domain.ParticipantRef, c domain.ICECandidatePayload) error
}

const maxBufferedCandidates = 128

// Session is one PeerSession: a peer connection bound to one participant
// and one role. A closed session is never reused.
type Session struct {
	participant domain.ParticipantRef
	role        domain.NegotiationRole
	gen         uint64
	attempt     int
	createdAt   time.Time
	state       domain.SignalingState
	conn        domain.PeerConnection

	remoteSet  bool
	candidates []domain.ICECandidatePayload
	progress   bool
	transport  domain.ConnectionState
}

// NewSession wraps conn. attempt is the retry attempt that produced this
// session, 0 for the first one.
func NewSession(p domain.ParticipantRef, role domain.NegotiationRole, gen uint64, attempt int, conn domain.PeerConnection, now time.Time) *Session {
	return &Session{
		participant: p,
		role:        role,
		gen:         gen,
		attempt:     attempt,
		createdAt:   now,
		state:       domain.StateIdle,
		conn:        conn,
	}
}

func (s *Session) Participant() domain.ParticipantRef { return s.participant }
func (s *Session) Role() domain.NegotiationRole       { return s.role }
func (s *Session) Gen() uint64                        { return s.gen }
func (s *Session) Attempt() int                       { return s.attempt }
func (s *Session) CreatedAt() time.Time               { return s.createdAt }
func (s *Session) State() domain.SignalingState       { return s.state }
func (s *Session) Conn() domain.PeerConnection        { return s.conn }
func (s *Session) Transport() domain.ConnectionState  { return s.transport }
func (s *Session) Closed() bool                       { return s.state == domain.StateClosed }
func (s *Session) NegotiationState() domain.NegotiationState {
	if s.state == domain.StateClosed {
		return domain.NegotiationClosed
	}
	return s.conn.NegotiationState()
}

// TakeProgress reports whether the remote side showed signs of life since
// the previous call.
func (s *Session) TakeProgress() bool {
	p := s.progress
	s.progress = false
	return p
}

func (s *Session) apply(ev Event) error {
	next, ok := Transition(s.role, s.state, ev)
	if !ok {
		return fmt.Errorf("%s session: %s not accepted in state %s", s.role, ev, s.state)
	}
	s.state = next
	return nil
}

// Start creates the local offer and emits it. Initiator only.
func (s *Session) Start(out Outbox) error {
	if s.role != domain.RoleInitiator {
		return fmt.Errorf("start: session is %s", s.role)
	}
	offer, err := s.conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.apply(EvOfferCreated); err != nil {
		return err
	}
	if err := out.Offer(s.participant, offer); err != nil {
		return fmt.Errorf("emit offer: %w", err)
	}
	return s.apply(EvOfferSent)
}

// AcceptOffer applies a remote offer and emits the answer. Responder only.
func (s *Session) AcceptOffer(offer domain.SDPPayload, out Outbox) error {
	if _, ok := Transition(s.role, s.state, EvOfferApplied); !ok {
		return fmt.Errorf("accept offer: not accepted in state %s", s.state)
	}
	answer, err := s.conn.AcceptOffer(offer)
	if err != nil {
		return fmt.Errorf("accept offer: %w", err)
	}
	s.remoteSet = true
	if err := s.apply(EvOfferApplied); err != nil {
		return err
	}
	s.flushCandidates()
	if err := out.Answer(s.participant, answer); err != nil {
		return fmt.Errorf("emit answer: %w", err)
	}
	return nil
}

// ExpectsAnswer reports whether an inbound answer can be applied now.
func (s *Session) ExpectsAnswer() bool {
	return s.role == domain.RoleInitiator &&
		s.state == domain.StateAnswerPending &&
		s.NegotiationState() != domain.NegotiationStable
}

// ApplyAnswer installs the remote answer.
func (s *Session) ApplyAnswer(answer domain.SDPPayload) error {
	if !s.ExpectsAnswer() {
		return fmt.Errorf("apply answer: not expected in state %s", s.state)
	}
	if err := s.conn.ApplyAnswer(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	s.remoteSet = true
	s.flushCandidates()
	return s.apply(EvAnswerApplied)
}

// AddCandidate applies a remote candidate, buffering it until the remote
// description is installed.
func (s *Session) AddCandidate(c domain.ICECandidatePayload) error {
	if s.Closed() {
		return nil
	}
	s.progress = true
	if !s.remoteSet {
		if len(s.candidates) == maxBufferedCandidates {
			s.candidates = s.candidates[1:]
		}
		s.candidates = append(s.candidates, c)
		return nil
	}
	return s.conn.AddICECandidate(c)
}

func (s *Session) flushCandidates() {
	pending := s.candidates
	s.candidates = nil
	for _, c := range pending {
		_ = s.conn.AddICECandidate(c)
	}
}

// BufferedCandidates returns the number of candidates awaiting the remote
// description.
func (s *Session) BufferedCandidates() int { return len(s.candidates) }

// TransportChanged records a transport state change and reports whether the
// session closed because of it.
func (s *Session) TransportChanged(cs domain.ConnectionState) (closed bool) {
	if s.Closed() {
		return false
	}
	s.transport = cs
	switch cs {
	case domain.ConnectionConnecting:
		s.progress = true
	case domain.ConnectionConnected:
		s.progress = true
		_ = s.apply(EvTransportUp)
	case domain.ConnectionFailed, domain.ConnectionClosed:
		_ = s.apply(EvTransportDown)
		_ = s.conn.Close()
		return true
	}
	return false
}

// Close destroys the connection. Further events are ignored.
func (s *Session) Close() {
	if s.Closed() {
		return
	}
	_ = s.apply(EvLeave)
	_ = s.conn.Close()
}
