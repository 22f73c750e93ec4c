package call

import (
	"errors"
	"fmt"

	"peercall/native/internal/domain"
	"peercall/native/internal/negotiation"
)

// outbox emits session messages on the signaling channel.
type outbox struct{ m *Manager }

func (o outbox) Offer(target domain.ParticipantRef, sdp domain.SDPPayload) error {
	return o.m.signal.Emit(domain.EventOffer, domain.DescriptionMessage{
		SDP:       sdp,
		TargetSID: target,
		RoomID:    o.m.opts.Session.RoomID,
	})
}

func (o outbox) Answer(target domain.ParticipantRef, sdp domain.SDPPayload) error {
	return o.m.signal.Emit(domain.EventAnswer, domain.DescriptionMessage{
		SDP:       sdp,
		TargetSID: target,
		RoomID:    o.m.opts.Session.RoomID,
	})
}

func (o outbox) Candidate(target domain.ParticipantRef, c domain.ICECandidatePayload) error {
	return o.m.signal.Emit(domain.EventICECandidate, domain.CandidateMessage{
		Candidate: c,
		TargetSID: target,
		RoomID:    o.m.opts.Session.RoomID,
	})
}

// localTracks returns the tracks a new connection sends. While sharing,
// the capture takes the place of the camera.
func (m *Manager) localTracks() []domain.Track {
	tracks := m.devices.Tracks()
	if capture := m.screen.Track(); capture != nil {
		for i, t := range tracks {
			if t.Kind() == domain.KindVideo {
				tracks[i] = capture
			}
		}
	}
	return tracks
}

// install replaces whatever session exists with a new one for p and drains
// the signals queued for p into it.
func (m *Manager) install(p domain.ParticipantRef, role domain.NegotiationRole, attempt int) (*negotiation.Session, error) {
	s, err := m.table.Install(p, func(gen uint64) (*negotiation.Session, error) {
		conn, err := m.factory.NewPeerConnection(m.localTracks())
		if err != nil {
			return nil, err
		}
		s := negotiation.NewSession(p, role, gen, attempt, conn, m.clock.Now())
		conn.OnICECandidate(func(c domain.ICECandidatePayload) {
			m.post(event{scoped: true, gen: gen, apply: func() {
				if err := (outbox{m}).Candidate(p, c); err != nil {
					m.log.Debug().Err(err).Msg("candidate not sent")
				}
			}})
		})
		conn.OnConnectionStateChange(func(cs domain.ConnectionState) {
			m.post(event{scoped: true, gen: gen, apply: func() { m.transportChanged(s, cs) }})
		})
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().
		Str("peer", string(p)).
		Str("session_role", role.String()).
		Uint64("gen", s.Gen()).
		Int("attempt", attempt).
		Msg("peer session created")
	if _, err := m.table.Entry(p).Drain(); err != nil {
		m.log.Debug().Err(err).Msg("draining queued signals")
	}
	return s, nil
}

// startInitiator creates an Initiator session for p, sends the offer and
// arms the next retry.
func (m *Manager) startInitiator(p domain.ParticipantRef, attempt int) {
	s, err := m.install(p, domain.RoleInitiator, attempt)
	if err != nil {
		m.fail(domain.NewCallError(domain.KindTransport, "create peer connection", err))
		return
	}
	if err := s.Start(outbox{m}); err != nil {
		m.log.Warn().Err(err).Str("peer", string(p)).Msg("offer failed, retry will recreate")
	}
	if _, err := m.table.Entry(p).Drain(); err != nil {
		m.log.Debug().Err(err).Msg("applying queued answer")
	}
	if s.State() == domain.StateConnected {
		return
	}
	rec := m.retry.Arm(p, s.Gen(), attempt+1)
	m.log.Debug().Str("peer", string(p)).Int("attempt", rec.Attempt).Time("deadline", rec.Deadline).Msg("retry armed")
}

// startResponder creates a Responder session for p and answers offer.
func (m *Manager) startResponder(p domain.ParticipantRef, offer domain.SDPPayload) {
	s, err := m.install(p, domain.RoleResponder, 0)
	if err != nil {
		m.fail(domain.NewCallError(domain.KindTransport, "create peer connection", err))
		return
	}
	m.acceptOffer(s, offer)
}

func (m *Manager) acceptOffer(s *negotiation.Session, offer domain.SDPPayload) {
	p := s.Participant()
	if err := s.AcceptOffer(offer, outbox{m}); err != nil {
		m.log.Warn().Err(err).Str("peer", string(p)).Msg("offer not applied")
		return
	}
	m.table.Entry(p).Dedup.Record(negotiation.OfferMessage, offer)
	m.log.Info().Str("peer", string(p)).Msg("answer sent")
}

// retryFired runs on the timer goroutine.
func (m *Manager) retryFired(f negotiation.RetryFire) {
	m.post(event{apply: func() { m.handleRetry(f) }})
}

func (m *Manager) handleRetry(f negotiation.RetryFire) {
	if !m.retry.Take(f) {
		m.log.Debug().Str("peer", string(f.Participant)).Msg("dropping superseded retry")
		return
	}
	p := f.Participant
	s := m.table.Session(p)
	if s != nil && s.Gen() != f.Gen {
		return
	}
	if s != nil && s.State() == domain.StateConnected {
		return
	}
	if s != nil && s.NegotiationState() == domain.NegotiationHaveLocalOffer && s.TakeProgress() {
		m.log.Debug().Str("peer", string(p)).Int("attempt", f.Attempt).Msg("negotiation in progress, waiting")
		m.retry.Arm(p, f.Gen, f.Attempt)
		return
	}
	if m.retry.Policy().Exhausted(f.Attempt) {
		m.notify(domain.KindNegotiationStall, domain.NewCallError(domain.KindNegotiationStall, "negotiate with "+string(p),
			fmt.Errorf("no answer after %d attempts", m.retry.Policy().MaxAttempts)))
		return
	}
	m.log.Info().Str("peer", string(p)).Int("attempt", f.Attempt).Msg("no answer, recreating session")
	m.startInitiator(p, f.Attempt)
}

func (m *Manager) transportChanged(s *negotiation.Session, cs domain.ConnectionState) {
	p := s.Participant()
	m.log.Info().Str("peer", string(p)).Str("transport", cs.String()).Msg("transport state")
	closed := s.TransportChanged(cs)
	switch {
	case cs == domain.ConnectionConnected:
		m.connected = true
		m.retry.Clear(p)
		if n := m.table.Entry(p).DropAnswers(); n > 0 {
			m.log.Debug().Str("peer", string(p)).Int("answers", n).Msg("stale answers discarded")
		}
		var ce *domain.CallError
		if errors.As(m.err, &ce) && ce.Kind == domain.KindTransport {
			m.err = nil
		}
	case cs == domain.ConnectionDisconnected:
		m.connected = false
	case closed:
		m.connected = false
		m.table.Discard(p)
		next := s.Attempt() + 1
		if s.Role() == domain.RoleInitiator && !m.retry.Policy().Exhausted(next) {
			m.retry.Arm(p, s.Gen(), next)
			return
		}
		m.fail(domain.NewCallError(domain.KindTransport, "peer connection "+string(p), fmt.Errorf("transport %s", cs)))
	}
}

// sender is the SenderFunc of the device controller. While sharing the
// video sender carries the capture and camera switches stay local.
func (m *Manager) sender(kind domain.MediaKind) domain.TrackSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if kind == domain.KindVideo && m.screen.Active() {
		return nil
	}
	if s := m.table.Active(); s != nil {
		return s.Conn()
	}
	return nil
}

// screenSender is the SenderFunc of the screen share controller.
func (m *Manager) screenSender(domain.MediaKind) domain.TrackSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if s := m.table.Active(); s != nil {
		return s.Conn()
	}
	return nil
}
