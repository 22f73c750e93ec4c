package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"peercall/native/internal/domain"
	"peercall/native/internal/negotiation"
)

func (m *Manager) OnJoinDenied(msg domain.JoinDenied) {
	m.post(event{apply: func() {
		m.teardown(&domain.CallError{
			Kind:   domain.KindJoinDenied,
			Op:     "join room " + m.opts.Session.RoomID,
			Reason: msg.Reason,
			Err:    errors.New(domain.DenialMessage(msg.Reason)),
		})
	}})
}

func (m *Manager) OnExistingParticipants(msg domain.ExistingParticipants) {
	m.post(event{apply: func() {
		m.participants = append([]domain.ParticipantRef(nil), msg.Participants...)
		m.log.Info().Int("count", len(msg.Participants)).Msg("existing participants")
		if len(msg.Participants) == 0 {
			return
		}
		first := msg.Participants[0]
		if m.opts.Role != domain.RoleInitiator {
			m.expected = first
			return
		}
		if s := m.table.Session(first); s != nil && s.Role() == domain.RoleInitiator {
			return
		}
		m.startInitiator(first, 0)
	}})
}

func (m *Manager) OnUserJoined(msg domain.ParticipantEvent) {
	m.post(event{apply: func() {
		p := msg.SID
		if !slices.Contains(m.participants, p) {
			m.participants = append(m.participants, p)
		}
		m.log.Info().Str("peer", string(p)).Msg("user joined")
		if m.opts.Role != domain.RoleInitiator {
			m.expected = p
			return
		}
		if s := m.table.Active(); s != nil && s.Participant() != p && s.Transport() == domain.ConnectionConnected {
			m.log.Info().Str("peer", string(p)).Str("connected", string(s.Participant())).Msg("already in a call, ignoring join")
			return
		}
		m.startInitiator(p, 0)
	}})
}

func (m *Manager) OnUserLeft(msg domain.ParticipantEvent) {
	m.post(event{apply: func() {
		p := msg.SID
		m.participants = slices.DeleteFunc(m.participants, func(x domain.ParticipantRef) bool { return x == p })
		if m.expected == p {
			m.expected = ""
		}
		if s := m.table.Active(); s != nil && s.Participant() == p {
			m.connected = false
			m.log.Info().Str("peer", string(p)).Msg("peer left, awaiting participant")
		}
		m.table.Remove(p)
	}})
}

func (m *Manager) OnOffer(msg domain.DescriptionMessage) {
	m.post(event{apply: func() { m.handleOffer(msg.SenderSID, msg.SDP) }})
}

func (m *Manager) handleOffer(p domain.ParticipantRef, offer domain.SDPPayload) {
	log := m.log.With().Str("peer", string(p)).Logger()
	e := m.table.Entry(p)
	if e.Dedup.Duplicate(negotiation.OfferMessage, offer) {
		log.Debug().Msg("duplicate offer dropped")
		return
	}
	if m.opts.Role == domain.RoleInitiator {
		log.Debug().Msg("offer while initiator dropped")
		return
	}
	if s := m.table.Session(p); s != nil {
		switch {
		case s.NegotiationState() != domain.NegotiationStable:
			m.acceptOffer(s, offer)
			return
		case s.Transport() == domain.ConnectionConnected:
			log.Debug().Msg("offer for connected session dropped")
			return
		case m.clock.Now().Sub(s.CreatedAt()) < m.opts.OfferDebounce:
			log.Debug().Msg("offer inside debounce window dropped")
			return
		}
		log.Info().Msg("initiator restarted negotiation, replacing session")
	}
	m.startResponder(p, offer)
}

func (m *Manager) OnAnswer(msg domain.DescriptionMessage) {
	m.post(event{apply: func() {
		p := msg.SenderSID
		e := m.table.Entry(p)
		if e.Dedup.Duplicate(negotiation.AnswerMessage, msg.SDP) {
			m.log.Debug().Str("peer", string(p)).Msg("duplicate answer dropped")
			return
		}
		s := m.table.Session(p)
		if s != nil && s.Transport() == domain.ConnectionConnected {
			m.log.Debug().Str("peer", string(p)).Msg("answer for connected session dropped")
			return
		}
		if s == nil || !s.ExpectsAnswer() {
			m.log.Debug().Str("peer", string(p)).Msg("answer queued")
			e.QueueAnswer(msg.SDP)
			return
		}
		if err := s.ApplyAnswer(msg.SDP); err != nil {
			m.log.Warn().Err(err).Str("peer", string(p)).Msg("answer not applied")
			return
		}
		e.Dedup.Record(negotiation.AnswerMessage, msg.SDP)
		m.retry.Clear(p)
		m.log.Info().Str("peer", string(p)).Msg("answer applied")
	}})
}

func (m *Manager) OnICECandidate(msg domain.CandidateMessage) {
	m.post(event{apply: func() {
		p := msg.SenderSID
		s := m.table.Session(p)
		if s == nil {
			m.table.Entry(p).QueueCandidate(msg.Candidate)
			return
		}
		if err := s.AddCandidate(msg.Candidate); err != nil {
			m.log.Debug().Err(err).Str("peer", string(p)).Msg("candidate rejected")
		}
	}})
}

func (m *Manager) OnProctorEvent(ev domain.ProctorEvent) {
	m.feed.Add(ev)
	m.log.Debug().Str("type", ev.Type).Msg("proctor event received")
}

func (m *Manager) OnWhiteboard(event string, data json.RawMessage) {
	m.mu.Lock()
	f := m.whiteboard
	m.mu.Unlock()
	if f != nil {
		f(event, data)
	}
}

func (m *Manager) OnRoomInfo(info domain.RoomInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomInfo = &info
}

// OnDisconnect ends the call when the channel drops on its own.
func (m *Manager) OnDisconnect(err error) {
	if err == nil {
		return
	}
	m.post(event{apply: func() {
		m.teardown(domain.NewCallError(domain.KindTransport, "signaling", err))
	}})
}

// Publish implements media.Publisher for the media controllers.
func (m *Manager) Publish(eventType, message string, metadata map[string]any) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(eventType, message, metadata)
}

// ToggleAudio mutes or unmutes the microphone and returns whether it is
// enabled.
func (m *Manager) ToggleAudio() bool { return m.devices.Toggle(domain.KindAudio) }

// ToggleVideo turns the camera on or off and returns whether it is enabled.
func (m *Manager) ToggleVideo() bool { return m.devices.Toggle(domain.KindVideo) }

// SwitchDevice selects another input or output device. Input switches
// replace the track on the live connection without renegotiating.
func (m *Manager) SwitchDevice(ctx context.Context, kind domain.DeviceKind, deviceID string) error {
	if m.isClosed() {
		return domain.ErrClosed
	}
	err := m.devices.Switch(ctx, kind, deviceID, m.sender)
	if errors.Is(err, domain.ErrDeviceSwitch) {
		m.notify(domain.KindDeviceSwitch, err)
	}
	return err
}

// ToggleScreenShare starts or stops sharing and returns whether sharing is
// active.
func (m *Manager) ToggleScreenShare(ctx context.Context) (bool, error) {
	if m.isClosed() {
		return false, domain.ErrClosed
	}
	active, err := m.screen.Toggle(ctx, m.screenSender)
	if errors.Is(err, domain.ErrScreenShareDenied) {
		m.notify(domain.KindScreenShareDenied, err)
	}
	return active, err
}

// SendProctorEvent publishes an application integrity event. It does
// nothing unless proctoring is enabled.
func (m *Manager) SendProctorEvent(ev domain.ProctorEvent) error {
	if !m.opts.Proctoring {
		return nil
	}
	if m.isClosed() {
		return domain.ErrClosed
	}
	return m.publisher.Send(ev)
}

// SendWhiteboard relays a whiteboard stroke or clear to the room.
func (m *Manager) SendWhiteboard(event string, data map[string]any) error {
	if event != domain.EventWhiteboardDraw && event != domain.EventWhiteboardClear {
		return fmt.Errorf("whiteboard: unknown event %q", event)
	}
	if m.isClosed() {
		return domain.ErrClosed
	}
	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["room_id"] = m.opts.Session.RoomID
	return m.signal.Emit(event, payload)
}

// SubscribeWhiteboard registers f for whiteboard events from the room.
func (m *Manager) SubscribeWhiteboard(f func(event string, data json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.whiteboard = f
}

// RequestRoomInfo asks the relay for the room's participants. The answer
// is available from RoomInfo.
func (m *Manager) RequestRoomInfo() error {
	if m.isClosed() {
		return domain.ErrClosed
	}
	return m.signal.Emit(domain.EventGetRoomInfo, domain.RoomInfoRequest{RoomID: m.opts.Session.RoomID})
}

// Ping sends an application-level ping; the relay echoes the timestamp.
func (m *Manager) Ping() error {
	return m.signal.Emit(domain.EventPing, domain.Ping{Timestamp: m.clock.Now().UnixMilli()})
}
