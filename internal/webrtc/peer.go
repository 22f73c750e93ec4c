package webrtc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"peercall/native/internal/domain"
	"peercall/native/internal/logging"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// LocalTrack is implemented by domain tracks that can be sent over Pion.
type LocalTrack interface {
	TrackLocal() pion.TrackLocal
}

var errNoSender = errors.New("no sender for media kind")

// Factory creates Pion peer connections. It implements domain.PeerFactory.
type Factory struct {
	api  *pion.API
	cfg  pion.Configuration
	sink domain.RenderSink
	log  zerolog.Logger
}

func NewFactory(api *pion.API, servers []domain.ICEServer, sink domain.RenderSink, logger zerolog.Logger) *Factory {
	return &Factory{
		api:  api,
		cfg:  Configuration(servers),
		sink: sink,
		log:  logging.Component(logger, "webrtc"),
	}
}

// NewPeerConnection creates a connection sending local. Kinds without a
// sendable track still get a sendrecv transceiver so the remote side can
// send to us.
func (f *Factory) NewPeerConnection(local []domain.Track) (domain.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	p := &Peer{
		pc:      pc,
		senders: make(map[domain.MediaKind]*pion.RTPSender),
		log:     f.log.With().Str("peer", fmt.Sprintf("%p", pc)).Logger(),
	}

	for _, t := range local {
		lt, ok := t.(LocalTrack)
		if !ok {
			continue
		}
		sender, err := pc.AddTrack(lt.TrackLocal())
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		p.senders[t.Kind()] = sender
		go drainRTCP(sender)
	}
	for _, kind := range []domain.MediaKind{domain.KindAudio, domain.KindVideo} {
		if _, ok := p.senders[kind]; ok {
			continue
		}
		tr, err := pc.AddTransceiverFromKind(codecType(kind), pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
		p.senders[kind] = tr.Sender()
	}

	if f.sink != nil {
		pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
			p.log.Info().Str("kind", track.Kind().String()).Str("codec", track.Codec().MimeType).Msg("remote track")
			go render(track, f.sink, p.log)
		})
	}
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Debug().Str("state", state.String()).Msg("ice connection state")
	})
	return p, nil
}

// drainRTCP reads incoming RTCP so interceptors keep running.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// serial runs callbacks one at a time, in order, off the caller's
// goroutine. Pion invokes some handlers synchronously from inside calls
// such as Close.
type serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (s *serial) do(f func()) {
	s.mu.Lock()
	s.queue = append(s.queue, f)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	go s.run()
}

func (s *serial) run() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		f := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		f()
	}
}

// Peer wraps a Pion PeerConnection. Callbacks registered on it never run
// on the goroutine of a Peer method.
type Peer struct {
	pc    *pion.PeerConnection
	log   zerolog.Logger
	calls serial

	mu      sync.Mutex
	senders map[domain.MediaKind]*pion.RTPSender
}

func (p *Peer) CreateOffer() (domain.SDPPayload, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}
	p.log.Debug().Msg("local offer set")
	return domain.SDPPayload{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *Peer) AcceptOffer(offer domain.SDPPayload) (domain.SDPPayload, error) {
	if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SDPPayload{}, fmt.Errorf("set local description: %w", err)
	}
	p.log.Debug().Msg("remote offer applied, local answer set")
	return domain.SDPPayload{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *Peer) ApplyAnswer(answer domain.SDPPayload) error {
	if err := p.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	p.log.Debug().Msg("remote answer set")
	return nil
}

func (p *Peer) AddICECandidate(c domain.ICECandidatePayload) error {
	idx := uint16(c.SDPMLineIndex)
	init := pion.ICECandidateInit{Candidate: c.Candidate, SDPMLineIndex: &idx}
	if c.SDPMid != "" {
		init.SDPMid = &c.SDPMid
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

func (p *Peer) NegotiationState() domain.NegotiationState {
	switch p.pc.SignalingState() {
	case pion.SignalingStateHaveLocalOffer:
		return domain.NegotiationHaveLocalOffer
	case pion.SignalingStateHaveRemoteOffer:
		return domain.NegotiationHaveRemoteOffer
	case pion.SignalingStateHaveLocalPranswer:
		return domain.NegotiationHaveLocalPranswer
	case pion.SignalingStateHaveRemotePranswer:
		return domain.NegotiationHaveRemotePranswer
	case pion.SignalingStateClosed:
		return domain.NegotiationClosed
	default:
		return domain.NegotiationStable
	}
}

// OnICECandidate registers f for locally gathered candidates. Loopback
// candidates are never sent.
func (p *Peer) OnICECandidate(f func(domain.ICECandidatePayload)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			p.log.Debug().Msg("ice gathering complete")
			return
		}
		init := c.ToJSON()
		if isLoopback(init.Candidate) {
			return
		}
		out := domain.ICECandidatePayload{Candidate: init.Candidate}
		if init.SDPMid != nil {
			out.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		p.calls.do(func() { f(out) })
	})
}

func (p *Peer) OnConnectionStateChange(f func(domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		p.log.Info().Str("state", state.String()).Msg("peer connection state")
		cs := connectionState(state)
		p.calls.do(func() { f(cs) })
	})
}

// ReplaceTrack swaps the outgoing track of kind. A nil track stops sending
// without removing the sender.
func (p *Peer) ReplaceTrack(kind domain.MediaKind, track domain.Track) error {
	p.mu.Lock()
	sender := p.senders[kind]
	p.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("replace %s: %w", kind, errNoSender)
	}
	if track == nil {
		return sender.ReplaceTrack(nil)
	}
	lt, ok := track.(LocalTrack)
	if !ok {
		return fmt.Errorf("replace %s: track %s cannot be sent", kind, track.ID())
	}
	if err := sender.ReplaceTrack(lt.TrackLocal()); err != nil {
		return fmt.Errorf("replace %s: %w", kind, err)
	}
	return nil
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

func connectionState(s pion.PeerConnectionState) domain.ConnectionState {
	switch s {
	case pion.PeerConnectionStateConnecting:
		return domain.ConnectionConnecting
	case pion.PeerConnectionStateConnected:
		return domain.ConnectionConnected
	case pion.PeerConnectionStateDisconnected:
		return domain.ConnectionDisconnected
	case pion.PeerConnectionStateFailed:
		return domain.ConnectionFailed
	case pion.PeerConnectionStateClosed:
		return domain.ConnectionClosed
	default:
		return domain.ConnectionNew
	}
}

func codecType(k domain.MediaKind) pion.RTPCodecType {
	if k == domain.KindVideo {
		return pion.RTPCodecTypeVideo
	}
	return pion.RTPCodecTypeAudio
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}
