package webrtc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"peercall/native/internal/domain"
	"peercall/native/internal/media/synthetic"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type discardSink struct{ video, audio bytes.Buffer }

func (s *discardSink) VideoSink() io.Writer { return &s.video }
func (s *discardSink) AudioSink() io.Writer { return &s.audio }

type opaqueTrack struct{ domain.Track }

func (opaqueTrack) ID() string { return "opaque" }

func newFactory(t *testing.T) *Factory {
	t.Helper()
	api, err := NewAPI()
	if err != nil {
		t.Fatalf("NewAPI() error = %v", err)
	}
	return NewFactory(api, nil, &discardSink{}, zerolog.Nop())
}

func localTracks(t *testing.T, p *synthetic.Platform) []domain.Track {
	t.Helper()
	tracks, err := p.GetUserMedia(context.Background(), domain.Constraints{
		Audio: &domain.TrackConstraint{},
		Video: &domain.TrackConstraint{},
	})
	if err != nil {
		t.Fatalf("GetUserMedia() error = %v", err)
	}
	return tracks
}

func TestOfferAnswerExchange(t *testing.T) {
	f := newFactory(t)
	platform := synthetic.NewPlatform(synthetic.Options{})

	offerer, err := f.NewPeerConnection(localTracks(t, platform))
	if err != nil {
		t.Fatal(err)
	}
	defer offerer.Close()
	answerer, err := f.NewPeerConnection(localTracks(t, platform))
	if err != nil {
		t.Fatal(err)
	}
	defer answerer.Close()

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if offer.Type != "offer" || offer.SDP == "" {
		t.Fatalf("offer = %+v", offer)
	}
	if got := offerer.NegotiationState(); got != domain.NegotiationHaveLocalOffer {
		t.Errorf("offerer state = %s", got)
	}

	answer, err := answerer.AcceptOffer(offer)
	if err != nil {
		t.Fatalf("AcceptOffer() error = %v", err)
	}
	if answer.Type != "answer" {
		t.Errorf("answer type = %s", answer.Type)
	}
	if got := answerer.NegotiationState(); got != domain.NegotiationStable {
		t.Errorf("answerer state = %s", got)
	}

	if err := offerer.ApplyAnswer(answer); err != nil {
		t.Fatalf("ApplyAnswer() error = %v", err)
	}
	if got := offerer.NegotiationState(); got != domain.NegotiationStable {
		t.Errorf("offerer state after answer = %s", got)
	}
	if err := offerer.ApplyAnswer(answer); err == nil {
		t.Error("second ApplyAnswer() in stable state should fail")
	}
}

func TestReplaceTrack(t *testing.T) {
	f := newFactory(t)
	platform := synthetic.NewPlatform(synthetic.Options{})
	pc, err := f.NewPeerConnection(localTracks(t, platform))
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	fresh, err := platform.GetUserMedia(context.Background(), domain.Constraints{Video: &domain.TrackConstraint{DeviceID: "cam2"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := pc.ReplaceTrack(domain.KindVideo, fresh[0]); err != nil {
		t.Errorf("ReplaceTrack() error = %v", err)
	}
	if err := pc.ReplaceTrack(domain.KindVideo, opaqueTrack{}); err == nil {
		t.Error("ReplaceTrack() with an unsendable track should fail")
	}
	if err := pc.ReplaceTrack(domain.KindAudio, nil); err != nil {
		t.Errorf("ReplaceTrack(nil) error = %v", err)
	}
}

func TestReceiveOnlyPeerStillHasSenders(t *testing.T) {
	pc, err := newFactory(t).NewPeerConnection(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()
	if err := pc.ReplaceTrack(domain.KindAudio, nil); errors.Is(err, errNoSender) {
		t.Error("audio transceiver missing")
	}
}

func TestConnectionStateMapping(t *testing.T) {
	tests := map[pion.PeerConnectionState]domain.ConnectionState{
		pion.PeerConnectionStateNew:          domain.ConnectionNew,
		pion.PeerConnectionStateConnecting:   domain.ConnectionConnecting,
		pion.PeerConnectionStateConnected:    domain.ConnectionConnected,
		pion.PeerConnectionStateDisconnected: domain.ConnectionDisconnected,
		pion.PeerConnectionStateFailed:       domain.ConnectionFailed,
		pion.PeerConnectionStateClosed:       domain.ConnectionClosed,
	}
	for in, want := range tests {
		if got := connectionState(in); got != want {
			t.Errorf("connectionState(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestIsLoopback(t *testing.T) {
	if !isLoopback("candidate:1 1 udp 2130706431 127.0.0.1 5000 typ host") {
		t.Error("IPv4 loopback not detected")
	}
	if !isLoopback("candidate:1 1 udp 2130706431 ::1 5000 typ host") {
		t.Error("IPv6 loopback not detected")
	}
	if isLoopback("candidate:1 1 udp 2130706431 192.168.1.20 5000 typ host") {
		t.Error("LAN candidate filtered")
	}
}

func TestNewWriterByCodec(t *testing.T) {
	var buf bytes.Buffer
	for _, mime := range []string{pion.MimeTypeH264, pion.MimeTypeVP8, pion.MimeTypeOpus} {
		codec := pion.RTPCodecParameters{RTPCodecCapability: pion.RTPCodecCapability{MimeType: mime, ClockRate: 48000}}
		w, err := newWriter(codec, &buf)
		if err != nil || w == nil {
			t.Errorf("newWriter(%s) = %v, %v", mime, w, err)
		}
	}
	if w, _ := newWriter(pion.RTPCodecParameters{RTPCodecCapability: pion.RTPCodecCapability{MimeType: "video/AV2"}}, &buf); w != nil {
		t.Error("unknown codec should have no writer")
	}
}
