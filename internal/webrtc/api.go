// Package webrtc adapts Pion peer connections to the call engine.
package webrtc

import (
	"fmt"
	"time"

	"peercall/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
)

// DefaultPLIInterval is how often a keyframe is requested from the remote
// video sender.
const DefaultPLIInterval = 3 * time.Second

// NewAPI builds a Pion API with H264, VP8 and Opus registered and NACK and
// periodic PLI interceptors installed.
func NewAPI() (*pion.API, error) {
	m := &pion.MediaEngine{}

	codecs := []struct {
		params pion.RTPCodecParameters
		kind   pion.RTPCodecType
	}{
		{pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000},
			PayloadType:        96,
		}, pion.RTPCodecTypeVideo},
		{pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:    pion.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			},
			PayloadType: 102,
		}, pion.RTPCodecTypeVideo},
		{pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
			PayloadType:        111,
		}, pion.RTPCodecTypeAudio},
	}
	for _, c := range codecs {
		if err := m.RegisterCodec(c.params, c.kind); err != nil {
			return nil, fmt.Errorf("register %s: %w", c.params.MimeType, err)
		}
	}

	i := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responder)
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generator)
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack"}, pion.RTPCodecTypeVideo)
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack", Parameter: "pli"}, pion.RTPCodecTypeVideo)

	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(DefaultPLIInterval))
	if err != nil {
		return nil, fmt.Errorf("create interval pli: %w", err)
	}
	i.Add(pli)

	return pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i)), nil
}

// Configuration converts the configured ICE servers.
func Configuration(servers []domain.ICEServer) pion.Configuration {
	cfg := pion.Configuration{BundlePolicy: pion.BundlePolicyMaxBundle}
	for _, s := range servers {
		cfg.ICEServers = append(cfg.ICEServers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return cfg
}
