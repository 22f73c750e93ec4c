// Package synthetic is a media platform without capture hardware. Its
// tracks are pion sample tracks fed by the application, which makes the
// engine runnable headless and in tests.
package synthetic

import (
	"fmt"
	"sync"

	"peercall/native/internal/domain"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	videoCodec = pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000}
	audioCodec = pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2}
)

// Track is a local track backed by a pion TrackLocalStaticSample.
type Track struct {
	local *pion.TrackLocalStaticSample
	kind  domain.MediaKind
	label string

	mu       sync.Mutex
	settings domain.TrackSettings
	enabled  bool
	ended    chan struct{}
	once     sync.Once
}

func newTrack(kind domain.MediaKind, id, streamID, label string, settings domain.TrackSettings) (*Track, error) {
	codec := audioCodec
	if kind == domain.KindVideo {
		codec = videoCodec
	}
	local, err := pion.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	return &Track{
		local:    local,
		kind:     kind,
		label:    label,
		settings: settings,
		enabled:  true,
		ended:    make(chan struct{}),
	}, nil
}

// TrackLocal exposes the pion track for peer connections.
func (t *Track) TrackLocal() pion.TrackLocal { return t.local }

func (t *Track) ID() string             { return t.local.ID() }
func (t *Track) Kind() domain.MediaKind { return t.kind }
func (t *Track) Label() string          { return t.label }
func (t *Track) Ended() <-chan struct{} { return t.ended }

func (t *Track) Settings() domain.TrackSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// SetResolution changes the live settings, as when a shared window moves
// to another monitor.
func (t *Track) SetResolution(width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings.Width, t.settings.Height = width, height
}

// Stopped reports whether the track has ended.
func (t *Track) Stopped() bool {
	select {
	case <-t.ended:
		return true
	default:
		return false
	}
}

func (t *Track) Stop() {
	t.once.Do(func() { close(t.ended) })
}

// End simulates the source going away on its own.
func (t *Track) End() { t.Stop() }

// WriteSample sends one encoded sample. Samples of disabled or stopped
// tracks are dropped.
func (t *Track) WriteSample(s media.Sample) error {
	if t.Stopped() || !t.Enabled() {
		return nil
	}
	return t.local.WriteSample(s)
}
