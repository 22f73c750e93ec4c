package media

import (
	"context"
	"sync"
	"time"

	"peercall/native/internal/clock"
	"peercall/native/internal/domain"
	"peercall/native/internal/logging"
	"peercall/native/internal/proctor"

	"github.com/rs/zerolog"
)

// DefaultScreenPoll is how often the captured source is checked for a
// resolution change.
const DefaultScreenPoll = 2 * time.Second

type shareSession struct {
	track  domain.Track
	width  int
	height int
	timer  clock.Timer
	done   chan struct{}
}

// ScreenShare is the screen share controller. While sharing, the captured
// track replaces the camera on the outgoing video sender.
type ScreenShare struct {
	platform domain.MediaPlatform
	devices  *Devices
	events   Publisher
	clock    clock.Clock
	interval time.Duration
	log      zerolog.Logger

	toggleMu sync.Mutex

	mu      sync.Mutex
	session *shareSession
	closed  bool
}

func NewScreenShare(platform domain.MediaPlatform, devices *Devices, events Publisher, c clock.Clock, interval time.Duration, logger zerolog.Logger) *ScreenShare {
	if interval <= 0 {
		interval = DefaultScreenPoll
	}
	return &ScreenShare{
		platform: platform,
		devices:  devices,
		events:   events,
		clock:    c,
		interval: interval,
		log:      logging.Component(logger, "screen"),
	}
}

// Active reports whether a capture is being shared.
func (s *ScreenShare) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// Track returns the captured track while sharing.
func (s *ScreenShare) Track() domain.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.track
}

// Toggle starts sharing when idle and stops it otherwise. It returns whether
// sharing is active afterwards.
func (s *ScreenShare) Toggle(ctx context.Context, sender SenderFunc) (bool, error) {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil {
		s.stop(sess, sender)
		return false, nil
	}
	if err := s.start(ctx, sender); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ScreenShare) start(ctx context.Context, sender SenderFunc) error {
	track, err := s.platform.GetDisplayMedia(ctx)
	if err != nil {
		s.log.Info().Err(err).Msg("screen capture declined")
		s.events.Publish(proctor.ScreenShareDenied, "Screen share permission denied", map[string]any{"reason": err.Error()})
		return domain.NewCallError(domain.KindScreenShareDenied, "start screen share", err)
	}

	settings := track.Settings()
	sess := &shareSession{
		track:  track,
		width:  settings.Width,
		height: settings.Height,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		track.Stop()
		return domain.ErrClosed
	}
	s.session = sess
	sess.timer = s.clock.AfterFunc(s.interval, func() { s.poll(sess) })
	s.mu.Unlock()

	s.events.Publish(proctor.ScreenShareStarted, "Screen sharing started", map[string]any{
		"width":          settings.Width,
		"height":         settings.Height,
		"frameRate":      settings.FrameRate,
		"displaySurface": settings.DisplaySurface,
	})
	if snd := sender(domain.KindVideo); snd != nil {
		if err := snd.ReplaceTrack(domain.KindVideo, track); err != nil {
			s.log.Warn().Err(err).Msg("replace video with capture")
		}
	}
	s.devices.ShowPreview(track)

	go func() {
		select {
		case <-track.Ended():
			s.interrupted(sess, sender)
		case <-sess.done:
		}
	}()

	s.log.Info().Str("resolution", settings.Resolution()).Msg("screen share started")
	return nil
}

// interrupted handles a capture that ended without a toggle, such as the
// user stopping it from the host's own controls.
func (s *ScreenShare) interrupted(sess *shareSession, sender SenderFunc) {
	s.toggleMu.Lock()
	defer s.toggleMu.Unlock()

	s.mu.Lock()
	current := s.session == sess
	s.mu.Unlock()
	if !current {
		return
	}
	s.events.Publish(proctor.ScreenShareInterrupted, "Screen share ended unexpectedly", nil)
	s.stop(sess, sender)
}

// stop ends sess and puts the camera back on the video sender.
func (s *ScreenShare) stop(sess *shareSession, sender SenderFunc) {
	if !s.detach(sess) {
		return
	}
	sess.track.Stop()
	s.events.Publish(proctor.ScreenShareStopped, "Screen sharing stopped", nil)

	if snd := sender(domain.KindVideo); snd != nil {
		if cam := s.devices.Track(domain.KindVideo); cam != nil {
			if err := snd.ReplaceTrack(domain.KindVideo, cam); err != nil {
				s.log.Warn().Err(err).Msg("restore camera track")
			}
		}
	}
	s.devices.RestorePreview()
	s.log.Info().Msg("screen share stopped")
}

func (s *ScreenShare) detach(sess *shareSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != sess {
		return false
	}
	s.session = nil
	sess.timer.Stop()
	close(sess.done)
	return true
}

func (s *ScreenShare) poll(sess *shareSession) {
	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return
	}
	settings := sess.track.Settings()
	var meta map[string]any
	if settings.Width != sess.width || settings.Height != sess.height {
		meta = map[string]any{
			"old_res": domain.TrackSettings{Width: sess.width, Height: sess.height}.Resolution(),
			"new_res": settings.Resolution(),
		}
		sess.width, sess.height = settings.Width, settings.Height
	}
	sess.timer = s.clock.AfterFunc(s.interval, func() { s.poll(sess) })
	s.mu.Unlock()

	if meta != nil {
		s.log.Warn().Interface("change", meta).Msg("shared screen changed")
		s.events.Publish(proctor.ScreenMonitorChanged, "Shared screen resolution changed", meta)
	}
}

// Close stops the capture without publishing events.
func (s *ScreenShare) Close() {
	s.mu.Lock()
	s.closed = true
	sess := s.session
	s.mu.Unlock()
	if sess != nil && s.detach(sess) {
		sess.track.Stop()
	}
}
