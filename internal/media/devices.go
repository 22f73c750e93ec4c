// Package media owns the local capture tracks: camera and microphone
// selection, output sink selection and screen sharing.
package media

import (
	"context"
	"fmt"
	"io"
	"sync"

	"peercall/native/internal/domain"
	"peercall/native/internal/logging"
	"peercall/native/internal/proctor"

	"github.com/rs/zerolog"
)

// Publisher publishes integrity events on the signaling channel.
type Publisher interface {
	Publish(eventType, message string, metadata map[string]any)
}

// SenderFunc returns the sender currently carrying media of kind, or nil
// when no connection should be touched.
type SenderFunc func(kind domain.MediaKind) domain.TrackSender

// DefaultConstraints is the initial camera and microphone request.
func DefaultConstraints() domain.Constraints {
	return domain.Constraints{
		Audio: &domain.TrackConstraint{EchoCancellation: true, NoiseSuppression: true},
		Video: &domain.TrackConstraint{Width: 1280, Height: 720},
	}
}

// Devices is the local media device controller. It owns the camera and
// microphone tracks and the remote audio output sink.
type Devices struct {
	platform domain.MediaPlatform
	events   Publisher
	log      zerolog.Logger

	// serializes Switch calls across the platform request
	switchMu sync.Mutex

	mu        sync.Mutex
	tracks    map[domain.MediaKind]domain.Track
	endpoints map[domain.DeviceKind]string
	output    io.Writer
	video     io.Writer
	preview   domain.Track
	closed    bool
}

func NewDevices(platform domain.MediaPlatform, events Publisher, logger zerolog.Logger) *Devices {
	return &Devices{
		platform:  platform,
		events:    events,
		log:       logging.Component(logger, "devices"),
		tracks:    make(map[domain.MediaKind]domain.Track),
		endpoints: make(map[domain.DeviceKind]string),
		output:    io.Discard,
		video:     io.Discard,
	}
}

// Acquire requests the initial camera and microphone stream.
func (d *Devices) Acquire(ctx context.Context) error {
	tracks, err := d.platform.GetUserMedia(ctx, DefaultConstraints())
	if err != nil {
		return domain.NewCallError(domain.KindMediaAcquisition, "acquire camera and microphone", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		domain.StopTracks(tracks)
		return domain.ErrClosed
	}
	for _, t := range tracks {
		d.tracks[t.Kind()] = t
		d.endpoints[inputKind(t.Kind())] = t.Settings().DeviceID
	}
	if d.tracks[domain.KindAudio] == nil || d.tracks[domain.KindVideo] == nil {
		for _, t := range d.tracks {
			t.Stop()
		}
		d.tracks = make(map[domain.MediaKind]domain.Track)
		return domain.NewCallError(domain.KindMediaAcquisition, "acquire camera and microphone", domain.ErrDeviceNotFound)
	}
	d.log.Info().
		Str("audio", d.endpoints[domain.DeviceAudioInput]).
		Str("video", d.endpoints[domain.DeviceVideoInput]).
		Msg("local media acquired")
	return nil
}

// Scan reports virtual devices among the current track labels and the
// enumerated devices. Every pass reports each matching label once, so a
// device that stays plugged in is reported again on the next pass. Track
// labels are still checked when enumeration fails.
func (d *Devices) Scan(ctx context.Context) ([]domain.DeviceInfo, error) {
	d.mu.Lock()
	labels := make([]string, 0, len(d.tracks))
	for _, t := range d.tracks {
		labels = append(labels, t.Label())
	}
	d.mu.Unlock()

	devices, err := d.platform.EnumerateDevices(ctx)
	for _, dev := range devices {
		labels = append(labels, dev.Label)
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		d.report(l)
	}
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	return devices, nil
}

func (d *Devices) report(label string) {
	kw, ok := VirtualDeviceKeyword(label)
	if !ok {
		return
	}
	d.log.Warn().Str("label", label).Str("keyword", kw).Msg("suspicious device detected")
	d.events.Publish(proctor.VirtualDevice, "Suspicious device detected: "+label, map[string]any{"label": label, "keyword": kw})
}

// Tracks returns the outgoing camera and microphone tracks.
func (d *Devices) Tracks() []domain.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.Track
	for _, k := range []domain.MediaKind{domain.KindAudio, domain.KindVideo} {
		if t := d.tracks[k]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Track returns the current track of kind.
func (d *Devices) Track(kind domain.MediaKind) domain.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracks[kind]
}

// Endpoints returns the selected device of every kind.
func (d *Devices) Endpoints() []domain.MediaEndpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.MediaEndpoint
	for _, k := range []domain.DeviceKind{domain.DeviceAudioInput, domain.DeviceVideoInput, domain.DeviceAudioOutput} {
		out = append(out, domain.MediaEndpoint{Kind: k, DeviceID: d.endpoints[k]})
	}
	return out
}

// Toggle flips the enabled flag of the track of kind and returns the new
// value. Disabled tracks keep their sender and send no media.
func (d *Devices) Toggle(kind domain.MediaKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.tracks[kind]
	if t == nil {
		return false
	}
	t.SetEnabled(!t.Enabled())
	return t.Enabled()
}

// Switch selects a new device. Input devices are replaced in place on the
// connection returned by sender; output devices only move the render sink.
// On failure the previous device stays active.
func (d *Devices) Switch(ctx context.Context, kind domain.DeviceKind, deviceID string, sender SenderFunc) error {
	d.switchMu.Lock()
	defer d.switchMu.Unlock()

	if d.isClosed() {
		return domain.ErrClosed
	}
	if _, err := d.Scan(ctx); err != nil {
		d.log.Warn().Err(err).Msg("device scan failed")
	}

	op := "switch " + string(kind)
	if kind == domain.DeviceAudioOutput {
		w, err := d.platform.OpenOutput(ctx, deviceID)
		if err != nil {
			return domain.NewCallError(domain.KindDeviceSwitch, op, err)
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return domain.ErrClosed
		}
		d.output = w
		d.endpoints[kind] = deviceID
		d.log.Info().Str("device", deviceID).Msg("audio output switched")
		return nil
	}

	mk := kind.MediaKind()
	constraints := constraintsFor(kind, deviceID)
	acquired, err := d.platform.GetUserMedia(ctx, constraints)
	if err != nil {
		return domain.NewCallError(domain.KindDeviceSwitch, op, err)
	}
	var fresh domain.Track
	for _, t := range acquired {
		if t.Kind() == mk && fresh == nil {
			fresh = t
		} else {
			t.Stop()
		}
	}
	if fresh == nil {
		return domain.NewCallError(domain.KindDeviceSwitch, op, domain.ErrDeviceNotFound)
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		fresh.Stop()
		return domain.ErrClosed
	}
	old := d.tracks[mk]
	if old != nil {
		fresh.SetEnabled(old.Enabled())
	}
	d.tracks[mk] = fresh
	prevEndpoint := d.endpoints[kind]
	d.endpoints[kind] = deviceID
	d.mu.Unlock()

	if s := sender(mk); s != nil {
		if err := s.ReplaceTrack(mk, fresh); err != nil {
			d.mu.Lock()
			if d.tracks[mk] == fresh {
				d.tracks[mk] = old
				d.endpoints[kind] = prevEndpoint
			}
			d.mu.Unlock()
			fresh.Stop()
			return domain.NewCallError(domain.KindDeviceSwitch, op, err)
		}
	}
	if old != nil {
		old.Stop()
	}
	d.log.Info().Str("kind", string(kind)).Str("device", deviceID).Msg("input device switched")
	return nil
}

// constraintsFor requests only the switched kind so the other track keeps
// its current device.
func constraintsFor(kind domain.DeviceKind, deviceID string) domain.Constraints {
	if kind == domain.DeviceVideoInput {
		return domain.Constraints{Video: &domain.TrackConstraint{DeviceID: deviceID, Width: 1280, Height: 720}}
	}
	return domain.Constraints{Audio: &domain.TrackConstraint{DeviceID: deviceID, EchoCancellation: true, NoiseSuppression: true}}
}

// SetVideoSink sets where remote video is rendered.
func (d *Devices) SetVideoSink(w io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.video = w
}

// VideoSink implements domain.RenderSink.
func (d *Devices) VideoSink() io.Writer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.video
}

// AudioSink implements domain.RenderSink. It follows audio output switches.
func (d *Devices) AudioSink() io.Writer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}

// ShowPreview renders t locally instead of the camera.
func (d *Devices) ShowPreview(t domain.Track) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preview = t
}

// RestorePreview goes back to the camera preview.
func (d *Devices) RestorePreview() { d.ShowPreview(nil) }

// Preview returns the track shown in the local preview.
func (d *Devices) Preview() domain.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.preview != nil {
		return d.preview
	}
	return d.tracks[domain.KindVideo]
}

func (d *Devices) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Close stops every local track. Results of in-flight requests are stopped
// and discarded when they complete.
func (d *Devices) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for k, t := range d.tracks {
		t.Stop()
		delete(d.tracks, k)
	}
	d.preview = nil
}

func inputKind(k domain.MediaKind) domain.DeviceKind {
	if k == domain.KindVideo {
		return domain.DeviceVideoInput
	}
	return domain.DeviceAudioInput
}
