package domain

import (
	"context"
	"fmt"
	"io"
)

// MediaKind is the kind of a media track.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// DeviceKind is the kind of a media device.
type DeviceKind string

const (
	DeviceAudioInput  DeviceKind = "audioinput"
	DeviceVideoInput  DeviceKind = "videoinput"
	DeviceAudioOutput DeviceKind = "audiooutput"
)

// ParseDeviceKind validates a device kind string.
func ParseDeviceKind(s string) (DeviceKind, error) {
	switch k := DeviceKind(s); k {
	case DeviceAudioInput, DeviceVideoInput, DeviceAudioOutput:
		return k, nil
	}
	return "", fmt.Errorf("unknown device kind %q", s)
}

// MediaKind returns the track kind captured by an input device kind.
func (k DeviceKind) MediaKind() MediaKind {
	if k == DeviceVideoInput {
		return KindVideo
	}
	return KindAudio
}

type DeviceInfo struct {
	DeviceID string
	Kind     DeviceKind
	Label    string
	GroupID  string
}

// MediaEndpoint is the selected device of one kind.
type MediaEndpoint struct {
	Kind     DeviceKind
	DeviceID string
}

// TrackSettings are the live settings of a track.
type TrackSettings struct {
	DeviceID       string
	Width          int
	Height         int
	FrameRate      float64
	DisplaySurface string
}

// Resolution formats the settings as WIDTHxHEIGHT.
func (s TrackSettings) Resolution() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Track is a local media track.
type Track interface {
	ID() string
	Kind() MediaKind
	Label() string
	Settings() TrackSettings
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	// Ended is closed when the track stops, for any reason.
	Ended() <-chan struct{}
}

// TrackConstraint selects a device for one track kind.
type TrackConstraint struct {
	DeviceID         string
	Width            int
	Height           int
	EchoCancellation bool
	NoiseSuppression bool
}

// Constraints requests a user-media stream. A nil entry omits that kind.
type Constraints struct {
	Audio *TrackConstraint
	Video *TrackConstraint
}

// MediaPlatform exposes the capture primitives of the host.
type MediaPlatform interface {
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
	GetUserMedia(ctx context.Context, c Constraints) ([]Track, error)
	GetDisplayMedia(ctx context.Context) (Track, error)
	// OpenOutput returns the writer rendering remote audio on a device.
	OpenOutput(ctx context.Context, deviceID string) (io.Writer, error)
}

// StopTracks stops every track in tracks.
func StopTracks(tracks []Track) {
	for _, t := range tracks {
		if t != nil {
			t.Stop()
		}
	}
}
