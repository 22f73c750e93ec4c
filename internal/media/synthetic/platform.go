package synthetic

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"peercall/native/internal/domain"
)

// Options configures a Platform.
type Options struct {
	Devices []domain.DeviceInfo
	// Display is the initial settings of display captures.
	Display domain.TrackSettings
	// Outputs maps audio output device ids to the writer rendering them.
	// Unmapped outputs discard audio.
	Outputs map[string]io.Writer
}

// DefaultDevices is a laptop-like device set.
func DefaultDevices() []domain.DeviceInfo {
	return []domain.DeviceInfo{
		{DeviceID: "mic1", Kind: domain.DeviceAudioInput, Label: "Built-in Microphone"},
		{DeviceID: "cam1", Kind: domain.DeviceVideoInput, Label: "Integrated Camera"},
		{DeviceID: "cam2", Kind: domain.DeviceVideoInput, Label: "USB Camera"},
		{DeviceID: "default", Kind: domain.DeviceAudioOutput, Label: "Speakers"},
	}
}

// Platform implements domain.MediaPlatform with synthetic tracks.
type Platform struct {
	mu          sync.Mutex
	devices     []domain.DeviceInfo
	display     domain.TrackSettings
	outputs     map[string]io.Writer
	failures    map[string]error
	denyDisplay error
	displays    []*Track
	captured    []*Track
	seq         atomic.Uint64
}

func NewPlatform(opts Options) *Platform {
	if opts.Devices == nil {
		opts.Devices = DefaultDevices()
	}
	if opts.Display.Width == 0 {
		opts.Display = domain.TrackSettings{Width: 1920, Height: 1080, FrameRate: 30, DisplaySurface: "monitor"}
	}
	if opts.Outputs == nil {
		opts.Outputs = map[string]io.Writer{}
	}
	return &Platform{
		devices:  opts.Devices,
		display:  opts.Display,
		outputs:  opts.Outputs,
		failures: make(map[string]error),
	}
}

// Fail makes every later acquisition of deviceID return err. A nil err
// clears the failure.
func (p *Platform) Fail(deviceID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, deviceID)
		return
	}
	p.failures[deviceID] = err
}

// DenyDisplay makes display capture fail with err; nil allows it again.
func (p *Platform) DenyDisplay(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyDisplay = err
}

// AddDevice plugs in a device.
func (p *Platform) AddDevice(d domain.DeviceInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append(p.devices, d)
}

// Displays returns every display capture handed out so far.
func (p *Platform) Displays() []*Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Track(nil), p.displays...)
}

// Captured returns every camera and microphone track handed out so far.
func (p *Platform) Captured() []*Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Track(nil), p.captured...)
}

func (p *Platform) EnumerateDevices(ctx context.Context) ([]domain.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.DeviceInfo(nil), p.devices...), nil
}

func (p *Platform) find(kind domain.DeviceKind, id string) (domain.DeviceInfo, error) {
	for _, d := range p.devices {
		if d.Kind == kind && (id == "" || d.DeviceID == id) {
			if err := p.failures[d.DeviceID]; err != nil {
				return domain.DeviceInfo{}, err
			}
			return d, nil
		}
	}
	return domain.DeviceInfo{}, fmt.Errorf("%s %q: %w", kind, id, domain.ErrDeviceNotFound)
}

func (p *Platform) GetUserMedia(ctx context.Context, c domain.Constraints) ([]domain.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	streamID := fmt.Sprintf("stream-%d", p.seq.Add(1))
	var tracks []domain.Track
	fail := func(err error) ([]domain.Track, error) {
		domain.StopTracks(tracks)
		return nil, err
	}

	if c.Audio != nil {
		dev, err := p.find(domain.DeviceAudioInput, c.Audio.DeviceID)
		if err != nil {
			return fail(err)
		}
		t, err := newTrack(domain.KindAudio, fmt.Sprintf("audio-%d", p.seq.Add(1)), streamID, dev.Label,
			domain.TrackSettings{DeviceID: dev.DeviceID})
		if err != nil {
			return fail(err)
		}
		p.captured = append(p.captured, t)
		tracks = append(tracks, t)
	}
	if c.Video != nil {
		dev, err := p.find(domain.DeviceVideoInput, c.Video.DeviceID)
		if err != nil {
			return fail(err)
		}
		w, h := c.Video.Width, c.Video.Height
		if w == 0 || h == 0 {
			w, h = 1280, 720
		}
		t, err := newTrack(domain.KindVideo, fmt.Sprintf("video-%d", p.seq.Add(1)), streamID, dev.Label,
			domain.TrackSettings{DeviceID: dev.DeviceID, Width: w, Height: h, FrameRate: 30})
		if err != nil {
			return fail(err)
		}
		p.captured = append(p.captured, t)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (p *Platform) GetDisplayMedia(ctx context.Context) (domain.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.denyDisplay != nil {
		return nil, p.denyDisplay
	}
	n := p.seq.Add(1)
	t, err := newTrack(domain.KindVideo, fmt.Sprintf("screen-%d", n), fmt.Sprintf("display-%d", n), "screen:0", p.display)
	if err != nil {
		return nil, err
	}
	p.displays = append(p.displays, t)
	return t, nil
}

func (p *Platform) OpenOutput(ctx context.Context, deviceID string) (io.Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.find(domain.DeviceAudioOutput, deviceID); err != nil {
		return nil, err
	}
	if w, ok := p.outputs[deviceID]; ok {
		return w, nil
	}
	return io.Discard, nil
}
