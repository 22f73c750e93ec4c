package synthetic

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
)

// OpusSilence is a single 20ms Opus frame of digital silence.
var OpusSilence = []byte{0xf8, 0xff, 0xfe}

// Pump writes frame to t every interval until ctx is done or the track
// stops. Disabled tracks skip frames.
func Pump(ctx context.Context, t *Track, frame []byte, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Ended():
			return nil
		case <-ticker.C:
			if err := t.WriteSample(media.Sample{Data: frame, Duration: interval}); err != nil {
				return err
			}
		}
	}
}
