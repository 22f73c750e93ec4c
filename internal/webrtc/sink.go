package webrtc

import (
	"io"
	"strings"

	"peercall/native/internal/domain"

	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

// rtpWriter is the common surface of Pion's media container writers.
type rtpWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// sinkWriter resolves the destination on every write so output switches
// take effect mid-stream.
type sinkWriter func() io.Writer

func (s sinkWriter) Write(b []byte) (int, error) { return s().Write(b) }

// newWriter picks a container for the remote codec: Annex-B for H264, IVF
// for VP8 and Ogg for Opus.
func newWriter(codec pion.RTPCodecParameters, out io.Writer) (rtpWriter, error) {
	switch strings.ToLower(codec.MimeType) {
	case strings.ToLower(pion.MimeTypeH264):
		return h264writer.NewWith(out), nil
	case strings.ToLower(pion.MimeTypeVP8):
		w, err := ivfwriter.NewWith(out)
		if err != nil {
			return nil, err
		}
		return w, nil
	case strings.ToLower(pion.MimeTypeOpus):
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		w, err := oggwriter.NewWith(out, codec.ClockRate, channels)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, nil
	}
}

// render writes the remote track to the sink until it ends. Unsupported
// codecs are read and dropped.
func render(track *pion.TrackRemote, sink domain.RenderSink, log zerolog.Logger) {
	out := sinkWriter(sink.VideoSink)
	if track.Kind() == pion.RTPCodecTypeAudio {
		out = sinkWriter(sink.AudioSink)
	}
	w, err := newWriter(track.Codec(), out)
	if err != nil {
		log.Warn().Err(err).Str("codec", track.Codec().MimeType).Msg("open media writer")
	}
	if w != nil {
		defer w.Close()
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("kind", track.Kind().String()).Msg("remote track ended")
			return
		}
		if w == nil {
			continue
		}
		if err := w.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Msg("write remote media")
		}
	}
}
