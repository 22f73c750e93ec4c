package main

import (
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"peercall/native/internal/api"
	"peercall/native/internal/call"
	"peercall/native/internal/clock"
	"peercall/native/internal/config"
	"peercall/native/internal/domain"
	"peercall/native/internal/media/synthetic"
	"peercall/native/internal/negotiation"
	"peercall/native/internal/signal"
	"peercall/native/internal/webrtc"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagVideoOut string
	flagAudioOut string
)

// videoFrame is the payload of synthetic video samples. Its content is
// opaque to the transport.
var videoFrame = make([]byte, 1200)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join the room and stay in the call until interrupted",
	Long: `Join the room and stay in the call until interrupted.

Examples:
  peercall join --room abc --user 12 --role recruiter
  peercall join --room abc --user 13 --video-out remote.ivf --audio-out remote.ogg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJoin(cmd)
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagVideoOut, "video-out", "", "write remote video to this file")
	joinCmd.Flags().StringVar(&flagAudioOut, "audio-out", "", "write remote audio to this file")
}

func runJoin(cmd *cobra.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.APIURL != "" {
		resolveRole(ctx, api.NewClient(cfg.APIURL, nil), cfg, log)
	}

	outputs := map[string]io.Writer{}
	if flagAudioOut != "" {
		f, err := os.Create(flagAudioOut)
		if err != nil {
			return fmt.Errorf("audio output: %w", err)
		}
		defer f.Close()
		outputs["default"] = f
	}
	platform := synthetic.NewPlatform(synthetic.Options{Outputs: outputs})

	mgr := call.New(call.Options{
		Session:    cfg.Room,
		Role:       cfg.NegotiationRole(),
		Proctoring: cfg.Proctoring,
		Retry: negotiation.RetryPolicy{
			Base:        cfg.RetryBase,
			Cap:         cfg.RetryCap,
			MaxAttempts: cfg.RetryMaxAttempts,
		},
		ScreenPoll: cfg.ScreenPoll,
	}, platform, clock.Real(), log)

	if flagVideoOut != "" {
		f, err := os.Create(flagVideoOut)
		if err != nil {
			return fmt.Errorf("video output: %w", err)
		}
		defer f.Close()
		mgr.SetVideoSink(f)
	}

	pionAPI, err := webrtc.NewAPI()
	if err != nil {
		return err
	}
	mgr.SetPeerFactory(webrtc.NewFactory(pionAPI, cfg.ICEServers(), mgr.Sink(), log))

	codec, err := signal.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	mgr.SetSignaler(signal.NewClient(cfg.SignalURL, codec, mgr, log))

	go feed(ctx, platform)

	log.Info().
		Str("room", cfg.Room.RoomID).
		Str("user", cfg.Room.UserID).
		Str("role", string(cfg.Room.Role)).
		Str("negotiation", cfg.NegotiationRole().String()).
		Msg("joining")
	if err := mgr.Open(ctx); err != nil {
		return err
	}
	go logNotices(ctx, mgr, log)

	select {
	case <-ctx.Done():
		log.Info().Msg("interrupted, leaving")
		mgr.Leave()
		<-mgr.Done()
	case <-mgr.Done():
	}
	return mgr.Err()
}

// resolveRole asks the API which side of the interview the user is on. The
// configured role stays when the API is unreachable.
func resolveRole(ctx context.Context, fetcher domain.InterviewFetcher, cfg *config.Config, log zerolog.Logger) {
	iv, err := fetcher.FetchInterview(ctx, cfg.Room.Token, cfg.Room.RoomID)
	if err != nil {
		log.Warn().Err(err).Msg("interview lookup failed, keeping configured role")
		return
	}
	if role, ok := iv.RoleOf(cfg.Room.UserID); ok {
		cfg.Room.Role = role
	}
}

// feed starts a sample pump for every track the platform hands out,
// including tracks acquired later by device switches and screen shares.
func feed(ctx context.Context, platform *synthetic.Platform) {
	started := make(map[*synthetic.Track]bool)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		for _, t := range append(platform.Captured(), platform.Displays()...) {
			if started[t] || t.Stopped() {
				continue
			}
			started[t] = true
			frame, interval := videoFrame, 33*time.Millisecond
			if t.Kind() == domain.KindAudio {
				frame, interval = synthetic.OpusSilence, 20*time.Millisecond
			}
			t := t
			go func() { _ = synthetic.Pump(ctx, t, frame, interval) }()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func logNotices(ctx context.Context, mgr *call.Manager, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-mgr.Done():
			return
		case n := <-mgr.Notices():
			log.Warn().Err(n.Err).Str("kind", n.Kind.String()).Msg("call notice")
		}
	}
}
