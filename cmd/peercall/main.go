package main

import (
	"fmt"
	"os"

	"peercall/native/internal/config"
	"peercall/native/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagSignalURL  string
	flagAPIURL     string
	flagRoom       string
	flagUser       string
	flagRole       string
	flagToken      string
	flagCodec      string
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagLogLevel   string
	flagInitiator  bool
	flagProctoring bool
)

var rootCmd = &cobra.Command{
	Use:   "peercall",
	Short: "Join a one-to-one interview call from the command line",
	Long: `peercall joins an interview room through the signaling relay and keeps
one WebRTC call with the other participant alive, recreating stalled
negotiations. Local media comes from synthetic camera, microphone and
screen sources.`,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&flagSignalURL, "signal", "", "relay websocket URL (PEERCALL_SIGNAL_URL)")
	f.StringVar(&flagAPIURL, "api", "", "REST API base URL (PEERCALL_API_URL)")
	f.StringVar(&flagRoom, "room", "", "interview room id (PEERCALL_ROOM_ID)")
	f.StringVar(&flagUser, "user", "", "local user id (PEERCALL_USER_ID)")
	f.StringVar(&flagRole, "role", "", "recruiter, candidate or admin (PEERCALL_USER_ROLE)")
	f.StringVar(&flagToken, "token", "", "bearer token (PEERCALL_AUTH_TOKEN)")
	f.StringVar(&flagCodec, "codec", "", "signaling codec: json or msgpack (PEERCALL_CODEC)")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL (STUN_SERVER)")
	f.StringVar(&flagTURN, "turn", "", "TURN server host (TURN_SERVER)")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username (TURN_USERNAME)")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (TURN_PASSWORD)")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	f.BoolVar(&flagInitiator, "initiator", false, "force the offering side (PEERCALL_INITIATOR)")
	f.BoolVar(&flagProctoring, "proctoring", false, "publish integrity events (PEERCALL_PROCTORING)")

	rootCmd.AddCommand(joinCmd, interviewCmd)
}

// loadConfig merges flags with the environment. Boolean flags only count
// when given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	opts := config.Options{
		SignalURL:  flagSignalURL,
		APIURL:     flagAPIURL,
		RoomID:     flagRoom,
		UserID:     flagUser,
		UserRole:   flagRole,
		Token:      flagToken,
		Codec:      flagCodec,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		LogLevel:   flagLogLevel,
	}
	if cmd.Flags().Changed("initiator") {
		opts.Initiator = &flagInitiator
	}
	if cmd.Flags().Changed("proctoring") {
		opts.Proctoring = &flagProctoring
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel, cfg.LogPretty), nil
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
