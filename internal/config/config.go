package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"peercall/native/internal/domain"

	"github.com/joho/godotenv"
)

const (
	DefaultSignalURL    = "ws://localhost:8000/ws"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultSTUNFallback = "stun:global.stun.twilio.com:3478"
	DefaultCodec        = "json"
	DefaultRetryBase    = 500 * time.Millisecond
	DefaultRetryCap     = 5 * time.Second
	DefaultRetryMax     = 4
	DefaultScreenPoll   = 2 * time.Second
	DefaultRelayAddr    = ":8000"
)

// Config holds the client configuration.
type Config struct {
	SignalURL  string
	APIURL     string
	Room       domain.RoomSession
	Initiator  *bool
	Proctoring bool
	Codec      string

	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	RetryBase        time.Duration
	RetryCap         time.Duration
	RetryMaxAttempts int
	ScreenPoll       time.Duration

	LogLevel  string
	LogPretty bool
}

// Options carries command-line overrides. Zero values defer to the
// environment, then to defaults.
type Options struct {
	SignalURL  string
	APIURL     string
	RoomID     string
	UserID     string
	UserRole   string
	Token      string
	Initiator  *bool
	Proctoring *bool
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	LogLevel   string
}

// Load reads configuration with the following priority:
// command-line options, environment (including a .env file), defaults.
func Load(opts Options) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		SignalURL: pick(opts.SignalURL, "PEERCALL_SIGNAL_URL", DefaultSignalURL),
		APIURL:    strings.TrimRight(pick(opts.APIURL, "PEERCALL_API_URL", ""), "/"),
		Room: domain.RoomSession{
			RoomID: pick(opts.RoomID, "PEERCALL_ROOM_ID", ""),
			UserID: pick(opts.UserID, "PEERCALL_USER_ID", ""),
			Role:   domain.UserRole(pick(opts.UserRole, "PEERCALL_USER_ROLE", string(domain.UserRoleCandidate))),
			Token:  pick(opts.Token, "PEERCALL_AUTH_TOKEN", ""),
		},
		Codec:      pick(opts.Codec, "PEERCALL_CODEC", DefaultCodec),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		LogLevel:   pick(opts.LogLevel, "LOG_LEVEL", "info"),
	}

	if err := cfg.Room.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Room.Role {
	case domain.UserRoleRecruiter, domain.UserRoleCandidate, domain.UserRoleAdmin:
	default:
		return nil, fmt.Errorf("unknown user role %q", cfg.Room.Role)
	}
	if cfg.Codec != "json" && cfg.Codec != "msgpack" {
		return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
	}

	if stun := pick(opts.STUNServer, "STUN_SERVER", ""); stun != "" {
		cfg.STUNServers = []string{stun}
	} else {
		cfg.STUNServers = []string{DefaultSTUN, DefaultSTUNFallback}
	}

	var err error
	if cfg.Initiator, err = boolOption(opts.Initiator, "PEERCALL_INITIATOR"); err != nil {
		return nil, err
	}
	proctoring, err := boolOption(opts.Proctoring, "PEERCALL_PROCTORING")
	if err != nil {
		return nil, err
	}
	cfg.Proctoring = proctoring != nil && *proctoring

	if cfg.RetryBase, err = durationEnv("PEERCALL_RETRY_BASE", DefaultRetryBase); err != nil {
		return nil, err
	}
	if cfg.RetryCap, err = durationEnv("PEERCALL_RETRY_CAP", DefaultRetryCap); err != nil {
		return nil, err
	}
	if cfg.ScreenPoll, err = durationEnv("PEERCALL_SCREEN_POLL", DefaultScreenPoll); err != nil {
		return nil, err
	}
	cfg.RetryMaxAttempts = DefaultRetryMax
	if v := os.Getenv("PEERCALL_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("PEERCALL_RETRY_MAX_ATTEMPTS: invalid value %q", v)
		}
		cfg.RetryMaxAttempts = n
	}
	cfg.LogPretty, _ = strconv.ParseBool(os.Getenv("LOG_PRETTY"))

	return cfg, nil
}

// NegotiationRole resolves the local role, honouring an explicit override.
func (c *Config) NegotiationRole() domain.NegotiationRole {
	if c.Initiator != nil {
		if *c.Initiator {
			return domain.RoleInitiator
		}
		return domain.RoleResponder
	}
	return domain.RoleFor(c.Room.Role)
}

// ICEServers returns the STUN servers followed by TURN, if configured.
func (c *Config) ICEServers() []domain.ICEServer {
	servers := []domain.ICEServer{{URLs: c.STUNServers}}
	if c.TURNServer != "" {
		servers = append(servers, domain.ICEServer{
			URLs: []string{
				fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
				fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
			},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	Addr        string
	Directory   string
	RequireAuth bool
	LogLevel    string
	LogPretty   bool
}

type RelayOptions struct {
	Addr        string
	Directory   string
	RequireAuth *bool
	LogLevel    string
}

// LoadRelay reads the relay configuration with the same priority as Load.
func LoadRelay(opts RelayOptions) (*RelayConfig, error) {
	_ = godotenv.Load()

	cfg := &RelayConfig{
		Addr:      pick(opts.Addr, "RELAY_ADDR", DefaultRelayAddr),
		Directory: pick(opts.Directory, "RELAY_DIRECTORY", ""),
		LogLevel:  pick(opts.LogLevel, "LOG_LEVEL", "info"),
	}
	requireAuth, err := boolOption(opts.RequireAuth, "RELAY_REQUIRE_AUTH")
	if err != nil {
		return nil, err
	}
	cfg.RequireAuth = requireAuth != nil && *requireAuth
	cfg.LogPretty, _ = strconv.ParseBool(os.Getenv("LOG_PRETTY"))
	return cfg, nil
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func boolOption(flag *bool, env string) (*bool, error) {
	if flag != nil {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid boolean %q", env, v)
	}
	return &b, nil
}

func durationEnv(env string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", env, v)
	}
	return d, nil
}
