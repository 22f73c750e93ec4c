package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"peercall/native/internal/config"
	"peercall/native/internal/logging"
	"peercall/native/internal/relay"

	"github.com/spf13/cobra"
)

var (
	flagAddr        string
	flagDirectory   string
	flagRequireAuth bool
	flagLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Signaling relay for peercall interview rooms",
	Long: `relay authorizes room joins against a YAML room directory and forwards
offers, answers and ICE candidates between the participants of a room.
Without a directory every room is open.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := config.RelayOptions{
			Addr:      flagAddr,
			Directory: flagDirectory,
			LogLevel:  flagLogLevel,
		}
		if cmd.Flags().Changed("require-auth") {
			opts.RequireAuth = &flagRequireAuth
		}
		cfg, err := config.LoadRelay(opts)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (RELAY_ADDR)")
	rootCmd.Flags().StringVar(&flagDirectory, "directory", "", "room directory YAML file (RELAY_DIRECTORY)")
	rootCmd.Flags().BoolVar(&flagRequireAuth, "require-auth", false, "deny joins without a token (RELAY_REQUIRE_AUTH)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
}

func serve(ctx context.Context, cfg *config.RelayConfig) error {
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	ctx, stop := ossignal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := relay.NewHub(relay.NewDirectory(cfg.Directory, cfg.RequireAuth), log)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           relay.NewRouter(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", cfg.Addr).Str("directory", cfg.Directory).Bool("require_auth", cfg.RequireAuth).Msg("relay listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
