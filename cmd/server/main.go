package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/techie-mohit/videoCalling/internal/config"
	"github.com/techie-mohit/videoCalling/internal/iceconfig"
	"github.com/techie-mohit/videoCalling/internal/identity"
	"github.com/techie-mohit/videoCalling/internal/logging"
	"github.com/techie-mohit/videoCalling/internal/metrics"
	"github.com/techie-mohit/videoCalling/internal/server"
	"github.com/techie-mohit/videoCalling/internal/signaling"
	"github.com/techie-mohit/videoCalling/internal/version"
)

func main() {
	var opts config.ServerOptions

	cmd := &cobra.Command{
		Use:           "warpcall-server",
		Short:         "Signaling server for two-party audio and video calls",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Port, "port", "p", "", "listen port (env: PORT)")
	f.StringVar(&opts.JWTSecret, "jwt-secret", "", "secret for session tokens (env: JWT_SECRET)")
	f.StringVar(&opts.Origins, "origins", "", "comma separated allowed origins (env: FRONTEND_URL)")
	f.StringVar(&opts.STUNServers, "stun", "", "comma separated STUN urls (env: STUN_SERVER)")
	f.StringVar(&opts.TURNServers, "turn", "", "comma separated TURN urls (env: TURN_SERVER)")
	f.StringVar(&opts.TURNSecret, "turn-secret", "", "shared secret for TURN REST credentials (env: TURN_SECRET)")
	f.DurationVar(&opts.CredentialTTL, "turn-ttl", 0, "TURN credential lifetime (env: TURN_TTL)")
	f.Float64Var(&opts.MessageRate, "message-rate", 0, "inbound messages per second per connection (env: MESSAGE_RATE)")
	f.IntVar(&opts.MessageBurst, "message-burst", 0, "inbound message burst per connection (env: MESSAGE_BURST)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger := logging.Init(os.Stderr, zerolog.InfoLevel)
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg *config.Server) error {
	logger := logging.Init(os.Stderr, zerolog.InfoLevel)

	m := metrics.New()
	hub := signaling.NewHub(signaling.NewRegistry(), m, signaling.HubOptions{
		MessageRate:  rate.Limit(cfg.MessageRate),
		MessageBurst: cfg.MessageBurst,
	})

	var auth identity.Provider = identity.Anonymous{}
	if cfg.JWTSecret != "" {
		auth = identity.NewJWTProvider(cfg.JWTSecret)
	} else {
		logger.Warn().Msg("JWT_SECRET not set, accepting anonymous connections only")
	}

	ice := iceconfig.NewProvider(iceconfig.Options{
		STUN:          cfg.STUNServers,
		TURN:          cfg.TURNServers,
		Secret:        cfg.TURNSecret,
		Username:      cfg.TURNUser,
		Password:      cfg.TURNPass,
		CredentialTTL: cfg.CredentialTTL,
	})
	ice.Start()
	defer ice.Stop()

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.New(hub, auth, ice, m, cfg.AllowedOrigins).Router(logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("version", version.Version).Msg("starting signaling server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		hub.Stop()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
