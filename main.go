package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"secure_messenger/internal"
	"secure_messenger/internal/config"
	"secure_messenger/internal/database"
	"secure_messenger/internal/hub"
	"secure_messenger/internal/logging"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secure-messenger",
		Short: "End-to-end encrypted chat relay",
		Long: `secure-messenger relays end-to-end encrypted chat between clients over
websockets. The relay routes frames by room and recipient and never sees a
plaintext message: clients derive pairwise keys from the public keys listed
in each room roster.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand(), newChatCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Example: `  # Start with defaults on :3000
  secure-messenger serve

  # Start with a configuration file
  secure-messenger serve --config /etc/secure-messenger/relay.yaml

  # Override a setting from the environment
  RELAY_LOBBY=Hall secure-messenger serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "f", "", "path to a YAML or TOML configuration file")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func clientOptions(cfg config.Config) hub.ClientOptions {
	return hub.ClientOptions{
		SendQueue:       cfg.Limits.SendQueue,
		MaxFrameBytes:   cfg.Limits.MaxFrameBytes,
		FramesPerSecond: cfg.Limits.FramesPerSecond,
		Burst:           cfg.Limits.Burst,
		PingInterval:    cfg.WebSocket.PingInterval,
		PongWait:        cfg.WebSocket.PongWait,
		WriteWait:       cfg.WebSocket.WriteWait,
	}
}

// newRouter mounts the HTTP surface behind CORS.
func newRouter(controller *Controller, gatherer prometheus.Gatherer, cfg config.Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", controller.HandleWS)
	mux.HandleFunc("/health", controller.HandleHealth)
	mux.HandleFunc("/rooms", controller.HandleRooms)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/", NewStaticHandler(cfg.StaticDir))

	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	}).Handler(mux)
}

func runServer(ctx context.Context, cfg config.Config) error {
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()
	store := database.NewStore(db)
	recorder := database.NewRecorder(store, 0)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	g, gctx := errgroup.WithContext(ctx)

	h := hub.NewHub(gctx, hub.Options{
		Lobby:      cfg.Lobby,
		Registerer: registry,
		Activity:   recorder,
		Client:     clientOptions(cfg),
	})
	controller := NewController(gctx, h, store, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newRouter(controller, registry, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	if cfg.TLS.Enabled() {
		tlsConfig, err := internal.LoadTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsConfig
	}

	g.Go(func() error {
		h.Run()
		return nil
	})
	g.Go(func() error {
		recorder.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheme := "ws"
		if srv.TLSConfig != nil {
			scheme = "wss"
		}
		slog.Info("relay listening", "address", cfg.ListenAddress, "scheme", scheme, "lobby", cfg.Lobby)

		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", cfg.ListenAddress, err)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "grace_period", cfg.ShutdownGracePeriod)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
