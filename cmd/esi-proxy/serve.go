package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/esi-middleware/internal/config"
	"github.com/Sternrassler/esi-middleware/pkg/client"
	"github.com/Sternrassler/esi-middleware/pkg/logging"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	return cmd
}

// serve runs the proxy until SIGINT or SIGTERM.
func serve(parent context.Context, cfg config.Config) error {
	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("esi-proxy")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	clientCfg, err := cfg.ClientConfig(store)
	if err != nil {
		return err
	}
	esiClient, err := client.New(clientCfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(esiClient, cfg.Server.RequestTimeout, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown error")
		}
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("version", version).
		Str("user_agent", cfg.ESI.UserAgent).
		Str("cache_backend", cfg.Cache.Backend).
		Bool("cache_disabled", cfg.Cache.Disabled).
		Str("cache_strategy", cfg.ESI.CacheStrategy).
		Msg("ESI proxy listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}
