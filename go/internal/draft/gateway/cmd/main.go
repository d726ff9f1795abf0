package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/auth"
	"github.com/mcdev12/banpick/go/internal/config"
	"github.com/mcdev12/banpick/go/internal/draft/gateway"
	"github.com/mcdev12/banpick/go/internal/draft/outbox"
	"github.com/mcdev12/banpick/go/internal/messaging"
	"github.com/mcdev12/banpick/go/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "banpick-gateway", cfg.OTELEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	nc, js, err := messaging.Connect(cfg.NATSURL, "banpick-gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()

	if err := outbox.EnsureEventStream(ctx, js, outbox.DefaultJetStreamConfig()); err != nil {
		log.Fatal().Err(err).Msg("ensure event stream")
	}

	snapshots := gateway.NewRemoteSnapshotProvider(&http.Client{Timeout: 10 * time.Second}, cfg.APIURL)
	svc := gateway.NewService(gateway.DefaultConfig(), js, snapshots, auth.NewVerifier(cfg.JWTSecret), nil)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !nc.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"nats_connected": nc.IsConnected(),
			"connections":    svc.Stats().TotalConnections,
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", auth.IdentityHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start(ctx)
	}()
	go func() {
		log.Info().Str("addr", server.Addr).Str("api_url", cfg.APIURL).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("gateway shutdown complete")
}
