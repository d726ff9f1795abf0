package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mcdev12/banpick/go/internal/config"
	"github.com/mcdev12/banpick/go/internal/draft/orchestrator"
	"github.com/mcdev12/banpick/go/internal/messaging"
	"github.com/mcdev12/banpick/go/internal/telemetry"
)

// The timeout worker drains DRAFT_TIMEOUTS and resolves each due turn on
// the API server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "banpick-timeouts", cfg.OTELEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	log.Info().
		Str("api_url", cfg.APIURL).
		Str("nats_url", cfg.NATSURL).
		Int("workers", cfg.Workers).
		Msg("starting timeout worker")

	nc, js, err := messaging.Connect(cfg.NATSURL, "banpick-timeouts")
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	resolver := orchestrator.NewRemoteResolver(httpClient, cfg.APIURL)
	consumer := orchestrator.NewTimeoutConsumer(js, resolver, nil, cfg.Grace, cfg.Workers)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !nc.IsConnected() {
			http.Error(w, "NATS disconnected", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	})
	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("timeout consumer failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}
	log.Info().Msg("timeout worker shutdown complete")
}
