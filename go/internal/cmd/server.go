package main

import (
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/banpick/go/internal/auth"
	"github.com/mcdev12/banpick/go/internal/config"
	"github.com/mcdev12/banpick/go/internal/draft/orchestrator"
	"github.com/mcdev12/banpick/go/internal/draft/room"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Connect-Protocol-Version", "Grpc-Status", "Grpc-Message"},
	})

	registerServices(mux, services, auth.NewVerifier(cfg.JWTSecret))
	setupHealthCheck(mux)

	handler := otelhttp.NewHandler(c.Handler(mux), "banpick-api")

	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerServices(mux *http.ServeMux, services *Services, verifier *auth.Verifier) {
	interceptors := connect.WithInterceptors(verifier.Interceptor())

	roomPath, roomHandler := room.NewHandler(services.Room, interceptors)
	mux.Handle(roomPath, roomHandler)

	// Idempotent and only acts once deadline plus grace has passed, so the
	// timeout worker calls it without credentials.
	timeoutPath, timeoutHandler := orchestrator.NewHandler(services.Timeout)
	mux.Handle(timeoutPath, timeoutHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
