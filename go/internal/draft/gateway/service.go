package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/auth"
)

// Service is the room gateway: a read-only websocket fan-out of relayed
// room events. Actions go through the RPC surface.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

func NewService(config Config, js jetstream.JetStream, snapshots SnapshotProvider, verifier *auth.Verifier, clock clockwork.Clock) *Service {
	cm := NewConnectionManager(config.ConnectionConfig, snapshots, clock)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, verifier),
		eventConsumer:     NewEventConsumer(cm, js, config.JetStreamConfig),
	}
}

// Start runs the connection manager and the event consumer until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.connectionManager.Start(ctx)
	}()

	if err := s.eventConsumer.Start(ctx); err != nil {
		return err
	}
	<-done
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}
