package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/config"
	"github.com/mcdev12/banpick/go/internal/draft/catalog"
	"github.com/mcdev12/banpick/go/internal/draft/orchestrator"
	"github.com/mcdev12/banpick/go/internal/draft/room"
	"github.com/mcdev12/banpick/go/internal/messaging"
)

type Services struct {
	Room    *room.Service
	Timeout *orchestrator.Service

	// run drives background work; nil when another process does it.
	run  func(ctx context.Context) error
	nats *nats.Conn
}

func (s *Services) Close() {
	if s.nats != nil {
		s.nats.Close()
	}
}

// setupServices wires store → app → service. The timeout dispatcher is
// either in-process timers or JetStream, drained by the timeout worker.
func setupServices(ctx context.Context, cfg config.Config, store room.Store) (*Services, error) {
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}

	var (
		scheduler room.Scheduler
		services  = &Services{}
		local     *orchestrator.LocalScheduler
	)
	switch cfg.Dispatcher {
	case config.DispatcherJetStream:
		nc, js, err := messaging.Connect(cfg.NATSURL, "banpick-api")
		if err != nil {
			return nil, err
		}
		if err := orchestrator.EnsureTimeoutStream(ctx, js); err != nil {
			nc.Close()
			return nil, err
		}
		services.nats = nc
		scheduler = orchestrator.NewJetStreamScheduler(js, cfg.Grace)
	default:
		local = orchestrator.NewLocalScheduler(nil, cfg.Grace, cfg.Workers)
		scheduler = local
	}

	resolver := orchestrator.NewResolver(store, scheduler, orchestrator.NewRandomStrategy(), cat.Pool(), nil)
	if local != nil {
		if lister, ok := store.(orchestrator.PendingTurnLister); ok {
			if _, err := orchestrator.Rearm(ctx, lister, local); err != nil {
				return nil, err
			}
		}
		services.run = func(ctx context.Context) error {
			return local.Run(ctx, resolver)
		}
	}

	services.Room = room.NewService(room.NewApp(store, scheduler, nil))
	services.Timeout = orchestrator.NewService(resolver, cfg.Grace)

	log.Info().
		Str("store", cfg.Store).
		Str("dispatcher", cfg.Dispatcher).
		Int("pool_size", len(cat.Pool())).
		Dur("grace", cfg.Grace).
		Msg("services configured")
	return services, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}
