// Vigil - Intrusion Sensor Correlation and Real-Time Alert Fan-Out
// Copyright 2026 Vigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilhq/vigil

// Command server runs the Vigil alert correlation and fan-out server.
//
// The process hosts everything a single-instance deployment needs: the
// Badger store, the correlation engine, an embedded NATS broker (or a
// connection to an external one), the websocket gateway, and the HTTP
// API, all supervised by a suture tree.
//
// Configuration is layered: built-in defaults, an optional YAML file
// (VIGIL_CONFIG_PATH or the default search paths), then VIGIL_-prefixed
// environment variables. The only setting without a usable default is
// VIGIL_SECURITY_JWT_SECRET.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigilhq/vigil/internal/api"
	"github.com/vigilhq/vigil/internal/auth"
	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/correlation"
	"github.com/vigilhq/vigil/internal/fanout"
	"github.com/vigilhq/vigil/internal/gateway"
	"github.com/vigilhq/vigil/internal/janitor"
	"github.com/vigilhq/vigil/internal/logging"
	"github.com/vigilhq/vigil/internal/store"
	"github.com/vigilhq/vigil/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store_dir", cfg.Store.Dir).
		Bool("nats_embedded", cfg.NATS.Embedded).
		Msg("Starting Vigil")

	// Store. An empty dir runs in-memory, which loses everything on
	// restart; warn loudly so nobody ships that by accident.
	var st *store.Badger
	if cfg.Store.Dir == "" {
		logging.Warn().Msg("Store directory empty, running in-memory: all data is lost on restart")
		st, err = store.OpenInMemory()
	} else {
		st, err = store.Open(cfg.Store.Dir)
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Fan-out broker: embedded for single-instance deployments, or an
	// external URL for clustered ones.
	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		broker, err := fanout.NewEmbeddedServer(fanout.ServerConfig{
			Host: cfg.NATS.Host,
			Port: cfg.NATS.Port,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		natsURL = broker.ClientURL()
		tree.AddMessagingService(supervisor.NewBrokerService(broker, 10*time.Second))
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	}

	publisher, err := fanout.NewPublisher(fanout.DefaultPublisherConfig(natsURL), st)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect fan-out publisher")
	}
	defer publisher.Close()

	engine := correlation.NewEngine(st, st, st, st, st, publisher)

	// Gateway: hub fans frames out to websocket sessions, the bridge
	// feeds it from the broker.
	hub := gateway.NewHub()
	tree.AddMessagingService(supervisor.NewHubService(hub))
	tree.AddMessagingService(gateway.NewBridge(hub, natsURL))

	tree.AddDataService(janitor.New(st, st, janitor.Config{
		Interval:  cfg.Janitor.Interval,
		Retention: cfg.Janitor.Retention,
	}))

	jwtManager, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.SessionTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	handler := api.NewHandler(st, st, st, st, engine, hub, publisher)
	router := api.NewRouter(handler, jwtManager, api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
	}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Vigil stopped")
}
