package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mattn/go-colorable"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizlive/go/internal/config"
	"github.com/mcdev12/quizlive/go/internal/quiz/render"
	"github.com/mcdev12/quizlive/go/internal/quiz/session"
	"github.com/mcdev12/quizlive/go/internal/quiz/transport"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := flag.String("config", os.Getenv("QUIZ_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	endpoint, err := cfg.ResolveEndpoint()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve coordinator endpoint")
	}

	playerID := cfg.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("player_id", playerID).
		Msg("starting quiz client")

	metrics := transport.NewCounterMetrics()
	out := colorable.NewColorableStdout()
	sinks := render.Fanout{render.NewConsole(out)}

	var statusServer *render.StatusServer
	if cfg.StatusAddr != "" {
		statusServer = render.NewStatusServer(cfg.StatusAddr, metrics)
		sinks = append(sinks, statusServer)
		go func() {
			if err := statusServer.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	nc := setupMirror(cfg, playerID, &sinks)

	ctrl := session.NewController(sinks, session.WithKeepalive(cfg.KeepaliveInterval))
	adapter := transport.New(transportConfig(cfg, endpoint, playerID), ctrl, transport.WithMetrics(metrics))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(ctx, adapter); err != nil {
			log.Error().Err(err).Msg("session controller failed")
		}
	}()

	ctrl.Connect()

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		readCommands(os.Stdin, out, ctrl)
	}()

	// Wait for interrupt signal or quit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-inputDone:
		log.Info().Msg("input closed")
	}

	// Graceful shutdown
	cancel()
	<-runDone

	if err := adapter.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close coordinator connection")
	}

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status server shutdown failed")
		}
	}

	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Error().Err(err).Msg("NATS drain failed")
		}
	}

	log.Info().Msg("quiz client shutdown complete")
}

// setupMirror connects the NATS mirror when configured. Failure only disables the mirror.
func setupMirror(cfg config.Config, playerID string, sinks *render.Fanout) *nats.Conn {
	if cfg.NATS.URL == "" {
		return nil
	}

	natsCfg := render.DefaultNATSConfig()
	natsCfg.URL = cfg.NATS.URL
	natsCfg.Subject = cfg.NATS.Subject
	natsCfg.JetStream = cfg.NATS.JetStream

	nc, err := render.ConnectNATS(natsCfg)
	if err != nil {
		log.Error().Err(err).Msg("session mirror disabled")
		return nil
	}

	var pub render.Publisher = nc
	if natsCfg.JetStream {
		pub, err = render.NewJetStreamPublisher(nc)
		if err != nil {
			log.Error().Err(err).Msg("session mirror disabled")
			nc.Close()
			return nil
		}
	}

	*sinks = append(*sinks, render.NewNATSMirror(pub, natsCfg.Subject, playerID))
	log.Info().
		Str("nats_url", natsCfg.URL).
		Str("subject", natsCfg.Subject).
		Bool("jetstream", natsCfg.JetStream).
		Msg("session mirror enabled")
	return nc
}

func transportConfig(cfg config.Config, endpoint, playerID string) transport.Config {
	tc := transport.DefaultConfig()
	tc.Endpoint = endpoint
	tc.PlayerID = playerID
	tc.RetryDelay = cfg.RetryDelay
	tc.DialTimeout = cfg.DialTimeout
	tc.WriteTimeout = cfg.WriteTimeout
	tc.ReadTimeout = cfg.ReadTimeout
	tc.PingInterval = cfg.PingInterval
	tc.MaxMessageSize = int64(cfg.MaxMessageSize)
	return tc
}
