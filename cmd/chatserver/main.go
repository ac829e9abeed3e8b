// Command chatserver runs the campaign chat server: the WebSocket gateway
// that mounts realtime campaign sessions, the REST API for the campaign
// directory and token exchange, and the NATS/Redis-backed realtime transport
// behind both.
package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/npcchatter/campaign-chat/internal/auth"
	"github.com/npcchatter/campaign-chat/internal/config"
	"github.com/npcchatter/campaign-chat/internal/directory"
	"github.com/npcchatter/campaign-chat/internal/logging"
	"github.com/npcchatter/campaign-chat/internal/ratelimit"
	"github.com/npcchatter/campaign-chat/internal/realtime"
	"github.com/npcchatter/campaign-chat/internal/ws"
)

func main() {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// --- NATS ---
	natsConfig := realtime.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	nc, err := realtime.Dial(natsConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
	}
	defer rdb.Close()

	// --- PostgreSQL ---
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := directory.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// --- Auth and realtime wiring ---
	issuer := auth.NewIssuer(cfg.AppSecret, cfg.TokenTTL)
	verifier := auth.NewVerifier(cfg.AppSecret)
	transport := realtime.NewNATSTransport(nc, rdb, verifier)
	store := directory.NewStore(db)
	limiter := ratelimit.NewLimiter(rdb)
	exchanger := auth.NewExchanger(cfg.TokenEndpoint, nil)

	// --- Gateway ---
	serverConfig := ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}

	dispatcher := ws.NewMessageDispatcher(nil)
	gw := &gateway{
		transport:    transport,
		exchanger:    exchanger,
		issuer:       issuer,
		store:        store,
		limiter:      limiter,
		historyLimit: cfg.HistoryLimit,
		dispatcher:   dispatcher,
	}
	gw.registerHandlers()

	server := ws.NewServer(serverConfig, verifier, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	server.SetLimiter(limiter)
	server.SetOnDisconnect(gw.onDisconnect)

	apiHandler := &api{
		issuer:    issuer,
		verifier:  verifier,
		store:     store,
		transport: transport,
	}
	server.SetAPIHandler(apiHandler.router())

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("nats_url", cfg.NATSURL).
		Str("redis_addr", cfg.RedisAddr).
		Int("history_limit", cfg.HistoryLimit).
		Msg("campaign chat server starting")

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Stringer("signal", sig).Msg("initiating graceful shutdown")
		if err := server.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
		nc.Close()
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close error")
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
