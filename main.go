package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/gridassist/server/internal/backends"
	"github.com/gridassist/server/internal/core"
	"github.com/gridassist/server/internal/ingest"
	"github.com/gridassist/server/internal/server"
	"github.com/gridassist/server/internal/support/graph"
	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/repo"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
	logx "github.com/gridassist/server/pkg/logger"
	pkgredis "github.com/gridassist/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// External services
	ServiceNow backends.ServiceNowConfig
	Qdrant     backends.QdrantConfig
	Tavily     backends.TavilyConfig

	// Support graph
	Workers      model.WorkersConfig
	Conversation model.ConversationConfig
	Server       model.ServerConfig
	MQTT         model.MQTTConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Service: "gridassist"})

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("connected to redis")

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", cfg.Conversation.TTL).Msg("invalid CONVERSATION_TTL")
	}

	genaiClient, err := workers.NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create gemini client")
	}

	tickets, err := backends.NewServiceNowClient(cfg.ServiceNow)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create servicenow client")
	}
	knowledge, err := backends.NewQdrantSearcher(cfg.Qdrant, genaiClient)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create qdrant searcher")
	}

	var web services.WebSearcher
	if cfg.Tavily.APIKey != "" {
		tavily, err := backends.NewTavilyClient(cfg.Tavily)
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to create tavily client")
		}
		web = tavily
	} else {
		logx.Warn().Msg("TAVILY_API_KEY unset, web search disabled")
		web = noWebSearch{}
	}

	bus := services.NewBus()
	toolbox := &workers.Toolbox{
		Creator:   services.NewIdempotentTicketCreator(tickets),
		Tickets:   tickets,
		Knowledge: knowledge,
		Web:       web,
		Events:    bus,
	}

	workerSet, err := workers.NewSet(ctx, workers.SetConfig{
		Client:  genaiClient,
		Models:  cfg.Workers,
		Toolbox: toolbox,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build worker set")
	}

	engine, err := graph.NewEngine(graph.EngineConfig{
		Workers:      workerSet,
		Tickets:      tickets,
		Users:        backends.NewRedisUserStore(rdb),
		Events:       bus,
		Checkpoints:  repo.NewRedisCheckpointStore(rdb, ttl),
		Conversation: cfg.Conversation,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build engine")
	}

	if cfg.MQTT.Enabled {
		bridge, err := ingest.NewBridge(engine, cfg.MQTT)
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to build mqtt bridge")
		}
		if err := bridge.Start(); err != nil {
			logx.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("failed to start mqtt bridge")
		}
		defer bridge.Stop()
	}

	srv, err := server.New(server.Config{
		Addr:   cfg.Server.Addr,
		Engine: engine,
		Bus:    bus,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build http server")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logx.Fatal().Err(err).Msg("http server exited")
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// noWebSearch keeps the tools wired when no search provider is configured.
type noWebSearch struct{}

func (noWebSearch) Search(context.Context, string) ([]services.WebResult, error) {
	return nil, nil
}
