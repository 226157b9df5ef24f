package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	assemblerx "github.com/wrenhq/wren/agent/assembler"
	contractx "github.com/wrenhq/wren/agent/contract"
	executorx "github.com/wrenhq/wren/agent/executor"
	memoryx "github.com/wrenhq/wren/agent/memory"
	modelx "github.com/wrenhq/wren/agent/model"
	pipelinex "github.com/wrenhq/wren/agent/pipeline"
	plannerx "github.com/wrenhq/wren/agent/planner"
	promptx "github.com/wrenhq/wren/agent/prompt"
	reconcilerx "github.com/wrenhq/wren/agent/reconciler"
	safetyx "github.com/wrenhq/wren/agent/safety"
	toolx "github.com/wrenhq/wren/agent/tool"
	configx "github.com/wrenhq/wren/pkg/config"
	httpapix "github.com/wrenhq/wren/pkg/httpapi"
	_ "github.com/wrenhq/wren/pkg/logger/autoload"
	openrouterx "github.com/wrenhq/wren/pkg/openrouter"
)

type AppConfig struct {
	ModelProvider string `envconfig:"MODEL_PROVIDER" split_words:"true" default:"auto"`
	DatabaseURL   string `envconfig:"DATABASE_URL" split_words:"true"`
	TavilyAPIKey  string `envconfig:"TAVILY_API_KEY" split_words:"true"`
	NowPlayingURL string `envconfig:"NOW_PLAYING_URL" split_words:"true"`

	TurnWindow        int           `envconfig:"TURN_WINDOW" split_words:"true" default:"12"`
	FactLimit         int           `envconfig:"FACT_LIMIT" split_words:"true" default:"32"`
	ToolTimeout       time.Duration `envconfig:"TOOL_TIMEOUT" split_words:"true" default:"15s"`
	SlowTurnThreshold time.Duration `envconfig:"SLOW_TURN_THRESHOLD" split_words:"true" default:"30s"`
	MaxReplans        int           `envconfig:"MAX_REPLANS" split_words:"true" default:"1"`
	QueueDepth        int           `envconfig:"QUEUE_DEPTH" split_words:"true" default:"64"`
}

type conversationStore interface {
	contractx.MemoryStore
	contractx.AuditSink
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")
	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	httpCfg := configx.MustNew[httpapix.Config]("HTTP")

	ctx := context.Background()

	var store conversationStore
	if appCfg.DatabaseURL != "" {
		pg, err := memoryx.NewPostgresStore(appCfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres store")
		}
		if err := pg.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("init postgres schema")
		}
		defer pg.Close()
		store = pg
		log.Info().Msg("using postgres memory store")
	} else {
		store = memoryx.NewInMemoryStore()
		log.Info().Msg("no database url, using in-memory store")
	}

	invoker, err := modelx.Select(appCfg.ModelProvider, *openRouterCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("select model backend")
	}

	catalog, err := toolx.DefaultCatalog(
		toolx.SearchConfig{APIKey: appCfg.TavilyAPIKey},
		toolx.NowPlayingConfig{URL: appCfg.NowPlayingURL},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build tool catalog")
	}

	prompts := promptx.LoadPromptSet()

	pipeline, err := pipelinex.New(
		assemblerx.New(store, appCfg.TurnWindow, appCfg.FactLimit),
		plannerx.New(invoker, catalog, store, prompts.Planner),
		executorx.New(catalog, store, appCfg.ToolTimeout),
		reconcilerx.New(store),
		invoker,
		store,
		safetyx.NewPolicy(),
		prompts,
		pipelinex.Config{
			SlowThreshold: appCfg.SlowTurnThreshold,
			MaxReplans:    appCfg.MaxReplans,
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}

	dispatcher := pipelinex.NewDispatcher(pipeline, appCfg.QueueDepth)
	server := httpapix.NewServer(*httpCfg, dispatcher)

	go func() {
		log.Info().Str("addr", httpCfg.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	dispatcher.Close()
}
