package main

import (
	"fmt"
	"log/slog"

	"peanut/internal/chat"
	"peanut/internal/chat/discord"
	"peanut/internal/collector"
	"peanut/internal/config"
	"peanut/internal/database"
	"peanut/internal/llm"
	"peanut/internal/logger"
	"peanut/internal/qa"
	"peanut/internal/search"
)

// app bundles the dependencies shared by all commands. Chat and backend
// clients are built lazily so read-only commands work without a platform
// token or a running backend.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	registry *database.Registry
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	return &app{
		cfg:      cfg,
		log:      log,
		registry: database.NewRegistry(cfg.Database.PathTemplate, log),
	}, nil
}

func (a *app) close() {
	a.registry.CloseAll()
}

func (a *app) chatClient() (chat.Client, error) {
	if a.cfg.Discord.Token == "" {
		return nil, fmt.Errorf("discord token is not configured")
	}
	return discord.New(a.cfg.Discord.Token, a.log)
}

func (a *app) collector(client chat.Client) *collector.Collector {
	return collector.New(client, a.registry, collector.Config{
		PageSize:    a.cfg.Collector.PageSize,
		BatchSize:   a.cfg.Collector.BatchSize,
		MaxBackfill: a.cfg.Collector.MaxBackfill,
		BotIDs:      a.cfg.Discord.BotIDs,
	}, a.log)
}

// engineFor builds the relevance search engine over one guild's store.
func (a *app) engineFor(guildID string) (*search.Engine, error) {
	tenant, err := a.registry.Get(guildID)
	if err != nil {
		return nil, err
	}
	return search.NewEngine(tenant.Store, a.cfg.Search.Stopwords, a.cfg.Discord.BotIDs, a.log), nil
}

func (a *app) qaService() (*qa.Service, error) {
	backend, err := llm.New(&llm.Config{
		APIURL:      a.cfg.LLM.APIURL,
		APIKey:      a.cfg.LLM.APIKey,
		Model:       a.cfg.LLM.Model,
		Temperature: a.cfg.LLM.Temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Timeout:     a.cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return qa.New(a.engineFor, backend, a.log), nil
}
