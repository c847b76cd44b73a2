// Package bot wires the collection components together and manages their
// lifecycle: startup self-message purge, the per-tenant collection
// orchestrator, and the periodic task scheduler.
package bot

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"peanut/internal/chat"
	"peanut/internal/collector"
	"peanut/internal/config"
	"peanut/internal/database"
)

// Bot is the long-running collection service.
type Bot struct {
	logger       *slog.Logger
	cfg          *config.Config
	client       chat.Client
	registry     *database.Registry
	orchestrator *collector.Orchestrator
	scheduler    *Scheduler
}

// New creates the bot with all required dependencies.
func New(
	logger *slog.Logger,
	cfg *config.Config,
	client chat.Client,
	registry *database.Registry,
	orch *collector.Orchestrator,
	scheduler *Scheduler,
) *Bot {
	return &Bot{
		logger:       logger.With("component", "bot"),
		cfg:          cfg,
		client:       client,
		registry:     registry,
		orchestrator: orch,
		scheduler:    scheduler,
	}
}

// Run starts all components and blocks until ctx is cancelled or a component
// fails. Shutdown is graceful: the scheduler drains its jobs and tenant
// collection loops observe the cancellation at their next suspension point.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot...")

	b.purgeOwnMessages(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.orchestrator.Run(gCtx)
	})

	g.Go(func() error {
		if err := b.scheduler.Start(gCtx); err != nil {
			return err
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	b.registry.CloseAll()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot stopped gracefully.")
	return nil
}

// purgeOwnMessages removes the bot's own prior messages from every allowed
// tenant store. Earlier runs may have stored them before the author filter
// covered all configured bot IDs; the purge is idempotent.
func (b *Bot) purgeOwnMessages(ctx context.Context) {
	if len(b.cfg.Discord.BotIDs) == 0 {
		return
	}

	guilds, err := b.client.Guilds(ctx)
	if err != nil {
		b.logger.Warn("Error listing guilds for startup purge", "error", err)
		return
	}

	for _, guild := range guilds {
		if !b.orchestrator.Allowed(guild.ID) {
			continue
		}
		tenant, err := b.registry.Get(guild.ID)
		if err != nil {
			b.logger.Warn("Error opening tenant for startup purge", "guild_id", guild.ID, "error", err)
			continue
		}
		for _, botID := range b.cfg.Discord.BotIDs {
			deleted, err := tenant.Store.PurgeAuthor(ctx, botID)
			if err != nil {
				b.logger.Warn("Error purging own messages", "guild_id", guild.ID, "author_id", botID, "error", err)
				continue
			}
			if deleted > 0 {
				b.logger.Info("Purged own messages", "guild_id", guild.ID, "author_id", botID, "deleted", deleted)
			}
		}
	}
}
