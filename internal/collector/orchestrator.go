package collector

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"peanut/internal/chat"
	"peanut/internal/database"
)

const (
	// maxSleepSlice bounds each scheduling sleep so cancellation and interval
	// changes are observed promptly.
	maxSleepSlice = 5 * time.Minute

	// errorRetryDelay is the pause after a failed cycle before retrying.
	errorRetryDelay = 5 * time.Minute

	// guildListTimeout bounds one watchdog guild enumeration.
	guildListTimeout = 30 * time.Second
)

// Orchestrator supervises one scheduling task per allowed tenant. Each task
// loops forever: collect when the tenant's checkpoint interval has elapsed,
// otherwise sleep in bounded slices. EnsureTenants restarts dead tasks and
// picks up newly joined guilds; it is meant to be invoked periodically by
// the scheduler.
type Orchestrator struct {
	collector *Collector
	client    chat.Client
	registry  *database.Registry
	interval  time.Duration
	allowed   map[string]struct{}
	logger    *slog.Logger

	mu    sync.Mutex
	tasks map[string]*tenantTask
	wg    sync.WaitGroup
}

type tenantTask struct {
	guild chat.Guild
	done  chan struct{}
}

// NewOrchestrator creates an Orchestrator. An empty allowedGuildIDs list
// admits every guild the bot is a member of.
func NewOrchestrator(c *Collector, client chat.Client, registry *database.Registry, interval time.Duration, allowedGuildIDs []string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var allowed map[string]struct{}
	if len(allowedGuildIDs) > 0 {
		allowed = make(map[string]struct{}, len(allowedGuildIDs))
		for _, id := range allowedGuildIDs {
			if id != "" {
				allowed[id] = struct{}{}
			}
		}
	}
	return &Orchestrator{
		collector: c,
		client:    client,
		registry:  registry,
		interval:  interval,
		allowed:   allowed,
		logger:    logger.With("component", "orchestrator"),
		tasks:     make(map[string]*tenantTask),
	}
}

// Allowed reports whether a guild is admitted for collection.
func (o *Orchestrator) Allowed(guildID string) bool {
	if o.allowed == nil {
		return true
	}
	_, ok := o.allowed[guildID]
	return ok
}

// Run starts a scheduling task for every allowed guild and blocks until ctx
// is cancelled, then waits for all tasks to drain.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.EnsureTenants(ctx); err != nil {
		o.logger.WarnContext(ctx, "Initial tenant enumeration failed, watchdog will retry", "error", err)
	}

	<-ctx.Done()
	o.wg.Wait()
	return nil
}

// EnsureTenants lists the bot's guilds and makes sure every allowed one has
// a live scheduling task. Dead tasks (crashed or never started) are started
// anew without disturbing the others.
func (o *Orchestrator) EnsureTenants(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	listCtx, cancel := context.WithTimeout(ctx, guildListTimeout)
	defer cancel()

	guilds, err := o.client.Guilds(listCtx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, guild := range guilds {
		if !o.Allowed(guild.ID) {
			continue
		}

		if task, ok := o.tasks[guild.ID]; ok {
			select {
			case <-task.done:
				o.logger.WarnContext(ctx, "Tenant task died, restarting", "guild_id", guild.ID)
			default:
				continue
			}
		}

		o.startTask(ctx, guild)
	}
	return nil
}

// startTask launches one tenant scheduling loop. Caller holds o.mu.
func (o *Orchestrator) startTask(ctx context.Context, guild chat.Guild) {
	task := &tenantTask{guild: guild, done: make(chan struct{})}
	o.tasks[guild.ID] = task

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(task.done)
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("Tenant task panicked", "guild_id", guild.ID, "panic", r)
			}
		}()
		o.runTenant(ctx, guild)
	}()

	o.logger.InfoContext(ctx, "Tenant task started", "guild_id", guild.ID, "guild_name", guild.Name)
}

// runTenant is the per-tenant scheduling loop: collect when the interval has
// elapsed since the tenant's last checkpoint, otherwise sleep in bounded
// slices. It exits only on context cancellation.
func (o *Orchestrator) runTenant(ctx context.Context, guild chat.Guild) {
	log := o.logger.With("guild_id", guild.ID)

	for {
		if ctx.Err() != nil {
			return
		}

		wait, err := o.timeUntilDue(ctx, guild.ID)
		if err != nil {
			log.WarnContext(ctx, "Error reading tenant checkpoint, collecting anyway", "error", err)
			wait = 0
		}

		if wait > 0 {
			if wait > maxSleepSlice {
				wait = maxSleepSlice
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return
			}
			continue
		}

		if _, err := o.collector.Collect(ctx, guild); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WarnContext(ctx, "Collection cycle failed, retrying later", "error", err)
			if err := sleepCtx(ctx, errorRetryDelay); err != nil {
				return
			}
		}
	}
}

// timeUntilDue returns how long until the tenant's next collection, zero
// when a cycle is due now.
func (o *Orchestrator) timeUntilDue(ctx context.Context, guildID string) (time.Duration, error) {
	tenant, err := o.registry.Get(guildID)
	if err != nil {
		return 0, err
	}

	value, err := tenant.Store.GetCheckpoint(ctx, GuildCheckpointKey(guildID), "")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	last, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, nil
	}

	elapsed := time.Since(last)
	if elapsed >= o.interval {
		return 0, nil
	}
	return o.interval - elapsed, nil
}
