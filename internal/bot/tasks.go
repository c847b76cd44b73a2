package bot

import (
	"context"
	"log/slog"
	"time"

	"peanut/internal/collector"
	"peanut/internal/database"
)

// TaskFunc is one scheduled maintenance task.
type TaskFunc func(ctx context.Context) error

// Task pairs a task function with its run interval.
type Task struct {
	Every time.Duration
	Func  TaskFunc
}

const (
	watchdogTaskName    = "collection_watchdog"
	maintenanceTaskName = "sqlite_maintenance"

	watchdogInterval    = 60 * time.Second
	maintenanceInterval = 24 * time.Hour
)

// BuildTasks assembles the periodic task registry: the tenant watchdog that
// restarts dead collection loops and picks up newly joined guilds, and the
// per-tenant database maintenance run.
func BuildTasks(orch *collector.Orchestrator, registry *database.Registry, logger *slog.Logger) map[string]Task {
	return map[string]Task{
		watchdogTaskName: {
			Every: watchdogInterval,
			Func:  orch.EnsureTenants,
		},
		maintenanceTaskName: {
			Every: maintenanceInterval,
			Func: func(ctx context.Context) error {
				for _, tenant := range registry.Open() {
					if err := tenant.Store.RunMaintenance(ctx); err != nil {
						logger.WarnContext(ctx, "Tenant maintenance failed", "guild_id", tenant.GuildID, "error", err)
					}
				}
				return nil
			},
		},
	}
}
