package main

import (
	"github.com/spf13/cobra"

	"peanut/internal/bot"
	"peanut/internal/collector"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the collection service",
	Long: `Start the long-running collection service: one scheduling loop per
allowed guild, a watchdog that restarts dead loops and picks up newly joined
guilds, and periodic database maintenance. Stops cleanly on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		client, err := a.chatClient()
		if err != nil {
			return err
		}

		col := a.collector(client)
		orch := collector.NewOrchestrator(col, client, a.registry,
			a.cfg.Collector.Interval, a.cfg.Discord.AllowedGuildIDs, a.log)

		sched, err := bot.NewScheduler(a.log, bot.BuildTasks(orch, a.registry, a.log))
		if err != nil {
			return err
		}

		b := bot.New(a.log, a.cfg, client, a.registry, orch, sched)
		return b.Run(cmd.Context())
	},
}
