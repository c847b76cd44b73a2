// Package collector ingests message history from the chat platform into the
// per-tenant stores. A Collector runs one cycle per guild on demand; the
// Orchestrator in this package schedules and supervises those cycles.
package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"peanut/internal/analyzer"
	"peanut/internal/chat"
	"peanut/internal/database"
)

// Checkpoint key naming convention shared with the stored metadata table.
const (
	KeyLastCollectionTime = "last_collection_time"
	guildKeyPrefix        = "last_collected_guild_"
	channelKeyPrefix      = "last_collected_channel_"
)

// GuildCheckpointKey returns the per-tenant last-run checkpoint key.
func GuildCheckpointKey(guildID string) string { return guildKeyPrefix + guildID }

// ChannelCheckpointKey returns the per-channel last-run checkpoint key.
func ChannelCheckpointKey(channelID string) string { return channelKeyPrefix + channelID }

// ErrCycleActive is returned when a collection cycle is requested for a
// tenant whose previous cycle has not finished.
var ErrCycleActive = errors.New("collection cycle already active for tenant")

// Pacing pauses between batches and channels keep the platform rate limiter
// happy without stalling a cycle.
const (
	batchPause   = 100 * time.Millisecond
	channelPause = 1 * time.Second
)

// Config tunes one Collector.
type Config struct {
	PageSize    int      // history page size per fetch
	BatchSize   int      // messages per store flush
	MaxBackfill int      // cap on first-run fetch with no cursor
	BotIDs      []string // author IDs to drop before analysis and storage
}

// Collector pulls new messages for tenants. It is safe for concurrent use;
// cycles for different tenants run independently, while a per-tenant guard
// rejects overlapping cycles for the same tenant.
type Collector struct {
	client   chat.Client
	registry *database.Registry
	cfg      Config
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates a Collector.
func New(client chat.Client, registry *database.Registry, cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxBackfill <= 0 {
		cfg.MaxBackfill = 1000
	}
	return &Collector{
		client:   client,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("component", "collector"),
	}
}

// Collect runs one collection cycle for a guild and returns the number of
// newly stored messages. Per-channel failures are logged and skipped, never
// propagated; the errors returned are an overlapping cycle, a tenant store
// that cannot be opened, a failed channel listing, and context cancellation.
func (c *Collector) Collect(ctx context.Context, guild chat.Guild) (int, error) {
	c.mu.Lock()
	if _, busy := c.active[guild.ID]; busy {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: guild %s", ErrCycleActive, guild.ID)
	}
	if c.active == nil {
		c.active = make(map[string]struct{})
	}
	c.active[guild.ID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.active, guild.ID)
		c.mu.Unlock()
	}()

	tenant, err := c.registry.Get(guild.ID)
	if err != nil {
		return 0, err
	}

	log := c.logger.With("guild_id", guild.ID, "guild_name", guild.Name)
	start := time.Now()
	log.InfoContext(ctx, "Collection cycle started")

	// A failed listing aborts the whole cycle without a checkpoint so the
	// orchestrator backs off instead of immediately retrying a due tenant.
	channels, err := c.client.Channels(ctx, guild.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list channels for guild %s: %w", guild.ID, err)
	}

	// Stable channel order keeps logs and checkpoint progression readable.
	sort.Slice(channels, func(a, b int) bool {
		if channels[a].Name != channels[b].Name {
			return channels[a].Name < channels[b].Name
		}
		return channels[a].ID < channels[b].ID
	})

	total := 0
	for _, channel := range channels {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		switch channel.Type {
		case chat.ChannelForum:
			total += c.collectForum(ctx, tenant, guild, channel, log)
		default:
			total += c.collectChannel(ctx, tenant, guild, channel, log)
		}

		if err := sleepCtx(ctx, channelPause); err != nil {
			return total, err
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := tenant.Store.SetCheckpoint(ctx, GuildCheckpointKey(guild.ID), now); err != nil {
		log.WarnContext(ctx, "Error updating guild checkpoint", "error", err)
	}
	if err := tenant.Store.SetCheckpoint(ctx, KeyLastCollectionTime, now); err != nil {
		log.WarnContext(ctx, "Error updating last collection time", "error", err)
	}

	log.InfoContext(ctx, "Collection cycle finished",
		"collected", total,
		"channels", len(channels),
		"duration", time.Since(start).Round(time.Millisecond).String())
	return total, nil
}

// collectForum treats every active and archived thread of a forum channel as
// its own channel.
func (c *Collector) collectForum(ctx context.Context, tenant *database.Tenant, guild chat.Guild, forum chat.Channel, log *slog.Logger) int {
	total := 0

	threads, err := c.client.ActiveThreads(ctx, forum.ID)
	if err != nil {
		logChannelError(ctx, log, forum, "Error listing active threads", err)
	} else {
		for _, thread := range threads {
			total += c.collectChannel(ctx, tenant, guild, thread, log)
		}
	}

	before := ""
	for {
		archived, next, err := c.client.ArchivedThreads(ctx, forum.ID, before)
		if err != nil {
			logChannelError(ctx, log, forum, "Error listing archived threads", err)
			break
		}
		for _, thread := range archived {
			total += c.collectChannel(ctx, tenant, guild, thread, log)
		}
		if next == "" {
			break
		}
		before = next
	}

	return total
}

// collectChannel fetches and stores the new messages of one channel or
// thread. With a cursor it pages forward from the checkpoint; on first run
// it pages backward from the channel head up to MaxBackfill messages. It
// never returns an error: permission problems and fetch faults are logged
// and the count so far is returned.
func (c *Collector) collectChannel(ctx context.Context, tenant *database.Tenant, guild chat.Guild, channel chat.Channel, log *slog.Logger) int {
	clog := log.With("channel_id", channel.ID, "channel_name", channel.Name)

	cursor, backfill := c.resolveCursor(ctx, tenant.Store, channel.ID, clog)

	var batch []*database.Message
	collected := 0
	failed := false

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		saved, err := tenant.Store.UpsertMessages(ctx, batch)
		if err != nil {
			clog.WarnContext(ctx, "Error saving message batch", "error", err)
			return false
		}
		collected += saved
		batch = batch[:0]
		return true
	}

	fetchPage := func(opts chat.HistoryOptions) ([]chat.Message, bool) {
		page, err := c.client.History(ctx, channel.ID, opts)
		if err != nil {
			if errors.Is(err, chat.ErrForbidden) {
				clog.WarnContext(ctx, "No permission to read channel, skipping")
			} else {
				clog.WarnContext(ctx, "Error fetching channel history", "error", err)
			}
			return nil, false
		}
		return page, true
	}

	bufferPage := func(page []chat.Message) bool {
		for _, msg := range page {
			if c.isOwnBot(msg.AuthorID) {
				continue
			}
			batch = append(batch, c.buildRecord(guild, channel, msg))

			if len(batch) >= c.cfg.BatchSize {
				if !flush() {
					return false
				}
				if err := sleepCtx(ctx, batchPause); err != nil {
					return false
				}
			}
		}
		return true
	}

	if backfill {
		// Empty pages with an after cursor mean "caught up", but with no
		// cursor at all the head fetch returns only the newest page, so
		// history is walked backwards instead, oldest ID as the bound.
		before := ""
		fetched := 0
		for fetched < c.cfg.MaxBackfill {
			if ctx.Err() != nil {
				return collected
			}

			limit := c.cfg.PageSize
			if remaining := c.cfg.MaxBackfill - fetched; remaining < limit {
				limit = remaining
			}

			page, ok := fetchPage(chat.HistoryOptions{BeforeID: before, Limit: limit})
			if !ok {
				failed = true
				break
			}
			if len(page) == 0 {
				break
			}
			fetched += len(page)

			// Pages arrive newest first; the next bound is the oldest ID seen.
			before = page[len(page)-1].ID

			if !bufferPage(page) {
				return collected
			}
			if len(page) < limit {
				break
			}
		}
		if fetched >= c.cfg.MaxBackfill {
			clog.InfoContext(ctx, "Backfill cap reached", "fetched", fetched)
		}
	} else {
		for {
			if ctx.Err() != nil {
				return collected
			}

			page, ok := fetchPage(chat.HistoryOptions{AfterID: cursor, Limit: c.cfg.PageSize})
			if !ok {
				failed = true
				break
			}
			if len(page) == 0 {
				break
			}

			// Pages arrive newest first; the next cursor is the newest ID seen.
			cursor = page[0].ID

			if !bufferPage(page) {
				return collected
			}
			if len(page) < c.cfg.PageSize {
				break
			}
		}
	}

	if !flush() || failed {
		return collected
	}

	// Checkpoint to the fetch time, not the newest message time: clock skew
	// is tolerated by over-including, duplicates dedupe by message id.
	now := time.Now().UTC().Format(time.RFC3339)
	if err := tenant.Store.SetCheckpoint(ctx, ChannelCheckpointKey(channel.ID), now); err != nil {
		clog.WarnContext(ctx, "Error updating channel checkpoint", "error", err)
	}

	if collected > 0 {
		clog.InfoContext(ctx, "Channel collection finished", "collected", collected)
	}
	return collected
}

// resolveCursor picks the fetch cursor for a channel: the per-channel
// checkpoint converted to an ID, else the stored newest message ID, else an
// empty cursor with a bounded backfill.
func (c *Collector) resolveCursor(ctx context.Context, store database.Store, channelID string, log *slog.Logger) (cursor string, backfill bool) {
	value, err := store.GetCheckpoint(ctx, ChannelCheckpointKey(channelID), "")
	if err != nil {
		log.WarnContext(ctx, "Error reading channel checkpoint", "error", err)
	}
	if value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return snowflakeBefore(t), false
		}
		log.WarnContext(ctx, "Ignoring malformed channel checkpoint", "value", value)
	}

	if id, ok, err := store.GetLastMessageID(ctx, channelID); err != nil {
		log.WarnContext(ctx, "Error reading last message id", "error", err)
	} else if ok {
		return id, false
	}

	return "", true
}

func (c *Collector) isOwnBot(authorID string) bool {
	for _, id := range c.cfg.BotIDs {
		if id != "" && id == authorID {
			return true
		}
	}
	return false
}

// buildRecord converts a platform message into a store record, running the
// content analyzer and serializing its output into the derived JSON columns.
func (c *Collector) buildRecord(guild chat.Guild, channel chat.Channel, msg chat.Message) *database.Message {
	analysis := analyzer.Analyze(msg.Content)

	record := &database.Message{
		MessageID:        msg.ID,
		ChannelID:        channel.ID,
		GuildID:          guild.ID,
		ChannelName:      nullString(channel.Name),
		GuildName:        nullString(guild.Name),
		AuthorID:         msg.AuthorID,
		AuthorName:       nullString(msg.AuthorName),
		Content:          msg.Content,
		CreatedAt:        msg.CreatedAt.UTC(),
		CollectedAt:      time.Now().UTC(),
		AttachmentsCount: len(msg.Attachments),
		MessageURL:       nullString(fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild.ID, channel.ID, msg.ID)),
		MessageType:      nullString(string(analysis.MessageType)),
	}

	if len(msg.Attachments) > 0 {
		record.AttachmentsURLs = nullJSON(msg.Attachments)
	}
	if len(analysis.Topics) > 0 {
		record.Topics = nullJSON(analysis.Topics)
	}
	if len(analysis.ContentStructure) > 0 {
		record.ContentStructure = nullJSON(analysis.ContentStructure)
	}
	if len(analysis.MarkdownUsed) > 0 {
		record.MarkdownUsed = nullJSON(analysis.MarkdownUsed)
	}
	if len(analysis.Sections) > 0 {
		record.Sections = nullJSON(analysis.Sections)
	}

	if channel.Type == chat.ChannelThread {
		record.IsThread = true
		record.ThreadName = nullString(channel.Name)
		record.ParentChannelID = nullString(channel.ParentID)
	}

	return record
}

func logChannelError(ctx context.Context, log *slog.Logger, channel chat.Channel, msg string, err error) {
	if errors.Is(err, chat.ErrForbidden) {
		log.WarnContext(ctx, "No permission to inspect channel, skipping", "channel_id", channel.ID)
		return
	}
	log.WarnContext(ctx, msg, "channel_id", channel.ID, "error", err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(v any) sql.NullString {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// discordEpoch is the platform's snowflake epoch in Unix milliseconds.
const discordEpoch = 1420070400000

// snowflakeBefore builds a synthetic message ID for "messages at or after t".
// One millisecond is subtracted so a message created exactly at the
// checkpoint time is fetched again rather than skipped.
func snowflakeBefore(t time.Time) string {
	ms := t.UnixMilli() - 1 - discordEpoch
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d", uint64(ms)<<22)
}
