// Package discord implements the chat.Client port against the Discord HTTP
// API. Only the REST surface the collector needs is covered; gateway events
// are out of scope.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"peanut/internal/chat"
)

const defaultBaseURL = "https://discord.com/api/v10"

// requestsPerSecond is a proactive throttle kept well under Discord's global
// limit of 50 req/s; the reactive 429 handling covers per-route buckets.
const requestsPerSecond = 5

// Discord channel type codes.
const (
	channelTypeText          = 0
	channelTypeAnnouncement  = 5
	channelTypePublicThread  = 11
	channelTypePrivateThread = 12
	channelTypeForum         = 15
)

// Client is the REST implementation of chat.Client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Discord REST client authenticated with the given bot token.
func New(token string, log *slog.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		log:        log.With("component", "discord_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiChannel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	ParentID string `json:"parent_id"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type apiAttachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

type apiMessage struct {
	ID          string          `json:"id"`
	ChannelID   string          `json:"channel_id"`
	GuildID     string          `json:"guild_id"`
	Author      apiUser         `json:"author"`
	Content     string          `json:"content"`
	Timestamp   time.Time       `json:"timestamp"`
	Attachments []apiAttachment `json:"attachments"`
}

type apiThreadList struct {
	Threads []apiChannel `json:"threads"`
	HasMore bool         `json:"has_more"`
}

// Guilds lists the guilds the bot account is a member of.
func (c *Client) Guilds(ctx context.Context) ([]chat.Guild, error) {
	var raw []apiGuild
	if err := c.get(ctx, "/users/@me/guilds", nil, &raw); err != nil {
		return nil, err
	}
	guilds := make([]chat.Guild, 0, len(raw))
	for _, g := range raw {
		guilds = append(guilds, chat.Guild{ID: g.ID, Name: g.Name})
	}
	return guilds, nil
}

// Channels lists the text and forum channels of a guild.
func (c *Client) Channels(ctx context.Context, guildID string) ([]chat.Channel, error) {
	var raw []apiChannel
	if err := c.get(ctx, "/guilds/"+guildID+"/channels", nil, &raw); err != nil {
		return nil, err
	}
	var channels []chat.Channel
	for _, ch := range raw {
		switch ch.Type {
		case channelTypeText, channelTypeAnnouncement, channelTypeForum:
			channels = append(channels, toChannel(ch, guildID))
		}
	}
	return channels, nil
}

// History fetches one page of messages from a channel, newest first.
func (c *Client) History(ctx context.Context, channelID string, opts chat.HistoryOptions) ([]chat.Message, error) {
	q := url.Values{}
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q.Set("limit", strconv.Itoa(limit))
	if opts.AfterID != "" {
		q.Set("after", opts.AfterID)
	}
	if opts.BeforeID != "" {
		q.Set("before", opts.BeforeID)
	}

	var raw []apiMessage
	if err := c.get(ctx, "/channels/"+channelID+"/messages", q, &raw); err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(raw))
	for _, m := range raw {
		msg := chat.Message{
			ID:         m.ID,
			ChannelID:  m.ChannelID,
			GuildID:    m.GuildID,
			AuthorID:   m.Author.ID,
			AuthorName: m.Author.Username,
			Content:    m.Content,
			CreatedAt:  m.Timestamp,
		}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, chat.Attachment(a))
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ActiveThreads lists the live threads under a channel.
func (c *Client) ActiveThreads(ctx context.Context, channelID string) ([]chat.Channel, error) {
	var raw apiThreadList
	if err := c.get(ctx, "/channels/"+channelID+"/threads/active", nil, &raw); err != nil {
		return nil, err
	}
	return toThreads(raw.Threads), nil
}

// ArchivedThreads lists one page of archived public threads under a channel.
func (c *Client) ArchivedThreads(ctx context.Context, channelID, before string) ([]chat.Channel, string, error) {
	q := url.Values{}
	q.Set("limit", "100")
	if before != "" {
		q.Set("before", before)
	}

	var raw struct {
		Threads []struct {
			apiChannel
			ThreadMetadata struct {
				ArchiveTimestamp string `json:"archive_timestamp"`
			} `json:"thread_metadata"`
		} `json:"threads"`
		HasMore bool `json:"has_more"`
	}
	if err := c.get(ctx, "/channels/"+channelID+"/threads/archived/public", q, &raw); err != nil {
		return nil, "", err
	}

	var threads []chat.Channel
	next := ""
	for _, t := range raw.Threads {
		threads = append(threads, toChannel(t.apiChannel, t.GuildID))
		next = t.ThreadMetadata.ArchiveTimestamp
	}
	if !raw.HasMore {
		next = ""
	}
	return threads, next, nil
}

// SendMessage posts content to a channel.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", nil, body, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("discord: failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("discord: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp)
		c.log.WarnContext(ctx, "Rate limited by API, backing off", "path", path, "retry_after", retryAfter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
		return c.do(ctx, method, path, query, body, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &chat.APIError{Status: resp.StatusCode, Message: string(msg)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("discord: failed to decode response: %w", err)
		}
	}
	return nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}

func toChannel(ch apiChannel, guildID string) chat.Channel {
	if ch.GuildID == "" {
		ch.GuildID = guildID
	}
	out := chat.Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		Name:     ch.Name,
		ParentID: ch.ParentID,
	}
	switch ch.Type {
	case channelTypeForum:
		out.Type = chat.ChannelForum
	case channelTypePublicThread, channelTypePrivateThread:
		out.Type = chat.ChannelThread
	default:
		out.Type = chat.ChannelText
	}
	return out
}

func toThreads(raw []apiChannel) []chat.Channel {
	var threads []chat.Channel
	for _, t := range raw {
		ch := toChannel(t, t.GuildID)
		ch.Type = chat.ChannelThread
		threads = append(threads, ch)
	}
	return threads
}
