// Package chat defines the port to the chat platform. The collector and bot
// depend only on the Client interface here; the discord subpackage provides
// the HTTP implementation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrForbidden marks a channel or guild the bot has no permission to read.
// Callers treat it as "skip this channel", never as a fatal fault.
var ErrForbidden = errors.New("chat: forbidden")

// ChannelType distinguishes the channel kinds the collector cares about.
type ChannelType int

const (
	ChannelText ChannelType = iota
	ChannelForum
	ChannelThread
)

// Guild is one chat community (a tenant).
type Guild struct {
	ID   string
	Name string
}

// Channel is a text channel, forum channel, or thread within a guild.
type Channel struct {
	ID       string
	GuildID  string
	Name     string
	Type     ChannelType
	ParentID string // parent channel for threads
}

// Attachment is one file attached to a message.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

// Message is one platform message as delivered by the history API.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	AuthorID    string
	AuthorName  string
	Content     string
	CreatedAt   time.Time
	Attachments []Attachment
}

// HistoryOptions controls one page of a history fetch. AfterID pages forward
// from an exclusive message-ID cursor; BeforeID pages backward from one. At
// most one cursor may be set; with neither, the newest messages are returned.
type HistoryOptions struct {
	AfterID  string
	BeforeID string
	Limit    int
}

// Client is the platform operations surface the core consumes. Every call
// honors context cancellation and returns ErrForbidden (possibly wrapped) for
// permission failures.
type Client interface {
	// Guilds lists the guilds the bot account is a member of.
	Guilds(ctx context.Context) ([]Guild, error)

	// Channels lists the text and forum channels of a guild.
	Channels(ctx context.Context, guildID string) ([]Channel, error)

	// History fetches one page of messages from a channel, newest first.
	History(ctx context.Context, channelID string, opts HistoryOptions) ([]Message, error)

	// ActiveThreads lists the live threads under a channel.
	ActiveThreads(ctx context.Context, channelID string) ([]Channel, error)

	// ArchivedThreads lists one page of archived threads under a channel.
	// before is an ISO timestamp cursor (empty starts at the newest archive);
	// the returned cursor is empty when no further pages exist.
	ArchivedThreads(ctx context.Context, channelID, before string) ([]Channel, string, error)

	// SendMessage posts content to a channel.
	SendMessage(ctx context.Context, channelID, content string) error
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat: API error %d: %s", e.Status, e.Message)
}

// Unwrap maps permission statuses onto ErrForbidden so callers can use
// errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	if e.Status == 401 || e.Status == 403 {
		return ErrForbidden
	}
	return nil
}
