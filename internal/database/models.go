package database

import (
	"database/sql"
	"time"
)

// Message is one collected chat message. Derived analysis columns (Topics,
// MessageType, ContentStructure, MarkdownUsed, Sections) are JSON-serialized
// by the collector at ingestion time and never mutated afterwards.
type Message struct {
	ID        uint      `db:"id"`
	MessageID string    `db:"message_id"`
	ChannelID string    `db:"channel_id"`
	GuildID   string    `db:"guild_id"`
	CreatedAt time.Time `db:"created_at"`

	ChannelName sql.NullString `db:"channel_name"`
	GuildName   sql.NullString `db:"guild_name"`
	AuthorID    string         `db:"author_id"`
	AuthorName  sql.NullString `db:"author_name"`
	Content     string         `db:"content"`
	CollectedAt time.Time      `db:"collected_at"`

	AttachmentsCount int            `db:"attachments_count"`
	AttachmentsURLs  sql.NullString `db:"attachments_urls"`
	MessageURL       sql.NullString `db:"message_url"`

	Topics           sql.NullString `db:"topics"`
	MessageType      sql.NullString `db:"message_type"`
	ContentStructure sql.NullString `db:"content_structure"`
	MarkdownUsed     sql.NullString `db:"markdown_used"`
	Sections         sql.NullString `db:"sections"`

	IsThread        bool           `db:"is_thread"`
	ThreadName      sql.NullString `db:"thread_name"`
	ParentChannelID sql.NullString `db:"parent_channel_id"`
}

// CollectionMetadata is one key/value checkpoint record tracking collection
// progress. Keys follow the convention last_collection_time,
// last_collected_guild_<guild_id>, last_collected_channel_<channel_id>.
type CollectionMetadata struct {
	ID        uint           `db:"id"`
	Key       string         `db:"key"`
	Value     sql.NullString `db:"value"`
	UpdatedAt time.Time      `db:"updated_at"`
}
