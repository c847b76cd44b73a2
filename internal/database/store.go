package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store is the data access interface for one tenant's database. All methods
// accept a context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertMessages saves a batch of messages inside one transaction.
	// Records already present (by message_id) have their content fields
	// overwritten in place; records with missing required fields are dropped
	// with a warning. Returns the number of newly inserted messages.
	UpsertMessages(ctx context.Context, messages []*Message) (int, error)

	// GetLatestMessageTime returns the created_at of the newest message,
	// optionally scoped to one channel (empty channelID means the whole
	// tenant). ok is false when no messages match.
	GetLatestMessageTime(ctx context.Context, channelID string) (t time.Time, ok bool, err error)

	// GetLastMessageID returns the message_id of the newest message in a
	// channel by created_at, used as a history fetch cursor.
	GetLastMessageID(ctx context.Context, channelID string) (id string, ok bool, err error)

	// CountMessages counts stored messages, optionally scoped to one channel.
	CountMessages(ctx context.Context, channelID string) (int, error)

	// PurgeAuthor deletes every message written by the given author and
	// returns the number of deleted rows.
	PurgeAuthor(ctx context.Context, authorID string) (int64, error)

	// GetCheckpoint returns the checkpoint value for key, or def when absent.
	GetCheckpoint(ctx context.Context, key, def string) (string, error)

	// SetCheckpoint upserts a checkpoint value, refreshing its update time.
	SetCheckpoint(ctx context.Context, key, value string) error

	// ListCheckpoints returns all checkpoint records ordered by key.
	ListCheckpoints(ctx context.Context) ([]CollectionMetadata, error)

	// GetRecentMessages returns the newest non-empty messages, excluding the
	// given author IDs, newest first.
	GetRecentMessages(ctx context.Context, limit int, excludeAuthors []string) ([]Message, error)

	// SearchMessages returns non-empty messages whose content contains
	// keyword as a substring, newest first. caseSensitive selects exact
	// matching; otherwise matching is case-insensitive.
	SearchMessages(ctx context.Context, keyword string, caseSensitive bool, limit int, excludeAuthors []string) ([]Message, error)

	// RunMaintenance performs periodic VACUUM/ANALYZE housekeeping.
	RunMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const insertMessageQuery = `
    INSERT INTO messages (
        message_id, channel_id, guild_id, channel_name, guild_name,
        author_id, author_name, content, created_at, collected_at,
        attachments_count, attachments_urls, message_url,
        topics, message_type, content_structure, markdown_used, sections,
        is_thread, thread_name, parent_channel_id
    ) VALUES (
        :message_id, :channel_id, :guild_id, :channel_name, :guild_name,
        :author_id, :author_name, :content, :created_at, :collected_at,
        :attachments_count, :attachments_urls, :message_url,
        :topics, :message_type, :content_structure, :markdown_used, :sections,
        :is_thread, :thread_name, :parent_channel_id
    );`

// Edited messages keep their original derived analysis columns; only content
// fields are refreshed.
const updateMessageQuery = `
    UPDATE messages SET
        content = :content,
        author_name = :author_name,
        attachments_count = :attachments_count,
        attachments_urls = :attachments_urls,
        collected_at = :collected_at
    WHERE message_id = :message_id;`

func (s *sqlxStore) UpsertMessages(ctx context.Context, messages []*Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	saved := 0
	for _, msg := range messages {
		if err := validateMessage(msg); err != nil {
			s.logger.WarnContext(ctx, "Dropping invalid message record", "message_id", msg.MessageID, "error", err)
			continue
		}

		var exists bool
		if err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM messages WHERE message_id = ?)", msg.MessageID); err != nil {
			return 0, fmt.Errorf("failed to check message %s: %w", msg.MessageID, err)
		}

		if exists {
			if _, err := tx.NamedExecContext(ctx, updateMessageQuery, msg); err != nil {
				return 0, fmt.Errorf("failed to update message %s: %w", msg.MessageID, err)
			}
			continue
		}

		if _, err := tx.NamedExecContext(ctx, insertMessageQuery, msg); err != nil {
			return 0, fmt.Errorf("failed to insert message %s: %w", msg.MessageID, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message batch saved", "batch_size", len(messages), "new", saved)
	return saved, nil
}

func validateMessage(msg *Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.MessageID == "" {
		return errors.New("empty message_id")
	}
	if msg.ChannelID == "" {
		return errors.New("empty channel_id")
	}
	if msg.AuthorID == "" {
		return errors.New("empty author_id")
	}
	if msg.CreatedAt.IsZero() {
		return errors.New("zero created_at")
	}
	return nil
}

func (s *sqlxStore) GetLatestMessageTime(ctx context.Context, channelID string) (time.Time, bool, error) {
	query := "SELECT created_at FROM messages"
	args := []any{}
	if channelID != "" {
		query += " WHERE channel_id = ?"
		args = append(args, channelID)
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	var latest time.Time
	err := s.db.GetContext(ctx, &latest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest message time: %w", err)
	}
	return latest, true, nil
}

func (s *sqlxStore) GetLastMessageID(ctx context.Context, channelID string) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		"SELECT message_id FROM messages WHERE channel_id = ? ORDER BY created_at DESC LIMIT 1", channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query last message id: %w", err)
	}
	return id, true, nil
}

func (s *sqlxStore) CountMessages(ctx context.Context, channelID string) (int, error) {
	query := "SELECT COUNT(*) FROM messages"
	args := []any{}
	if channelID != "" {
		query += " WHERE channel_id = ?"
		args = append(args, channelID)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *sqlxStore) PurgeAuthor(ctx context.Context, authorID string) (int64, error) {
	if authorID == "" {
		return 0, errors.New("author_id cannot be empty")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE author_id = ?", authorID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge author %s: %w", authorID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge row count: %w", err)
	}
	return deleted, nil
}

func (s *sqlxStore) GetCheckpoint(ctx context.Context, key, def string) (string, error) {
	var value sql.NullString
	err := s.db.GetContext(ctx, &value, "SELECT value FROM collection_metadata WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read checkpoint %s: %w", key, err)
	}
	if !value.Valid {
		return def, nil
	}
	return value.String, nil
}

func (s *sqlxStore) SetCheckpoint(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO collection_metadata (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write checkpoint %s: %w", key, err)
	}
	return nil
}

func (s *sqlxStore) ListCheckpoints(ctx context.Context) ([]CollectionMetadata, error) {
	var records []CollectionMetadata
	if err := s.db.SelectContext(ctx, &records,
		"SELECT id, key, value, updated_at FROM collection_metadata ORDER BY key"); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return records, nil
}

const messageColumns = `
    id, message_id, channel_id, guild_id, channel_name, guild_name,
    author_id, author_name, content, created_at, collected_at,
    attachments_count, attachments_urls, message_url,
    topics, message_type, content_structure, markdown_used, sections,
    is_thread, thread_name, parent_channel_id`

func (s *sqlxStore) GetRecentMessages(ctx context.Context, limit int, excludeAuthors []string) ([]Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE content != ''"
	args := []any{}

	query, args = appendAuthorFilter(query, args, excludeAuthors)
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var messages []Message
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	return messages, nil
}

func (s *sqlxStore) SearchMessages(ctx context.Context, keyword string, caseSensitive bool, limit int, excludeAuthors []string) ([]Message, error) {
	if keyword == "" {
		return nil, nil
	}

	query := "SELECT " + messageColumns + " FROM messages WHERE content != ''"
	args := []any{}

	if caseSensitive {
		query += " AND instr(content, ?) > 0"
		args = append(args, keyword)
	} else {
		query += ` AND content LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(keyword)+"%")
	}

	query, args = appendAuthorFilter(query, args, excludeAuthors)
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	var messages []Message
	if err := s.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return messages, nil
}

func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	for _, stmt := range []string{"VACUUM;", "ANALYZE;"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("maintenance statement %q failed: %w", stmt, err)
		}
	}
	return nil
}

func appendAuthorFilter(query string, args []any, excludeAuthors []string) (string, []any) {
	for _, author := range excludeAuthors {
		if author == "" {
			continue
		}
		query += " AND author_id != ?"
		args = append(args, author)
	}
	return query, args
}

// escapeLike escapes LIKE wildcards in a user-supplied keyword.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
