package database_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peanut/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func testMessage(id, content string, createdAt time.Time) *database.Message {
	return &database.Message{
		MessageID:   id,
		ChannelID:   "chan-1",
		GuildID:     "guild-1",
		AuthorID:    "author-1",
		AuthorName:  nullStr("author one"),
		Content:     content,
		CreatedAt:   createdAt,
		CollectedAt: time.Now().UTC(),
	}
}

func TestUpsertMessagesIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	saved, err := store.UpsertMessages(ctx, []*database.Message{testMessage("m1", "hello", created)})
	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	saved, err = store.UpsertMessages(ctx, []*database.Message{testMessage("m1", "hello", created)})
	require.NoError(t, err)
	assert.Equal(t, 0, saved, "re-upserting the same message must not count as new")

	count, err := store.CountMessages(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertMessagesEditKeepsAnalysis(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	original := testMessage("m1", "original text", created)
	original.MessageType = nullStr("question")
	original.Topics = nullStr(`["설치"]`)

	_, err := store.UpsertMessages(ctx, []*database.Message{original})
	require.NoError(t, err)

	edited := testMessage("m1", "edited text", created)
	edited.MessageType = nullStr("explanation")
	edited.Topics = nullStr(`["다른주제"]`)

	_, err = store.UpsertMessages(ctx, []*database.Message{edited})
	require.NoError(t, err)

	messages, err := store.GetRecentMessages(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	assert.Equal(t, "edited text", messages[0].Content)
	assert.Equal(t, nullStr("question"), messages[0].MessageType, "derived columns must survive edits")
	assert.Equal(t, nullStr(`["설치"]`), messages[0].Topics)
}

func TestUpsertMessagesDropsInvalidRecords(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	batch := []*database.Message{
		testMessage("m1", "one", created),
		testMessage("m2", "two", created.Add(time.Minute)),
		{MessageID: "", ChannelID: "chan-1", AuthorID: "author-1", CreatedAt: created},
		testMessage("m3", "three", created.Add(2*time.Minute)),
		testMessage("m4", "four", created.Add(3*time.Minute)),
	}

	saved, err := store.UpsertMessages(ctx, batch)
	require.NoError(t, err, "one bad record must not sink the batch")
	assert.Equal(t, 4, saved)

	count, err := store.CountMessages(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestCheckpoints(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	value, err := store.GetCheckpoint(ctx, "last_collection_time", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", value)

	require.NoError(t, store.SetCheckpoint(ctx, "last_collection_time", "2025-06-01T12:00:00Z"))
	require.NoError(t, store.SetCheckpoint(ctx, "last_collected_guild_g1", "2025-06-01T11:00:00Z"))

	value, err = store.GetCheckpoint(ctx, "last_collection_time", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", value)

	// Overwrite keeps a single row per key.
	require.NoError(t, store.SetCheckpoint(ctx, "last_collection_time", "2025-06-02T12:00:00Z"))

	records, err := store.ListCheckpoints(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "last_collected_guild_g1", records[0].Key)
	assert.Equal(t, "last_collection_time", records[1].Key)
	assert.Equal(t, "2025-06-02T12:00:00Z", records[1].Value.String)
}

func TestLatestMessageTimeAndLastID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetLatestMessageTime(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok, "empty store has no latest time")

	_, ok, err = store.GetLastMessageID(ctx, "chan-1")
	require.NoError(t, err)
	assert.False(t, ok)

	older := testMessage("m1", "older", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	newer := testMessage("m2", "newer", time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))
	otherChannel := testMessage("m3", "elsewhere", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	otherChannel.ChannelID = "chan-2"

	_, err = store.UpsertMessages(ctx, []*database.Message{older, newer, otherChannel})
	require.NoError(t, err)

	latest, ok, err := store.GetLatestMessageTime(ctx, "chan-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Equal(newer.CreatedAt), "latest = %v", latest)

	id, ok, err := store.GetLastMessageID(ctx, "chan-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m2", id)

	count, err := store.CountMessages(ctx, "chan-2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPurgeAuthor(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	bot := testMessage("m1", "bot message", created)
	bot.AuthorID = "bot-42"
	human := testMessage("m2", "human message", created.Add(time.Minute))

	_, err := store.UpsertMessages(ctx, []*database.Message{bot, human})
	require.NoError(t, err)

	deleted, err := store.PurgeAuthor(ctx, "bot-42")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := store.CountMessages(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.PurgeAuthor(ctx, "")
	assert.Error(t, err)
}

func TestSearchMessages(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	messages := []*database.Message{
		testMessage("m1", "GPU 드라이버 설치 안내", base),
		testMessage("m2", "gpu 성능 비교", base.Add(time.Minute)),
		testMessage("m3", "진행률 100% 달성", base.Add(2*time.Minute)),
		testMessage("m4", "관련 없는 이야기", base.Add(3*time.Minute)),
	}
	botMsg := testMessage("m5", "GPU 관련 자동 응답", base.Add(4*time.Minute))
	botMsg.AuthorID = "bot-42"
	messages = append(messages, botMsg)

	_, err := store.UpsertMessages(ctx, messages)
	require.NoError(t, err)

	// Case-insensitive matches both spellings, newest first.
	hits, err := store.SearchMessages(ctx, "gpu", false, 10, []string{"bot-42"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "m2", hits[0].MessageID)
	assert.Equal(t, "m1", hits[1].MessageID)

	// Case-sensitive matches the exact spelling only.
	hits, err = store.SearchMessages(ctx, "GPU", true, 10, []string{"bot-42"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].MessageID)

	// LIKE wildcards in the keyword are literal, not patterns.
	hits, err = store.SearchMessages(ctx, "100%", false, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m3", hits[0].MessageID)

	hits, err = store.SearchMessages(ctx, "", false, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestGetRecentMessages(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var batch []*database.Message
	for i := range 5 {
		batch = append(batch, testMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	empty := testMessage("empty", "", base.Add(time.Hour))
	bot := testMessage("bot", "bot noise", base.Add(2*time.Hour))
	bot.AuthorID = "bot-42"
	batch = append(batch, empty, bot)

	_, err := store.UpsertMessages(ctx, batch)
	require.NoError(t, err)

	recent, err := store.GetRecentMessages(ctx, 3, []string{"bot-42"})
	require.NoError(t, err)
	require.Len(t, recent, 3)

	assert.Equal(t, "m4", recent[0].MessageID)
	assert.Equal(t, "m3", recent[1].MessageID)
	assert.Equal(t, "m2", recent[2].MessageID)
}

func TestRunMaintenance(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.RunMaintenance(context.Background()))
}
