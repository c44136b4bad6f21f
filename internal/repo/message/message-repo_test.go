package message_repo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newTestRepo needs a reachable MongoDB in CHATAPP_TEST_MONGO_URL.
func newTestRepo(t *testing.T) *MessageRepo {
	t.Helper()
	uri := os.Getenv("CHATAPP_TEST_MONGO_URL")
	if uri == "" {
		t.Skip("CHATAPP_TEST_MONGO_URL not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("teamchat_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	repo := NewMessageRepo(db)
	require.NoError(t, repo.EnsureIndexes(context.Background()))
	return repo
}

func TestMessageRepo_Lifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	msg := &entity.Message{ID: uuid.NewString(), ChannelID: "c1", SenderID: "u1", Content: "hi", Kind: entity.KindText}
	require.NoError(t, repo.Create(ctx, msg))
	assert.True(t, app_error.IsKind(repo.Create(ctx, msg), app_error.KindConflict))

	edited, err := repo.UpdateContent(ctx, msg.ID, "hello", at)
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Content)
	assert.True(t, edited.IsEdited)

	pinned, err := repo.SetPinned(ctx, msg.ID, true, "u2", at)
	require.NoError(t, err)
	require.NotNil(t, pinned.PinnedBy)
	assert.Equal(t, "u2", *pinned.PinnedBy)

	unpinned, err := repo.SetPinned(ctx, msg.ID, false, "", at)
	require.NoError(t, err)
	assert.Nil(t, unpinned.PinnedBy)

	require.NoError(t, repo.IncrementThreadCount(ctx, msg.ID))
	deleted, err := repo.SoftDelete(ctx, msg.ID, at)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, 1, deleted.ThreadCount)

	_, err = repo.UpdateContent(ctx, msg.ID, "again", at)
	assert.True(t, app_error.IsKind(err, app_error.KindNotFound))

	stored, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, app_error.IsKind(err, app_error.KindNotFound))
}

func TestMessageRepo_MutateReactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	msg := &entity.Message{ID: uuid.NewString(), ChannelID: "c1", SenderID: "u1", Content: "hi", Kind: entity.KindText}
	require.NoError(t, repo.Create(ctx, msg))

	add := func(user string) func(entity.Reactions) error {
		return func(r entity.Reactions) error {
			r.Add("👍", user)
			return nil
		}
	}

	_, err := repo.MutateReactions(ctx, msg.ID, add("u1"))
	require.NoError(t, err)
	got, err := repo.MutateReactions(ctx, msg.ID, add("u2"))
	require.NoError(t, err)
	assert.Equal(t, 2, got.Reactions.Get("👍").Count)

	stop := app_error.NotFound("nothing to remove", "emoji")
	_, err = repo.MutateReactions(ctx, msg.ID, func(entity.Reactions) error { return stop })
	assert.ErrorIs(t, err, stop)
}
