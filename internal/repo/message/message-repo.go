package message_repo

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const CollectionName = "messages"

// maxReactionAttempts bounds the compare-and-swap loop of MutateReactions.
const maxReactionAttempts = 5

type MessageRepo struct {
	Collection *mongo.Collection
	now        func() time.Time
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		Collection: db.Collection(CollectionName),
		now:        time.Now,
	}
}

func (r *MessageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "parent_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "is_pinned", Value: 1}}},
	})
	if err != nil {
		return app_error.TransientStore("failed to create message indexes", err)
	}
	return nil
}

func (r *MessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	now := r.now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = msg.CreatedAt
	if msg.Reactions == nil {
		msg.Reactions = entity.Reactions{}
	}
	if msg.Attachments == nil {
		msg.Attachments = []entity.Attachment{}
	}
	if msg.Mentions == nil {
		msg.Mentions = []string{}
	}

	if _, err := r.Collection.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return app_error.Conflict("message already exists", "messageId")
		}
		return app_error.TransientStore("failed to store message", err)
	}
	return nil
}

// Get returns the message even when soft deleted.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (*entity.Message, error) {
	var msg entity.Message
	if err := r.Collection.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg); err != nil {
		return nil, storeErr("failed to load message", err)
	}
	return &msg, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, content string, at time.Time) (*entity.Message, error) {
	return r.updateLive(ctx, messageID, bson.M{
		"$set": bson.M{"content": content, "is_edited": true, "edited_at": at, "updated_at": at},
		"$inc": bson.M{"version": 1},
	})
}

// SoftDelete flags the message; reactions and pin state stay as they are.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID string, at time.Time) (*entity.Message, error) {
	return r.updateLive(ctx, messageID, bson.M{
		"$set": bson.M{"is_deleted": true, "deleted_at": at, "updated_at": at},
		"$inc": bson.M{"version": 1},
	})
}

func (r *MessageRepo) SetPinned(ctx context.Context, messageID string, pinned bool, by string, at time.Time) (*entity.Message, error) {
	update := bson.M{"$inc": bson.M{"version": 1}}
	if pinned {
		update["$set"] = bson.M{"is_pinned": true, "pinned_by": by, "pinned_at": at, "updated_at": at}
	} else {
		update["$set"] = bson.M{"is_pinned": false, "updated_at": at}
		update["$unset"] = bson.M{"pinned_by": "", "pinned_at": ""}
	}
	return r.updateLive(ctx, messageID, update)
}

func (r *MessageRepo) IncrementThreadCount(ctx context.Context, parentID string) error {
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": parentID}, bson.M{"$inc": bson.M{"thread_count": 1}})
	if err != nil {
		return app_error.TransientStore("failed to update thread count", err)
	}
	if res.MatchedCount == 0 {
		return app_error.NotFound("parent message not found", "parentId")
	}
	return nil
}

// MutateReactions reads the aggregate, lets fn change it and writes it back
// only if nobody else bumped the version in between.
func (r *MessageRepo) MutateReactions(ctx context.Context, messageID string, fn func(entity.Reactions) error) (*entity.Message, error) {
	for attempt := 1; attempt <= maxReactionAttempts; attempt++ {
		msg, err := r.Get(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if msg.IsDeleted {
			return nil, app_error.NotFound("message not found", "messageId")
		}

		next := entity.Reactions{}
		maps.Copy(next, msg.Reactions)
		if err := fn(next); err != nil {
			return nil, err
		}

		now := r.now().UTC()
		res, err := r.Collection.UpdateOne(ctx,
			bson.M{"_id": messageID, "version": msg.Version, "is_deleted": false},
			bson.M{"$set": bson.M{"reactions": next, "version": msg.Version + 1, "updated_at": now}},
		)
		if err != nil {
			return nil, app_error.TransientStore("failed to store reactions", err)
		}
		if res.MatchedCount == 1 {
			msg.Reactions = next
			msg.Version++
			msg.UpdatedAt = now
			return msg, nil
		}
		log.Debug().Str("messageID", messageID).Int("attempt", attempt).Msg("message: reaction write lost a race, retrying")
	}
	return nil, app_error.TransientStore("reactions are changing too fast, try again", nil)
}

func (r *MessageRepo) updateLive(ctx context.Context, messageID string, update bson.M) (*entity.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg entity.Message
	err := r.Collection.FindOneAndUpdate(ctx, bson.M{"_id": messageID, "is_deleted": false}, update, opts).Decode(&msg)
	if err != nil {
		return nil, storeErr("failed to update message", err)
	}
	return &msg, nil
}

func storeErr(msg string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return app_error.NotFound("message not found", "messageId")
	}
	return app_error.TransientStore(msg, err)
}
