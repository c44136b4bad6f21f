package auth_service

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/internal/entity"
	app_error "github.com/xenn00/teamchat/internal/errors"
	"github.com/xenn00/teamchat/internal/realtime"
	"github.com/xenn00/teamchat/internal/utils"
)

const (
	revokedPrefix = "revoked:"
	userCacheTTL  = 30 * time.Second
)

// TokenResolver turns an access token into the identity it was issued to.
type TokenResolver struct {
	PublicKey *rsa.PublicKey
	Redis     *redis.Client
	Users     UserFinder
}

func NewTokenResolver(publicKey *rsa.PublicKey, rdb *redis.Client, users UserFinder) *TokenResolver {
	return &TokenResolver{
		PublicKey: publicKey,
		Redis:     rdb,
		Users:     users,
	}
}

func (s *TokenResolver) Resolve(ctx context.Context, credential string) (realtime.Identity, error) {
	claims, err := utils.ParseAndVerifySign(credential, s.PublicKey)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return realtime.Identity{}, app_error.Auth("token expired, please refresh and reconnect")
		}
		return realtime.Identity{}, app_error.Auth("invalid token").Wrap(err)
	}

	if claims.ID != "" {
		revoked, err := s.Redis.Exists(ctx, revokedPrefix+claims.ID).Result()
		if err != nil {
			return realtime.Identity{}, app_error.TransientStore("failed to check token revocation", err)
		}
		if revoked > 0 {
			return realtime.Identity{}, app_error.Auth("token has been revoked")
		}
	}

	user, err := s.findUser(ctx, claims.Subject)
	if err != nil {
		if app_error.IsKind(err, app_error.KindNotFound) {
			return realtime.Identity{}, app_error.Auth("unknown user")
		}
		return realtime.Identity{}, err
	}
	if !user.IsActive {
		return realtime.Identity{}, app_error.Auth("user is not active")
	}

	return realtime.Identity{ID: user.ID, Name: user.Name(), AvatarURL: user.AvatarURL}, nil
}

// Revoke blocks a token id until its natural expiry.
func (s *TokenResolver) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := s.Redis.Set(ctx, revokedPrefix+jti, 1, ttl).Err(); err != nil {
		return app_error.TransientStore("failed to revoke token", err)
	}
	return nil
}

// findUser reads through a short-lived user:<id> cache entry.
func (s *TokenResolver) findUser(ctx context.Context, userID string) (*entity.User, error) {
	key := "user:" + userID
	cached, err := utils.GetCacheData[entity.User](ctx, s.Redis, key)
	if err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("auth: user cache unavailable")
	}
	if cached != nil {
		return cached, nil
	}

	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := utils.SetCacheData(ctx, s.Redis, key, user, userCacheTTL); err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("auth: failed to cache user")
	}
	return user, nil
}
