package state

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/teamchat/config"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"
)

type JwtSecret struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

type AppState struct {
	Ctx       context.Context
	Cancel    context.CancelFunc
	DB        *gorm.DB
	Redis     *redis.Client
	Mongo     *mongo.Client
	MongoDB   *mongo.Database
	JwtSecret *JwtSecret
}

// InitAppState opens every backing store named in conf. Anything opened
// before a failure is closed again.
func InitAppState(ctx context.Context, cancel context.CancelFunc, conf *config.AppConfig) (*AppState, error) {
	state := &AppState{Ctx: ctx, Cancel: cancel}

	pg := conf.DATABASE.Postgres
	db, _, err := InitPostgres(pg.DSN, PostgresPool{
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: pg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	state.DB = db

	state.Mongo, err = InitMongo(ctx, conf.DATABASE.Mongo.Url)
	if err != nil {
		state.Close()
		return nil, err
	}
	state.MongoDB = state.Mongo.Database(conf.DATABASE.Mongo.Database)

	redisConf := conf.DATABASE.Redis
	state.Redis, err = InitRedis(redisConf.Addr, redisConf.Password, redisConf.DB)
	if err != nil {
		state.Close()
		return nil, err
	}

	state.JwtSecret, err = InitSecret(conf.AUTH.PublicKeyPath, conf.AUTH.PrivateKeyPath)
	if err != nil {
		state.Close()
		return nil, err
	}

	return state, nil
}

func (a *AppState) Close() {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			log.Info().Msg("Closing PostgreSQL database connection...")
			sqlDB.Close()
		}
	}

	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Closing MongoDB client...")
		if err := a.Mongo.Disconnect(ctx); err != nil {
			log.Error().Err(err).Msg("failed to disconnect MongoDB client")
		}
	}

	if a.Redis != nil {
		log.Info().Msg("Closing Redis client...")
		if err := a.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis client")
		}
	}
}
