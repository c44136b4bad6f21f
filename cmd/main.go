package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xenn00/teamchat/config"
	"github.com/xenn00/teamchat/internal/queue"
	"github.com/xenn00/teamchat/internal/realtime"
	huddle_repo "github.com/xenn00/teamchat/internal/repo/huddle"
	membership_repo "github.com/xenn00/teamchat/internal/repo/membership"
	message_repo "github.com/xenn00/teamchat/internal/repo/message"
	presence_repo "github.com/xenn00/teamchat/internal/repo/presence"
	user_repo "github.com/xenn00/teamchat/internal/repo/user"
	"github.com/xenn00/teamchat/internal/routers"
	auth_service "github.com/xenn00/teamchat/internal/use-case/auth-case"
	"github.com/xenn00/teamchat/internal/utils/types"
	"github.com/xenn00/teamchat/internal/websocket"
	"github.com/xenn00/teamchat/internal/worker"
	worker_handler "github.com/xenn00/teamchat/internal/worker/worker-handler"
	"github.com/xenn00/teamchat/state"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := config.BindFlags(viper.GetViper(), pflag.CommandLine); err != nil {
		log.Fatal().Err(err).Msg("failed to bind flags")
	}
	pflag.Parse()

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	conf := config.Conf

	level, err := zerolog.ParseLevel(conf.App.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	appState, err := state.InitAppState(ctx, stop, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application state")
	}
	defer appState.Close()

	// stores
	users := user_repo.NewUserRepo(appState.DB)
	messages := message_repo.NewMessageRepo(appState.MongoDB)
	if err := messages.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure message indexes")
	}
	presence := presence_repo.NewPresenceRepo(appState.Redis, queue.NewProducer(appState.Redis), conf.WORKER.MaxRetries)
	resolver := auth_service.NewTokenResolver(appState.JwtSecret.Public, appState.Redis, users)

	engine := realtime.NewEngine(realtime.Options{
		TypingWindow:        conf.REALTIME.TypingWindow,
		TypingSweepInterval: conf.REALTIME.TypingSweepInterval,
	}, realtime.Deps{
		Identities: resolver,
		Membership: membership_repo.NewMembershipRepo(appState.DB),
		Messages:   messages,
		Huddles:    huddle_repo.NewHuddleRepo(appState.DB),
		Presence:   presence,
	})
	go engine.Run(ctx)
	log.Info().Msg("Realtime engine initialized")

	// background jobs
	workerPool := worker.NewWorkerPool(appState.Redis, appState.Mongo, worker.Options{
		Workers:      conf.WORKER.Count,
		PollInterval: conf.WORKER.PollInterval,
		BaseBackoff:  conf.WORKER.BaseBackoff,
		DLQ: types.DLQRetryConfig{
			RetryInterval: conf.WORKER.DLQInterval,
			DatabaseName:  conf.DATABASE.Mongo.Database,
		},
	})
	jobHandler := worker_handler.NewWorkerHandler(users)
	workerPool.Register(queue.JobPresenceUpdate, jobHandler.HandlePresenceUpdate)

	// workers outlive the HTTP server so offline writes made during
	// shutdown still get flushed
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	workerPool.Start(workerCtx)
	workerPool.StartDLQWorker(workerCtx)
	workerPool.StartDLQRetryConsumer(workerCtx)

	wsHandler := websocket.NewHandler(context.Background(), engine, websocket.Config{
		SendBuffer:       conf.REALTIME.SendBuffer,
		MaxConnections:   conf.REALTIME.MaxConnections,
		ConnectionsPerIP: conf.REALTIME.ConnectionsPerIP,
		EventsPerSecond:  conf.REALTIME.EventsPerSecond,
		EventBurst:       conf.REALTIME.EventBurst,
		AllowedOrigins:   conf.REALTIME.AllowedOrigins,
	})

	r := routers.NewRouter(routers.Deps{
		WS:       wsHandler,
		Engine:   engine,
		Resolver: resolver,
		Presence: presence,
		DLQ:      workerPool,
	})

	server := &http.Server{
		Addr:              conf.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Msgf("Starting server on %s", conf.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ListenAndServe failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown initiated...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	engine.Shutdown()
	if err := wsHandler.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket clients did not drain in time")
	}

	stopWorkers()
	workerPool.Wait()
	log.Info().Msg("Server exited gracefully.")
}
