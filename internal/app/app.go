package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizarena/quizarena/internal/auth"
	"github.com/quizarena/quizarena/internal/auth/jwt"
	"github.com/quizarena/quizarena/internal/config"
	"github.com/quizarena/quizarena/internal/db/repository"
	"github.com/quizarena/quizarena/internal/leaderboard"
	"github.com/quizarena/quizarena/internal/logging"
	"github.com/quizarena/quizarena/internal/match"
	"github.com/quizarena/quizarena/internal/question"
	"github.com/quizarena/quizarena/internal/question/external"
	"github.com/quizarena/quizarena/internal/server"
	"github.com/quizarena/quizarena/pkg/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	http     *http.Server
	registry *match.Registry
}

// New bootstraps configs, logger, Postgres, Redis and the match runtime.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	matchRepo := repository.NewMatchRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		Issuer: cfg.Name,
	})
	gate := auth.NewGate(tokens, logger)

	questionCache := question.NewCache(redisClient, 0)
	opentdbClient := external.NewOpenTDBClient("", &http.Client{Timeout: cfg.Game.QuestionFetchTimeout})
	questionSvc := question.NewService(questionRepo, questionCache, opentdbClient, logger)

	leaderboardSvc := leaderboard.NewService(redisClient, logger)

	hub := ws.NewHub(logger, cfg.Game.BroadcastQueueCap)

	registry := match.NewRegistry(matchRepo, hub, leaderboardSvc, match.Config{
		AutoAdvanceDelay:  time.Duration(cfg.Game.AutoAdvanceDelaySec) * time.Second,
		SettlementRetries: cfg.Game.SettlementRetries,
		AcquireTimeout:    cfg.Game.ExecutorAcquireTimeout,
	}, logger)
	hub.SetDetachHandler(registry.OnDetach)

	matchSvc := match.NewService(matchRepo, question.NewSource(questionSvc), match.ServiceConfig{
		MaxQuestionsPerMatch:    cfg.Game.MaxQuestionsPerMatch,
		DefaultQuestionDuration: cfg.Game.QuestionDurationSec,
	}, logger)

	dispatcher := match.NewDispatcher(registry, hub, logger)
	matchWSHandler := match.NewWSHandler(hub, gate, dispatcher, logger)
	matchHTTPHandlers := match.NewHTTPHandlers(matchSvc, registry, gate, logger)
	lbHTTPHandler := leaderboard.NewHTTPHandler(leaderboardSvc, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient,
		matchHTTPHandlers.HandleMatches, matchWSHandler.HandleWebSocket, lbHTTPHandler.HandleGet)

	return &Application{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		redis:    redisClient,
		http:     apiServer,
		registry: registry,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.registry.Shutdown(shutdownCtx)

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
