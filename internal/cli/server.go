package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizroom/internal/app"
	"quizroom/internal/config"
	"quizroom/internal/domain"
	"quizroom/internal/infra/memory"
	"quizroom/internal/infra/postgres"
	redisinfra "quizroom/internal/infra/redis"
	transport "quizroom/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.Log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, continuing without it until it recovers", "addr", cfg.Redis.Addr, "err", err)
		}
	}

	var (
		store  app.Store
		loader memory.QuestionLoader
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewGateway(pool)
		loader = postgres.NewQuestionLoader(pool)
	} else {
		log.Info("no postgres configured, using in-memory store with the sample quiz")
		store = memory.NewStore()
		loader = memory.NewStaticQuestions(sampleQuizzes())
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = redisinfra.NewQuestionCache(redisClient, loader, quizTTL, log)
	} else {
		questions = memory.NewQuestionCache(loader, quizTTL)
	}

	hub := transport.NewHub(log)
	opts := []app.Option{
		app.WithLogger(log),
		app.WithTiming(app.Timing{
			Unit:             config.Duration(cfg.Quiz.TimeUnit, time.Second),
			PreRoll:          cfg.Quiz.PreRoll,
			RevealDelay:      cfg.Quiz.RevealDelay,
			DefaultTimeLimit: cfg.Quiz.DefaultTimeLimit,
		}),
	}
	if redisClient != nil {
		opts = append(opts, app.WithMarker(redisinfra.NewRoomMarker(redisClient,
			config.Duration(cfg.Redis.TTL, 2*time.Hour),
			config.Duration(cfg.Redis.FinalizeLockTTL, time.Minute))))
	}
	coordinator := app.New(store, questions, hub, opts...)

	settings := transport.Settings{
		WriteTimeout:   config.Duration(cfg.WS.WriteTimeout, transport.DefaultSettings.WriteTimeout),
		PongWait:       config.Duration(cfg.WS.PongWait, transport.DefaultSettings.PongWait),
		PingInterval:   config.Duration(cfg.WS.PingInterval, transport.DefaultSettings.PingInterval),
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
	}
	router := transport.NewRouter(
		transport.NewWSHandler(coordinator, hub, settings, log),
		transport.NewRoomsHandler(coordinator, hub, log),
	)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz room server", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuizzes seeds quiz 1 for running without a database.
func sampleQuizzes() map[int64][]domain.Question {
	return map[int64][]domain.Question{
		1: {
			{
				ID:        1,
				QuizID:    1,
				Text:      "What is 2 + 2?",
				TimeLimit: 20,
				Options: []domain.Option{
					{ID: 1, Text: "3", Color: "red"},
					{ID: 2, Text: "4", IsCorrect: true, Color: "blue", OrderIndex: 1},
					{ID: 3, Text: "5", Color: "yellow", OrderIndex: 2},
				},
			},
			{
				ID:         2,
				QuizID:     1,
				Text:       "Which planet is closest to the sun?",
				TimeLimit:  20,
				OrderIndex: 1,
				Options: []domain.Option{
					{ID: 4, Text: "Mercury", IsCorrect: true, Color: "red"},
					{ID: 5, Text: "Venus", Color: "blue", OrderIndex: 1},
					{ID: 6, Text: "Mars", Color: "yellow", OrderIndex: 2},
				},
			},
		},
	}
}
