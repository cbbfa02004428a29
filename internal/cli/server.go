package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/auth"
	"quiz-match-service/internal/config"
	"quiz-match-service/internal/infra/memory"
	"quiz-match-service/internal/infra/natsbus"
	"quiz-match-service/internal/infra/postgres"
	redisstore "quiz-match-service/internal/infra/redis"
	"quiz-match-service/internal/logging"
	transport "quiz-match-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match server",
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
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionSetLoader = memory.NewStaticQuestionSetLoader(sampleQuestionSets())
	var results app.ResultStore = memory.NewResultStore()
	if pool != nil {
		loader = postgres.NewQuestionSetLoader(pool)
		results = postgres.NewResultStore(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSetRepository
	var store app.MatchStore
	var locator transport.MatchLocator
	if redisClient != nil {
		questions = redisstore.NewQuestionSetRepository(redisClient, loader, questionTTL)
		redisMatches := redisstore.NewMatchStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour), instanceID())
		store, locator = redisMatches, redisMatches
	} else {
		questions = memory.NewQuestionSetRepository(loader, questionTTL)
		store = memory.NewMatchStore()
	}

	hub := transport.NewHub(transport.DefaultHubConfig())
	sinks := []app.EventSink{hub}
	if cfg.NATS.URL != "" {
		natsCfg := natsbus.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		publisher, err := natsbus.Connect(natsCfg)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	service := app.NewMatchService(store, results, questions, app.NewGateway(sinks...), cfg.MatchConfig(),
		app.WithPersistTimeout(config.TTLDuration(cfg.Match.PersistTimeout, 5*time.Second)))

	tokens := auth.NewManager(cfg.Auth.Secret, config.TTLDuration(cfg.Auth.TokenTTL, time.Hour))
	ws := transport.NewWSHandler(service, hub, tokens, cfg.Match.TerminateWhenAbandoned)
	if locator != nil {
		ws.WithLocator(locator)
	}
	router := transport.NewRouter(transport.NewAdminHandler(service, tokens), ws, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting match server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("terminate live matches")
		}
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}
