package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/calvindo/checkout-pricing/internal/cache"
	"github.com/calvindo/checkout-pricing/internal/cart"
	"github.com/calvindo/checkout-pricing/internal/config"
	"github.com/calvindo/checkout-pricing/internal/lock"
	"github.com/calvindo/checkout-pricing/internal/obs"
	"github.com/calvindo/checkout-pricing/internal/tax"
)

const (
	taskCartSweep = "cart:sweep"
	taskTaxWarm   = "tax:warm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("METRICS_NAMESPACE", "checkout"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	cartSvc := &cart.Service{Store: &cart.PGStore{Pool: pool}, TTL: cfg.CartTTL}
	taxResolver := &tax.Resolver{
		Store:   &tax.PGStore{Pool: pool},
		Cache:   cache.New(redisClient, cfg.CacheTTL),
		Default: cfg.DefaultTaxRate,
	}
	locker := lock.Locker{R: redisClient, RetryBackoff: 50 * time.Millisecond}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	asynqRedis := asynq.RedisClientOpt{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskCartSweep, func(jobCtx context.Context, _ *asynq.Task) error {
		return locker.WithLock(jobCtx, "lock:cart:sweep", time.Minute, func(lockCtx context.Context) error {
			removed, err := cartSvc.SweepExpired(lockCtx)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.Info().Int64("removed", removed).Msg("swept expired carts")
			}
			return nil
		})
	})
	mux.HandleFunc(taskTaxWarm, func(jobCtx context.Context, _ *asynq.Task) error {
		warmed, err := taxResolver.Warm(jobCtx)
		if err != nil {
			return err
		}
		logger.Info().Int("rates", warmed).Msg("warmed tax rate cache")
		return nil
	})

	srv := asynq.NewServer(asynqRedis, asynq.Config{
		Concurrency: 4,
		Logger:      asynqLogger{logger},
	})

	scheduler := asynq.NewScheduler(asynqRedis, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
	if _, err := scheduler.Register(envOrDefault("CART_SWEEP_CRON", "@every 10m"), asynq.NewTask(taskCartSweep, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register cart sweep schedule")
	}
	if _, err := scheduler.Register(envOrDefault("TAX_WARM_CRON", "@every 1h"), asynq.NewTask(taskTaxWarm, nil)); err != nil {
		logger.Fatal().Err(err).Msg("register tax warm schedule")
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(mux) }()
	go func() { errCh <- scheduler.Run() }()

	logger.Info().Msg("worker starting")
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("worker stopped with error")
		}
	}
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...any) { a.l.Debug().Msgf("%v", args) }
func (a asynqLogger) Info(args ...any)  { a.l.Info().Msgf("%v", args) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn().Msgf("%v", args) }
func (a asynqLogger) Error(args ...any) { a.l.Error().Msgf("%v", args) }
func (a asynqLogger) Fatal(args ...any) { a.l.Fatal().Msgf("%v", args) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
