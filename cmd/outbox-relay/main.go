// Command outbox-relay runs outbox recovery and retention against a MySQL or
// PostgreSQL outbox table and serves the admin API with Prometheus metrics.
//
// Configuration comes from a YAML file (-config) and OUTBOX_* environment variables.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	outbox "github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/adminhttp"
	"github.com/velmie/txoutbox/breaker"
	"github.com/velmie/txoutbox/internal/config"
	"github.com/velmie/txoutbox/kafka"
	"github.com/velmie/txoutbox/mysql"
	"github.com/velmie/txoutbox/postgres"
	"github.com/velmie/txoutbox/prom"
	"github.com/velmie/txoutbox/rabbitmq"
	"github.com/velmie/txoutbox/redis"
	"github.com/velmie/txoutbox/zaplog"
)

const (
	tracerName      = "github.com/velmie/txoutbox/cmd/outbox-relay"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, zl, err := zaplog.NewProduction(cfg.Log.Verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		zl.Error("outbox relay stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger outbox.Logger) error {
	repo, closeRepo, err := openRepository(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	sink, closeSink, err := buildSink(cfg.Sink, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	if cfg.Breaker.Enabled {
		sink = breaker.New(sink, breaker.Config{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
			Logger:              logger,
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prom.New(reg)

	opts := []outbox.Option{
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics),
		outbox.WithTracer(otel.Tracer(tracerName)),
		outbox.WithPageSize(cfg.Recovery.PageSize),
		outbox.WithRetryThreshold(cfg.Recovery.RetryThreshold),
		outbox.WithStuckDelay(cfg.Recovery.StuckDelay),
		outbox.WithRecoveryInterval(cfg.Recovery.Interval),
		outbox.WithSendTimeout(cfg.Recovery.SendTimeout),
		outbox.WithLifetime(cfg.Retention.Lifetime),
		outbox.WithRetentionInterval(cfg.Retention.Interval),
		outbox.WithLockName(cfg.Retention.LockName),
	}

	workers := buildWorkers(cfg.Retention, repo, sink, opts...)

	router := adminhttp.NewRouter(
		outbox.NewAdmin(repo, opts...),
		adminhttp.WithSecret([]byte(cfg.HTTP.JWTSecret)),
		adminhttp.WithMetricsHandler(prom.Handler(reg)),
		adminhttp.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return outbox.RunWorkers(gctx, logger, workers...)
	})
	g.Go(func() error {
		logger.Info("outbox admin listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("outbox relay started", "driver", cfg.Store.Driver, "sink", cfg.Sink.Type)

	return g.Wait()
}

// buildWorkers returns recovery and retention as separate workers, or one
// Maintenance worker when retention.combined is set.
func buildWorkers(cfg config.RetentionConfig, repo outbox.Repository, sink outbox.Sink, opts ...outbox.Option) []outbox.Worker {
	recovery := outbox.NewRecovery(repo, sink, opts...)
	switch {
	case !cfg.Enabled:
		return []outbox.Worker{recovery}
	case cfg.Combined:
		return []outbox.Worker{outbox.NewMaintenance(recovery, outbox.NewRetention(repo, opts...), opts...)}
	default:
		return []outbox.Worker{recovery, outbox.NewRetention(repo, opts...)}
	}
}

func openRepository(cfg config.StoreConfig, logger outbox.Logger) (outbox.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if cfg.Migrate {
			if err := postgres.MigrateDSN(cfg.DSN, logger); err != nil {
				return nil, nil, err
			}
		}
		db, err := gorm.Open(gormpostgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Discard})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres handle: %w", err)
		}
		store, err := postgres.NewStore(db,
			postgres.WithTable(cfg.Table),
			postgres.WithDeleteBatch(cfg.DeleteBatch),
			postgres.WithLogger(logger),
		)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}

		return store, func() { _ = sqlDB.Close() }, nil
	default:
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		store, err := mysql.NewStore(db,
			mysql.WithTable(cfg.Table),
			mysql.WithDeleteBatch(cfg.DeleteBatch),
			mysql.WithLogger(logger),
		)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if cfg.Migrate {
			schema, err := mysql.Schema(cfg.Table)
			if err == nil {
				_, err = db.Exec(schema)
			}
			if err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("create mysql schema: %w", err)
			}
		}

		return store, func() { _ = db.Close() }, nil
	}
}

func buildSink(cfg config.SinkConfig, logger outbox.Logger) (outbox.Sink, func(), error) {
	switch cfg.Type {
	case config.SinkKafka:
		sink := kafka.NewSink(cfg.Kafka.Brokers,
			kafka.WithTopicPrefix(cfg.Kafka.TopicPrefix),
			kafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
			kafka.WithLogger(logger),
		)

		return sink, func() { _ = sink.Close() }, nil
	case config.SinkRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		sink := redis.NewSink(client,
			redis.WithStreamPrefix(cfg.Redis.StreamPrefix),
			redis.WithMaxLen(cfg.Redis.MaxLen),
		)

		return sink, func() { _ = client.Close() }, nil
	case config.SinkRabbitMQ:
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
		}
		if cfg.RabbitMQ.Confirm {
			if err := ch.Confirm(false); err != nil {
				_ = conn.Close()
				return nil, nil, fmt.Errorf("enable rabbitmq confirms: %w", err)
			}
		}
		sink := rabbitmq.NewSink(ch, rabbitmq.WithExchange(cfg.RabbitMQ.Exchange))

		return sink, func() {
			_ = ch.Close()
			_ = conn.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown sink type %q", config.ErrInvalidConfig, cfg.Type)
	}
}
