package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthstore/healthstore/internal/config"
	"github.com/healthstore/healthstore/internal/platform/cache"
	"github.com/healthstore/healthstore/internal/platform/db"
	"github.com/healthstore/healthstore/internal/platform/kafka"
	"github.com/healthstore/healthstore/internal/platform/outbox"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthstore-server",
		Short: "Health store API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(topicsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if dir == "" {
			dir = cfg.MigrationsDir
		}
		ctx := context.Background()
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, dir))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format(time.DateTime)
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Publish outbox events to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateRelay(); err != nil {
				return err
			}
			logger := newLogger(cfg.Env)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
				ServiceName:    cfg.ServiceName + "-relay",
				ServiceVersion: version,
				Environment:    cfg.Env,
				OTLPEndpoint:   cfg.OTLPEndpoint,
				SampleRate:     cfg.OTelSampleRate,
			})
			if err != nil {
				return err
			}
			defer shutdownTracing(tp, logger)

			metrics := telemetry.NewMetrics(prometheus.NewRegistry())
			producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(cfg.KafkaBrokers), logger, metrics)
			if err != nil {
				return err
			}
			defer producer.Close()

			rc := outbox.DefaultRelayConfig()
			rc.TopicPrefix = cfg.KafkaTopicPrefix
			rc.BatchSize = cfg.OutboxBatchSize
			rc.PollInterval = cfg.OutboxPollInterval
			relay := outbox.NewRelay(outbox.NewPgStore(pool), producer, rc, logger, metrics)

			logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("outbox relay started")
			err = relay.Run(ctx)
			st := relay.Stats()
			logger.Info().Int64("published", st.Published).Int64("failed", st.Failed).Msg("outbox relay stopped")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage Kafka topics",
	}
	ensureCmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create missing event topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			partitions, _ := cmd.Flags().GetInt32("partitions")
			replication, _ := cmd.Flags().GetInt16("replication")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			results, err := kafka.EnsureTopics(ctx, cfg.KafkaBrokers,
				kafka.EventTopics(cfg.KafkaTopicPrefix, partitions, replication))
			if err != nil {
				return err
			}
			var failed int
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Printf("%-40s error: %v\n", r.Name, r.Err)
				case r.Created:
					fmt.Printf("%-40s created\n", r.Name)
				default:
					fmt.Printf("%-40s exists\n", r.Name)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d topic(s) could not be created", failed)
			}
			return nil
		},
	}
	ensureCmd.Flags().Int32("partitions", 3, "Partitions per topic")
	ensureCmd.Flags().Int16("replication", 1, "Replication factor")
	cmd.AddCommand(ensureCmd)
	return cmd
}

func shutdownTracing(tp *telemetry.Provider, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("tracer shutdown failed")
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.OTelSampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer shutdownTracing(tp, logger)

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	var dashCache *cache.Cache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, dashboards will not be cached")
		} else {
			defer client.Close()
			dashCache = cache.New(client, cfg.ServiceName, cfg.CacheTTL, logger, metrics)
		}
	}

	app := newApp(appDeps{
		cfg:      cfg,
		pool:     pool,
		cache:    dashCache,
		metrics:  metrics,
		gatherer: reg,
		logger:   logger,
	})
	defer app.hub.Close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := app.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
