package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/examprep/backend/internal/config"
	"github.com/examprep/backend/internal/database"
	"github.com/examprep/backend/internal/engine"
	"github.com/examprep/backend/internal/events"
	"github.com/examprep/backend/internal/lock"
	"github.com/examprep/backend/internal/retry"
	"github.com/examprep/backend/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "examprep",
	Short:        "Assessment session engine",
	Long:         "Runs timed multi-module simulator exams and untimed practice sessions over a shared question bank.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
}

// backend is everything a command needs to drive sessions against the
// configured infrastructure.
type backend struct {
	db     *sql.DB
	engine *engine.Engine
	close  []func() error
}

func (b *backend) Close() {
	for i := len(b.close) - 1; i >= 0; i-- {
		if err := b.close[i](); err != nil {
			log.Printf("[shutdown] %v", err)
		}
	}
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b := &backend{db: db, close: []func() error{db.Close}}

	opts := engine.Options{
		Retry: retry.Config{
			MaxAttempts: cfg.StoreMaxAttempts,
			InitialWait: cfg.StoreRetryBackoff,
			MaxWait:     20 * cfg.StoreRetryBackoff,
			Multiplier:  2.0,
			Timeout:     cfg.StoreTimeout,
		},
	}

	if cfg.RedisURL != "" {
		client, err := lock.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect to Redis: %w", err)
		}
		b.close = append(b.close, client.Close)
		opts.Locker = lock.NewRedis(client, cfg.LockTTL)
		log.Println("[lock] using Redis session locks")
	} else {
		log.Println("[lock] REDIS_URL not set, using in-process session locks")
	}

	if cfg.RabbitMQURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.close = append(b.close, pub.Close)
		opts.Publisher = pub
	} else {
		log.Println("[events] RABBITMQ_URL not set, lifecycle events are dropped")
	}

	b.engine = engine.New(store.NewPostgres(db), opts)
	return b, nil
}
