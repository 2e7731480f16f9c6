// cmd/worker/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

// The worker drains the analytics queue that API servers publish to when
// RMQ_URL is configured.
func main() {
	logx.Init()
	defer logx.Sync()

	cfg := config.Load()
	if cfg.RMQURL == "" {
		logx.L().Fatalw("worker_requires_broker", "msg", "RMQ_URL is not set")
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logx.L().Fatalw("db_connect_failed", "error", err)
	}
	defer sqlDB.Close()

	q, err := queue.NewAMQPQueue(cfg.RMQURL)
	if err != nil {
		logx.L().Fatalw("queue_connect_failed", "error", err)
	}
	defer q.Close()

	if err := subscribe(q, cfg.AnalyticsQueue, &repository.MetricsRepository{DB: sqlDB}); err != nil {
		logx.L().Fatalw("consumer_start_failed", "queue", cfg.AnalyticsQueue, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logx.L().Infow("worker_running", "queue", cfg.AnalyticsQueue)
	<-ctx.Done()
	logx.L().Infow("worker_stopping")
}

func subscribe(q queue.Queue, topic string, repo repository.MetricsRepositoryInterface) error {
	return queue.StartAnalyticsSubscriber(q, topic, analytics.NewTracker(repo))
}
