// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/outreach-backend/internal/analytics"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/connector"
	"github.com/unclebandit/outreach-backend/internal/controller"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/handler"
	"github.com/unclebandit/outreach-backend/internal/lock"
	"github.com/unclebandit/outreach-backend/internal/logx"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/scheduler"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	logx.Init()
	defer logx.Sync()

	cfg := config.Load()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logx.L().Fatalw("db_connect_failed", "error", err)
	}
	defer sqlDB.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.RedisAddr != "" {
		rl := lock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword)
		defer rl.Close()
		locker = rl
	}

	campaignRepo := &repository.CampaignRepository{DB: sqlDB}
	recipientRepo := &repository.RecipientRepository{DB: sqlDB}
	messageRepo := &repository.MessageRepository{DB: sqlDB}
	attemptRepo := &repository.AttemptRepository{DB: sqlDB}
	metricsRepo := &repository.MetricsRepository{DB: sqlDB}

	q, err := openQueue(cfg, metricsRepo)
	if err != nil {
		logx.L().Fatalw("queue_connect_failed", "error", err)
	}
	defer q.Close()
	sink := &queue.Publisher{Queue: q, Topic: cfg.AnalyticsQueue}

	replies := &handler.ReplyTracker{Recipients: recipientRepo, Sink: sink}
	registry := connector.NewDefaultRegistry(connector.Deps{
		Configs: &repository.ChannelConfigRepository{DB: sqlDB},
		Senders: &repository.SenderRepository{DB: sqlDB},
		Logs:    &repository.ChannelLogRepository{DB: sqlDB},
		Locker:  locker,
	}, connector.TelegramOptions{
		WebhookURL: cfg.TelegramWebhookURL,
		OnUpdate:   replies.OnTelegramUpdate,
	}, cfg.DefaultCountryCode)
	defer registry.Close()
	if failed := registry.InitializeAll(ctx); len(failed) > 0 {
		logx.L().Warnw("connectors_unavailable", "count", len(failed))
	}

	engine := service.NewOutreachEngine(registry, attemptRepo, sink)
	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		MessageRepo:   messageRepo,
		Engine:        engine,
		SendDelay:     cfg.SendDelay,
		Location:      time.Local,
	}

	sched := scheduler.New(campaignRepo, recipientRepo, campaignService, time.Local)
	sched.MaintenanceSpec = cfg.MaintenanceCron
	sched.DefaultBatchSize = cfg.DefaultBatchSize
	campaignService.Scheduler = sched
	if err := sched.Start(ctx); err != nil {
		logx.L().Fatalw("scheduler_start_failed", "error", err)
	}
	defer sched.StopAll()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handler.RequestID)
	r.Use(handler.Observe)
	r.Use(handler.CORS(cfg.CORSOrigins))

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	campaignController.Routes(r)

	events := &handler.EventsHandler{Sink: sink}
	r.Post("/events", events.Track)

	if c, ok := registry.Get(model.ChannelTelegram); ok {
		if tg, ok := c.(*connector.TelegramConnector); ok && tg.Mode() == connector.TelegramWebhook {
			webhook := &handler.TelegramWebhookHandler{Receiver: tg}
			r.Post("/webhooks/telegram", webhook.Receive)
		}
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.L().Infow("server_started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.L().Fatalw("server_failed", "error", err)
		}
	}()

	<-ctx.Done()
	logx.L().Infow("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.L().Errorw("server_shutdown_failed", "error", err)
	}
}

// openQueue returns the AMQP queue when RMQ_URL is set. Without a broker,
// analytics events are applied in-process.
func openQueue(cfg *config.Config, metricsRepo repository.MetricsRepositoryInterface) (queue.Queue, error) {
	if cfg.RMQURL != "" {
		return queue.NewAMQPQueue(cfg.RMQURL)
	}
	q := queue.NewInMemoryQueue()
	if err := queue.StartAnalyticsSubscriber(q, cfg.AnalyticsQueue, analytics.NewTracker(metricsRepo)); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}
