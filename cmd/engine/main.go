package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sla_engine/internal/app"
	"sla_engine/internal/domain/audit"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/infra/auditlog"
	"sla_engine/internal/infra/config"
	idb "sla_engine/internal/infra/database"
	"sla_engine/internal/infra/httpapi"
	"sla_engine/internal/infra/lock"
	"sla_engine/internal/infra/logger"
	"sla_engine/internal/infra/mail"
	"sla_engine/internal/infra/outbound"
	"sla_engine/internal/infra/scheduler"
	"sla_engine/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("FATAL: Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"http_addr":   cfg.HTTPAddr,
	}).Info("SLA engine starting...")

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(startupCtx, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.Migrate(startupCtx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database migrations")
	}
	mainLogger.Info("Database connection established and schema migrated.")

	// Initialize Repositories
	userRepo := idb.NewPostgresUserRepository(db)
	workItemRepo := idb.NewPostgresWorkItemRepository(db)
	categoryRepo := idb.NewPostgresCategoryRepository(db)
	timerRepo := idb.NewPostgresTimerRepository(db)
	configRepo := idb.NewPostgresConfigRepository(db)
	reminderRepo := idb.NewPostgresReminderRepository(db)
	escalationRepo := idb.NewPostgresEscalationRepository(db)
	notificationRepo := idb.NewPostgresNotificationRepository(db)

	// Audit trail: always logged, additionally published to Kafka when configured.
	auditWriters := []audit.Writer{auditlog.NewLogWriter(logger.Component("audit"))}
	if len(cfg.KafkaBrokers) > 0 {
		auditWriters = append(auditWriters, auditlog.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		mainLogger.WithField("topic", cfg.KafkaTopic).Info("Kafka audit writer enabled.")
	}
	auditWriter := auditlog.NewMultiWriter(auditWriters...)
	defer auditWriter.Close()

	// Outbound channels
	renderer, err := outbound.NewRenderer()
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not parse notification templates")
	}
	var channels []notification.Channel
	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram bot error")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		channels = append(channels, telegram.NewChannel(telegram.NewTelebotAdapter(bot), userRepo, renderer, logger.Component("outbound")))
	}
	if cfg.SMTPHost != "" {
		channels = append(channels, mail.NewChannel(mail.Config{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			User:          cfg.SMTPUser,
			Password:      cfg.SMTPPassword,
			SenderAddress: cfg.SMTPSender,
		}, userRepo, renderer, logger.Component("outbound")))
	}
	var pusher app.OutboundPusher
	if len(channels) > 0 {
		pusher = outbound.NewRouter(outbound.DefaultBreakerSettings, logger.Component("outbound"), channels...)
	}
	mainLogger.WithField("channels", len(channels)).Info("Outbound channels initialized.")

	// Initialize Services
	dispatcher := app.NewNotificationService(notificationRepo, configRepo, pusher, auditWriter, logger.Component("app"))
	timers := app.NewTimerService(timerRepo, workItemRepo, logger.Component("app"))
	deadlines := app.NewDeadlineService(categoryRepo, workItemRepo, logger.Component("app"))
	reminders := app.NewReminderService(configRepo, workItemRepo, reminderRepo, dispatcher, auditWriter, cfg.TickConcurrency, logger.Component("app"))
	escalations := app.NewEscalationService(
		configRepo,
		workItemRepo,
		escalationRepo,
		app.NewRecipientResolver(userRepo, logger.Component("app")),
		dispatcher,
		auditWriter,
		app.VolumeAlert{Window: cfg.EscalationVolumeWindow, Threshold: cfg.EscalationVolumeThreshold},
		cfg.TickConcurrency,
		logger.Component("app"),
	)

	var locker app.TickLocker
	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(startupCtx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not connect to Redis")
		}
		defer client.Close()
		locker = lock.NewRedisLock(client)
		mainLogger.Info("Redis tick lock enabled.")
	}
	engine := app.NewEngine(reminders, escalations, locker, cfg.TickBudget, auditWriter, logger.Component("app"))

	// Internal periodic trigger
	engineScheduler := scheduler.NewEngineScheduler(
		engine,
		dispatcher,
		deadlines,
		scheduler.Specs{
			Tick:          cfg.CronSpecTick,
			Retention:     cfg.CronSpecRetention,
			CategoryStats: cfg.CronSpecCategoryStats,
		},
		cfg.TickBudget,
		cfg.NotificationRetention,
		logger.Component("scheduler"),
	)
	if err := engineScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	// HTTP API
	router := httpapi.NewRouter(
		httpapi.Config{
			TriggerSecret:        cfg.TriggerSecret,
			TriggerRatePerSecond: cfg.TriggerRatePerSecond,
			TriggerBurst:         cfg.TriggerBurst,
		},
		httpapi.Services{Engine: engine, Timers: timers, Deadlines: deadlines, Escalations: escalations, Inbox: dispatcher},
		logger.Component("http"),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	if bot != nil {
		telegram.RegisterBotCommands(bot, userRepo, dispatcher, logger.Component("telegram"))
		go bot.Start()
		mainLogger.Info("Telegram bot started.")
	}

	mainLogger.Info("Application setup complete.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Error("HTTP server shutdown failed")
	}
	if bot != nil {
		bot.Stop()
	}
	engineScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
