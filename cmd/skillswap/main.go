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

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/auth"
	"github.com/glebk/skillswap/internal/bot"
	"github.com/glebk/skillswap/internal/config"
	internalhttp "github.com/glebk/skillswap/internal/http"
	"github.com/glebk/skillswap/internal/logger"
	"github.com/glebk/skillswap/internal/metrics"
	"github.com/glebk/skillswap/internal/notify"
	"github.com/glebk/skillswap/internal/repository/sqlite"
	"github.com/glebk/skillswap/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// skillswap token <user-id> [role] prints a bearer token for local use.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		return
	}

	if err := run(cfg, log); err != nil {
		log.Fatalf("skillswap stopped: %v", err)
	}
}

func printToken(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: skillswap token <user-id> [user|admin]")
	}
	role := auth.RoleUser
	if len(args) > 1 {
		role = args[1]
	}
	token, err := auth.NewAccessToken(cfg.JWTSecret, cfg.JWTIssuer, args[0], role, 24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	log.WithField("path", cfg.DatabasePath).Info("database ready")

	m := metrics.New()

	events := notify.NewFanout()
	events.Add("log", notify.NewLog(log))

	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		defer publisher.Close()
		events.Add("amqp", publisher)
		log.WithField("exchange", cfg.AMQPExchange).Info("publishing events to AMQP")
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.WithError(err).Warn("redis close error")
			}
		}()
		events.Add("redis", notify.NewRedisPublisher(redisClient, cfg.RedisChannelPrefix))
		log.WithField("addr", cfg.RedisAddr).Info("publishing events to Redis")
	}

	alerts := &notify.Relay{}

	accounts := service.NewAccountService(db, cfg.SignupGrant, log)
	sessions, err := service.NewSessionService(service.Options{
		Store:         db,
		Notifier:      events,
		Alerter:       alerts,
		Metrics:       m,
		Logger:        log,
		MaxAttempts:   cfg.ConcurrencyMaxAttempts,
		NotifyTimeout: cfg.NotifyTimeout,
	})
	if err != nil {
		return err
	}

	botDone := make(chan struct{})
	if cfg.TelegramToken != "" {
		telegram, err := bot.New(cfg.TelegramToken, sessions, accounts, cfg, log)
		if err != nil {
			return err
		}
		events.Add("telegram", telegram)
		if cfg.TelegramAdminChatID != 0 {
			alerts.Attach(telegram)
		}
		go func() {
			defer close(botDone)
			if err := telegram.Start(ctx); err != nil {
				log.WithError(err).Error("telegram bot stopped")
			}
		}()
	} else {
		close(botDone)
		log.Info("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	server := internalhttp.NewServer(cfg, sessions, accounts, m.Handler(), log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	select {
	case <-botDone:
	case <-shutdownCtx.Done():
		log.Warn("telegram bot did not stop in time")
	}
	return nil
}
