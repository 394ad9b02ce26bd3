package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/config"
	httptransport "github.com/example/class-booking/internal/http"
	"github.com/example/class-booking/internal/mail"
	"github.com/example/class-booking/internal/metrics"
	"github.com/example/class-booking/internal/persistence/sqlite"
	"github.com/example/class-booking/internal/ratelimit"
	"github.com/example/class-booking/internal/recurrence"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("booking API stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	storage, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	app, err := newServer(cfg, storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cerr := app.Close(closeCtx); cerr != nil {
			logger.Error("failed to release resources", "error", cerr)
		}
	}()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("booking API listening",
		"addr", httpServer.Addr,
		"timezone", cfg.Timezone.String(),
		"redis", cfg.RedisAddr != "",
		"smtp", cfg.SMTP.Enabled(),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// server holds the assembled HTTP handler and the resources it must release
// on shutdown.
type server struct {
	handler    http.Handler
	dispatcher *mail.Dispatcher
	redis      *redis.Client
}

func newServer(cfg config.Config, storage *sqlite.Storage, logger *slog.Logger) (*server, error) {
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = recurrence.LoadLocation(recurrence.DefaultTimeZone)
	}

	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	srv := &server{}
	recorder := metrics.NewRecorder()

	var counter ratelimit.Counter
	if cfg.RedisAddr != "" {
		srv.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		counter = ratelimit.NewRedisCounter(srv.redis)
	} else {
		counter = ratelimit.NewMemoryCounter(now)
	}
	limiter := ratelimit.NewLimiter(counter, now, logger)

	var sender mail.Sender
	if cfg.SMTP.Enabled() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		sender = mail.NewLogSender(logger)
	}
	srv.dispatcher = mail.NewDispatcher(sender, cfg.MailQueueSize, 30*time.Second, logger)
	mailer := mail.NewCodeMailer(srv.dispatcher, cfg.AppURL, cfg.DefaultLocale)

	users := newUserRepositoryAdapter(storage)
	sessions := newSessionRepositoryAdapter(storage)
	classSessions := newClassSessionRepositoryAdapter(storage)
	bookings := newBookingRepositoryAdapter(storage)

	classService := application.NewClassServiceWithLogger(classSessions, recurrence.NewEngine(loc), idGenerator, now, logger)
	bookingService := application.NewBookingServiceWithLogger(bookings, idGenerator, now, logger).WithRecorder(recorder)
	userService := application.NewUserServiceWithLogger(users, sessions, nil, idGenerator, now, logger)
	authService := application.NewAuthServiceWithLogger(users, sessions, nil, tokenGenerator, now, cfg.SessionTTL, logger)
	accountService := application.NewAccountService(application.AccountServiceConfig{
		Users:       users,
		Sessions:    sessions,
		Codes:       application.NewCodeIssuer(cfg.SessionSecret, nil),
		Mailer:      mailer,
		IDGenerator: idGenerator,
		Now:         now,
		CodeTTL:     cfg.CodeTTL,
		Logger:      logger,
	})

	srv.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(authService, accountService, cfg.CookieSecure, logger),
		Classes:        httptransport.NewClassHandler(classService, loc, logger),
		Bookings:       httptransport.NewBookingHandler(bookingService, logger),
		Users:          httptransport.NewUserHandler(userService, logger),
		Sessions:       authService,
		Limiter:        limiter,
		Metrics:        recorder,
		MetricsHandler: recorder.Handler(),
		Logger:         logger,
	})
	return srv, nil
}

// Close drains the mail queue and closes the redis client.
func (s *server) Close(ctx context.Context) error {
	var errs []error
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close mail dispatcher: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return uuid.NewString() + uuid.NewString()
	}
	return hex.EncodeToString(buf)
}
