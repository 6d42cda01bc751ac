package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/gym-class-booking/internal/app"
	"github.com/iliyamo/gym-class-booking/internal/config"
	"github.com/iliyamo/gym-class-booking/internal/database"
	"github.com/iliyamo/gym-class-booking/internal/handler"
	"github.com/iliyamo/gym-class-booking/internal/ledger"
	"github.com/iliyamo/gym-class-booking/internal/logger"
	"github.com/iliyamo/gym-class-booking/internal/middleware"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
	"github.com/iliyamo/gym-class-booking/internal/repository/memstore"
	"github.com/iliyamo/gym-class-booking/internal/router"
	"github.com/iliyamo/gym-class-booking/internal/service"
)

// stores groups the persistence backends selected by STORAGE.
type stores struct {
	sessions     service.SessionStore
	reservations service.ReservationStore
	users        handler.UserStore
	tokens       handler.TokenStore
	close        func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg := logger.New(cfg.Env)
	os.Exit(exitCode(lg, run(cfg, lg)))
}

// exitCode logs a run failure and flushes the logger, since os.Exit
// skips deferred calls.
func exitCode(lg *zap.Logger, err error) int {
	code := 0
	if err != nil {
		lg.Error("server stopped", zap.Error(err))
		code = 1
	}
	_ = lg.Sync()
	return code
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer st.close()

	if err := seedAdmin(ctx, cfg, st.users, lg); err != nil {
		return err
	}

	var events service.EventPublisher
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.AMQPURL, lg)
		defer pub.Close()
		events = pub
		if cfg.NotificationLogDir != "" {
			consumer := &queue.NotificationConsumer{URL: cfg.AMQPURL, Dir: cfg.NotificationLogDir, Logger: lg}
			go consumer.Run(ctx)
		}
	}

	svc := service.NewReservationService(ledger.New(), st.sessions, st.reservations, st.users, events, lg,
		service.WithForgetAfter(cfg.ForgetAfter))
	if _, err := svc.Restore(ctx); err != nil {
		// Failed sessions are retried by lazy loading on first use.
		lg.Warn("ledger restore incomplete", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			lg.Warn("redis unavailable, cache and rate limit disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	scheduler := app.NewScheduler(svc, cfg.ReconcileInterval, lg)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(lg))
	router.Register(e, router.Deps{
		Cfg:      cfg,
		Auth:     handler.NewAuthHandler(cfg, st.users, st.tokens, lg),
		Sessions: handler.NewSessionHandler(svc, lg, cfg.RequestTimeout),
		Booking:  handler.NewBookingHandler(svc, lg, cfg.RequestTimeout),
		Redis:    rdb,
		Logger:   lg,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("storage", cfg.Storage))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, lg *zap.Logger) (stores, error) {
	if cfg.Storage == config.StorageMemory {
		lg.Warn("using in-memory storage, data is lost on restart")
		m := memstore.New()
		return stores{m.Sessions, m.Reservations, m.Users, m.Tokens, func() error { return nil }}, nil
	}

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, fmt.Errorf("open database: %w", err)
	}
	migrator, err := database.NewMigrator(db, lg)
	if err != nil {
		db.Close()
		return stores{}, fmt.Errorf("init migrations: %w", err)
	}
	if err := migrator.Run(ctx); err != nil {
		db.Close()
		return stores{}, fmt.Errorf("migrate: %w", err)
	}
	return stores{
		sessions:     repository.NewSessionRepo(db),
		reservations: repository.NewReservationRepo(db),
		users:        repository.NewUserRepo(db),
		tokens:       repository.NewTokenRepo(db),
		close:        db.Close,
	}, nil
}

// seedAdmin creates the configured admin account once.
func seedAdmin(ctx context.Context, cfg config.Config, users handler.UserStore, lg *zap.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	id, err := users.Create(ctx, "Administrator", cfg.AdminEmail, cfg.AdminPassword, model.RoleAdmin, cfg.BcryptCost)
	switch {
	case errors.Is(err, repository.ErrEmailExists):
		return nil
	case err != nil:
		return fmt.Errorf("seed admin: %w", err)
	}
	lg.Info("admin account created", zap.Uint64("user_id", id))
	return nil
}
