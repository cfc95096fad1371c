package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/rca-academy/school_mis/pkg/db"
	"github.com/rca-academy/school_mis/pkg/hash"
	"github.com/rca-academy/school_mis/pkg/logging"
	loggingmw "github.com/rca-academy/school_mis/pkg/middleware/logging"
	"github.com/rca-academy/school_mis/pkg/tokens"
	"github.com/rca-academy/school_mis/services/auth/internal/authz"
	"github.com/rca-academy/school_mis/services/auth/internal/config"
	"github.com/rca-academy/school_mis/services/auth/internal/httpserver"
	"github.com/rca-academy/school_mis/services/auth/internal/limiter"
	"github.com/rca-academy/school_mis/services/auth/internal/metrics"
	"github.com/rca-academy/school_mis/services/auth/internal/middleware"
	"github.com/rca-academy/school_mis/services/auth/internal/models"
	"github.com/rca-academy/school_mis/services/auth/internal/notify"
	"github.com/rca-academy/school_mis/services/auth/internal/repo"
	"github.com/rca-academy/school_mis/services/auth/internal/revocation"
	"github.com/rca-academy/school_mis/services/auth/internal/seed"
	"github.com/rca-academy/school_mis/services/auth/internal/service"
)

const cleanupInterval = time.Hour

func fatal(l *slog.Logger, msg string, err error) {
	l.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "config_load_failed", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)
	rootCtx := logging.IntoContext(context.Background(), logger)

	initCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	gdb, err := db.Open(initCtx, db.Options{
		Driver:    cfg.DBDriver,
		SQLDriver: cfg.DBSQLDriver,
		DSN:       cfg.DatabaseURL,
	})
	if err != nil {
		cancel()
		fatal(logger, "db_init_failed", err)
	}
	if err := gdb.WithContext(initCtx).AutoMigrate(models.All()...); err != nil {
		cancel()
		fatal(logger, "db_migrate_failed", err)
	}

	store := repo.New(gdb)
	if cfg.SeedRoles {
		if err := seed.Roles(initCtx, store, seed.DefaultRoles); err != nil {
			cancel()
			fatal(logger, "seed_roles_failed", err)
		}
	}

	var (
		denylist revocation.Denylist
		rdb      *redis.Client
		redisDL  *revocation.RedisStore
	)
	if cfg.RedisURL != "" {
		rdb, err = revocation.NewRedisClient(initCtx, cfg.RedisURL)
		if err != nil {
			cancel()
			fatal(logger, "redis_init_failed", err)
		}
		redisDL = revocation.NewRedisStore(rdb)
		denylist = redisDL
	} else {
		logger.Warn("redis_not_configured", "denylist", "database")
		denylist = revocation.NewGormStore(gdb)
	}
	cancel()

	var (
		publisher notify.Publisher = notify.LogPublisher{}
		kafkaPub  *notify.KafkaPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub = notify.NewKafkaPublisher(cfg.KafkaBrokers)
		publisher = notify.NewBreakerPublisher(kafkaPub, notify.DefaultBreakerConfig("kafka"))
	} else {
		logger.Warn("kafka_not_configured", "events", "logged only")
	}

	codec, err := tokens.NewCodec([]byte(cfg.JWTSecret), tokens.WithLeeway(cfg.TokenLeeway))
	if err != nil {
		fatal(logger, "token_codec_failed", err)
	}
	resolver := authz.NewResolver()

	svc := &service.AuthService{
		Store:        store,
		Hasher:       hash.NewHasher(cfg.BcryptCost),
		Codec:        codec,
		Resolver:     resolver,
		Denylist:     denylist,
		Publisher:    publisher,
		LoginLimiter: limiter.PerMinute(cfg.LoginRatePerMinute),
		Settings: service.Settings{
			AccessTTL:             cfg.AccessTokenTTL,
			RefreshTTL:            cfg.RefreshTokenTTL,
			OTPTTL:                cfg.OTPTTL,
			OTPMaxAttempts:        cfg.OTPMaxAttempts,
			RecoveryMinDuration:   cfg.RecoveryMinDuration,
			SelfRegistrationRoles: cfg.SelfRegistrationRoles,
			NotificationTopic:     cfg.NotificationTopic,
			UserEventsTopic:       cfg.UserEventsTopic,
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(metrics.Middleware())

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{Svc: svc},
		Guard:       middleware.NewGuard(svc, resolver),
		IPLimiter:   limiter.PerMinute(cfg.LoginRatePerMinute * 3),
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx, gdb); err != nil {
				return err
			}
			if redisDL != nil {
				return redisDL.Ping(ctx)
			}
			return nil
		},
	})

	runCtx, stopCleanup := context.WithCancel(rootCtx)
	go cleanup(runCtx, store, denylist)

	go func() {
		logger.Info("http_server_starting", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http_server_failed", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown_started")
	stopCleanup()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	}

	svc.Wait()
	if kafkaPub != nil {
		if err := kafkaPub.Close(); err != nil {
			logger.Error("kafka_close_failed", "error", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis_close_failed", "error", err)
		}
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}

// cleanup drops expired refresh tokens and, for the database denylist,
// expired entries.
func cleanup(ctx context.Context, store *repo.GormRepo, denylist revocation.Denylist) {
	l := logging.FromContext(ctx)
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		n, err := store.DeleteExpiredRefreshTokens(ctx, time.Now())
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("refresh_cleanup_failed", "error", err)
		} else if n > 0 {
			l.Info("refresh_cleanup", "deleted", n)
		}

		if gs, ok := denylist.(*revocation.GormStore); ok {
			if n, err := gs.Purge(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error("denylist_purge_failed", "error", err)
			} else if n > 0 {
				l.Info("denylist_purge", "deleted", n)
			}
		}
	}
}

