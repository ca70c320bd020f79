package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/auth"
	"github.com/example/face-attendance/internal/cache"
	"github.com/example/face-attendance/internal/clock"
	"github.com/example/face-attendance/internal/config"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/grpcclient"
	"github.com/example/face-attendance/internal/handlers"
	"github.com/example/face-attendance/internal/logging"
	"github.com/example/face-attendance/internal/metrics"
	"github.com/example/face-attendance/internal/notify"
	"github.com/example/face-attendance/internal/repository"
	"github.com/example/face-attendance/internal/retry"
	"github.com/example/face-attendance/internal/usecase"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides ATTENDANCE_CONFIG)")
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	location, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}
	if cfg.JWTSecret == config.New().JWTSecret {
		logger.Warn("using the default JWT secret; set ATTENDANCE_JWT_SECRET")
	}

	metricsManager := metrics.NewManager()

	store, closeStore := initStore(ctx, cfg, logger)
	defer closeStore()

	recordCache := cache.Cache(cache.Noop{})
	ledger := attendance.Ledger(store)
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
		defer redisClient.Close()

		recordCache = cache.NewRetrying(cache.NewRedisCache(redisClient), retry.DefaultPolicy(), logger)
		ledger = repository.NewCachedLedger(store, recordCache, logger)
	}

	var (
		remote   faceoracle.Oracle
		enroller faceoracle.Enroller
	)
	if cfg.FaceProviderAddr != "" {
		provider, err := grpcclient.DialFaceProvider(ctx, cfg.FaceProviderAddr, cfg.FaceProviderTimeout, logger)
		if err != nil {
			logger.Fatal("failed to connect to face provider", zap.Error(err))
		}
		defer provider.Close()
		remote = faceoracle.Instrument(provider, string(faceoracle.KindToken), metricsManager)
		enroller = provider
	}
	oracle := faceoracle.NewSelector(
		faceoracle.Instrument(faceoracle.NewCosine(), string(faceoracle.KindEmbedding), metricsManager),
		remote,
	)

	sinks := notify.Multi{notify.NewStoreSink(store)}
	if cfg.SendGridAPIKey != "" {
		sinks = append(sinks, notify.NewEmailSink(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFrom))
	}
	dispatcher := notify.NewDispatcher(sinks, cfg.NotifyTimeout, logger, metricsManager)

	engine := attendance.NewEngine(store, ledger, oracle, dispatcher, logger,
		attendance.WithLocation(location),
		attendance.WithOracleTimeout(cfg.FaceProviderTimeout),
		attendance.WithRecorder(metricsManager),
	)

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTAudience, cfg.JWTTTL, clock.Real())
	if err != nil {
		logger.Fatal("failed to build token issuer", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := newRouter(logger, metricsManager, handlers.Dependencies{
		Attendance:    usecase.NewAttendanceUseCase(store, engine, enroller, recordCache, cfg.EmbeddingDim, logger),
		Admin:         usecase.NewAdminUseCase(store, enroller, clock.Real(), logger),
		Auth:          usecase.NewAuthUseCase(store, issuer, clock.Real(), logger),
		Notifications: usecase.NewNotificationUseCase(store),
		Metrics:       metricsManager.Handler(),
		Logger:        logger,
	}, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("attendance API listening",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.StorageDriver),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("face_provider", cfg.FaceProviderAddr != ""),
		zap.String("timezone", location.String()),
	)
	if err := serveAndDrain(server, cfg.ShutdownTimeout, logger, nil, nil, dispatcher); err != nil {
		logger.Error("server failed", zap.Error(err))
	}
}

// newRouter builds the engine with the middleware chain every deployment
// runs.
func newRouter(logger *zap.Logger, observer handlers.HTTPObserver, deps handlers.Dependencies, authMiddleware gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	r.Use(
		gin.Recovery(),
		handlers.RequestLogger(logger),
		handlers.Metrics(observer),
		cors.New(corsConfig()),
		handlers.LimitBody(handlers.MaxRequestBody),
	)
	handlers.RegisterRoutes(r, deps, authMiddleware)
	return r
}

// initStore opens the configured store. The returned func releases it.
func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func()) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	db, err := repository.Open(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	store := repository.NewGormStore(db, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	return store, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true // the mobile client has no fixed origin
	c.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", handlers.RequestIDHeader}
	c.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	c.ExposeHeaders = []string{handlers.RequestIDHeader}
	return c
}

// serveAndDrain serves until shutdown, then waits for pending background
// work such as late notifications.
func serveAndDrain(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal, pending interface{ Wait() }) error {
	err := serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, signalCh)
	logger.Info("draining background work")
	pending.Wait()
	return err
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
