// cmd/membership-api/main.go
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

	"go.uber.org/zap"

	"davel-library/internal/api"
	"davel-library/internal/common/camunda"
	"davel-library/internal/common/config"
	"davel-library/internal/common/database"
	commonhttp "davel-library/internal/common/http"
	"davel-library/internal/common/logger"
	"davel-library/internal/common/observability"
	"davel-library/internal/membership/draft"
	"davel-library/internal/membership/intake"
	"davel-library/internal/membership/submission"
	"davel-library/internal/membership/wizard"
)

const sweepInterval = time.Minute

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting membership API...", zap.String("address", cfg.Server.Address))

	obs, err := observability.New("membership-api")
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if err := database.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema setup failed", zap.Error(err))
	}

	checks := map[string]api.ReadinessCheck{
		"postgres": pg.Ping,
	}

	// --- Draft store ---
	var store draft.Store
	switch cfg.Wizard.DraftStore {
	case "redis":
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()

		store = draft.NewRedisStore(rc.Client, time.Duration(cfg.Wizard.DraftTTL)*time.Hour)
		checks["redis"] = rc.Ping
	default:
		zapLog.Warn("drafts are kept in memory and lost on restart")
		store = draft.NewMemoryStore()
	}

	// --- Zeebe (optional) ---
	var starter intake.ProcessStarter
	if cfg.Camunda.Enabled {
		zc, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		if err != nil {
			// Applications are still stored; the process can be started later.
			zapLog.Error("zeebe unavailable, membership processes will not start", zap.Error(err))
		} else {
			defer zc.Close()
			starter = zc
			checks["zeebe"] = zc.HealthCheck
		}
	}

	intakeService := intake.NewService(intake.Config{ProcessID: cfg.Camunda.ProcessID}, pg.DB, starter, log)

	// --- Wizard sessions ---
	submitClient := commonhttp.NewClient(config.GetDuration(cfg.Wizard.SubmitTimeout))
	fee := wizard.RandomFee(cfg.Wizard.FeeMin, cfg.Wizard.FeeMax)

	factory := func(ctx context.Context, sessionID string, notifier wizard.Notifier) (*wizard.Wizard, error) {
		sessionLog := log.WithFields(map[string]interface{}{"sessionId": sessionID})
		return wizard.New(ctx, wizard.Options{
			Persistence:       draft.New(store, cfg.Wizard.StorageKey+":"+sessionID, sessionLog),
			Submitter:         submission.NewPipeline(cfg.Wizard.SubmitURL, submitClient, sessionLog),
			Notifier:          notifier,
			Fee:               fee,
			ConfirmationDelay: config.GetDuration(cfg.Wizard.ConfirmationDelay),
			Logger:            sessionLog,
		})
	}
	sessions := api.NewSessionManager(factory, time.Duration(cfg.Wizard.SessionIdle)*time.Minute, log)
	go sessions.Run(ctx, sweepInterval)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewServer(sessions, intakeService, checks, obs, log),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("observability shutdown failed", zap.Error(err))
	}

	zapLog.Info("Membership API stopped")
}
