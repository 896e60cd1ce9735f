package appbootstrap

import (
	"context"
	"fmt"
	"time"

	"oblik/config"
	"oblik/core/store"
	"oblik/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Run opens the database, applies migrations and serves until ctx is done.
func Run(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return err
	}
	version, err := store.SchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	logger.Info("database ready", zap.String("driver", cfg.DBDriver), zap.Int64("schema_version", version))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt := composeRuntime(cfg, db, logger, reg)

	if err := rt.reminders.StartWithContext(ctx); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- rt.server.ListenAndServe() }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if stopErr := rt.reminders.StopWithContext(shutdownCtx); stopErr != nil {
		logger.Errorf("stop reminders: %v", stopErr)
	}
	if shutdownErr := rt.server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Errorf("http shutdown: %v", shutdownErr)
	}
	return err
}
