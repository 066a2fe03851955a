package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rostilos/CodeCrow-sub008/consts"
	"github.com/rostilos/CodeCrow-sub008/internal/api/router"
	"github.com/rostilos/CodeCrow-sub008/internal/config"
	"github.com/rostilos/CodeCrow-sub008/internal/database"
	"github.com/rostilos/CodeCrow-sub008/internal/notification"
	"github.com/rostilos/CodeCrow-sub008/internal/orchestrator"
	"github.com/rostilos/CodeCrow-sub008/internal/server"
	"github.com/rostilos/CodeCrow-sub008/internal/store"
	"github.com/rostilos/CodeCrow-sub008/pkg/logger"
	"github.com/rostilos/CodeCrow-sub008/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CodeCrow server",
	Long: `Start the HTTP server that receives VCS webhooks and serves the
authenticated analysis API. Configured projects are synced into the database
on startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().Bool("debug", false, "enable debug mode")
}

func runServe(cmd *cobra.Command, args []string) error {
	consts.SetStartedAt(time.Now())

	cfg, err := loadValidConfig(func(c *config.Config) {
		if host, _ := cmd.Flags().GetString("host"); host != "" {
			c.Server.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			c.Server.Port = port
		}
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			c.Server.Debug = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting CodeCrow", zap.String("version", Version))

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown telemetry", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize analysis runtime", zap.Error(err))
	}
	defer database.Close()

	logger.Info("Analysis runtime ready",
		zap.String("instance_id", rt.locks.Owner()),
		zap.Strings("providers", rt.providers.Names()),
		zap.Int("projects", len(cfg.Projects)),
	)

	cleanup := store.NewLockCleanupService(rt.store.Lock(), cfg.Analysis.LockCleanupSchedule)
	if err := cleanup.Start(); err != nil {
		logger.Warn("Failed to start lock cleanup service", zap.Error(err))
	} else {
		defer cleanup.Stop()
	}

	dispatcherCfg := &orchestrator.DispatcherConfig{
		MaxWorkers: cfg.Server.Workers,
		QueueSize:  cfg.Server.QueueSize,
	}
	if notifier := notification.NewManager(cfg.Notifications); notifier.IsEnabled() {
		dispatcherCfg.OnDone = notifier.OnResult
		logger.Info("Analysis notifications enabled", zap.String("channel", string(cfg.Notifications.Channel)))
	}
	dispatcher := orchestrator.NewDispatcher(ctx, rt.orchestrator, dispatcherCfg)
	dispatcher.Start()
	defer dispatcher.Stop()

	srv := server.New(cfg, router.Deps{
		Store:     rt.store,
		Providers: rt.providers,
		Runner:    rt.orchestrator,
		Pushes:    rt.orchestrator,
		Queue:     dispatcher,
		Metrics:   tel.MetricsHandler(),
	})
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	logger.Info("CodeCrow server is running", zap.String("address", cfg.Server.Address()))
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty, the analysis API is disabled; only webhooks are served")
	}

	srv.WaitForShutdown()

	logger.Info("CodeCrow stopped")
	return nil
}
