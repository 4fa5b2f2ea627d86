package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Qaquka/aatm-qaquka/internal/config"
	apphttp "github.com/Qaquka/aatm-qaquka/internal/http"
	"github.com/Qaquka/aatm-qaquka/internal/jobs"
	"github.com/Qaquka/aatm-qaquka/internal/mediainfo"
	"github.com/Qaquka/aatm-qaquka/internal/packager"
	"github.com/Qaquka/aatm-qaquka/internal/process"
	"github.com/Qaquka/aatm-qaquka/internal/push"
	"github.com/Qaquka/aatm-qaquka/internal/push/archive"
	"github.com/Qaquka/aatm-qaquka/internal/push/deluge"
	"github.com/Qaquka/aatm-qaquka/internal/push/lacale"
	"github.com/Qaquka/aatm-qaquka/internal/push/qbit"
	"github.com/Qaquka/aatm-qaquka/internal/push/transmission"
	"github.com/Qaquka/aatm-qaquka/internal/service"
	"github.com/Qaquka/aatm-qaquka/internal/settings"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP console (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFlag)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := settings.NewStore(cfg.SettingsPath(), settings.Defaults())
	if err := store.Init(); err != nil {
		logger.Fatalf("init settings: %v", err)
	}

	historyRepo, closeHistory, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Fatalf("setup history: %v", err)
	}
	defer closeHistory()
	history := service.NewHistoryService(historyRepo)

	auth, err := service.NewAuthService(service.AuthConfig{
		PasswordHash: cfg.Auth.PasswordHash,
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
	})
	if err != nil {
		logger.Fatalf("setup auth: %v", err)
	}
	if !auth.Enabled() {
		logger.Warn("auth.passwordhash not set, the API is unauthenticated")
	}

	runner := process.NewRunner()
	if !runner.Available(ctx, cfg.Tools.Mktorrent, "-h") {
		logger.Warnf("%s not found, packaging jobs will fail", cfg.Tools.Mktorrent)
	}
	inspector := mediainfo.NewInspector(cfg.Tools.Mediainfo, runner)

	registry := jobs.NewRegistry(jobs.RegistryConfig{Retention: cfg.Jobs.Retention, Logger: logger})
	broadcaster := jobs.NewBroadcaster(registry, jobs.DefaultLogTail)

	manager := packager.NewManager(packager.Config{
		MktorrentBinary: cfg.Tools.Mktorrent,
		MaxConcurrent:   cfg.Jobs.MaxConcurrent,
		PackageTimeout:  cfg.Timeouts.Process,
		InspectTimeout:  cfg.Timeouts.Inspect,
		Logger:          logger,
	}, store, registry, broadcaster, runner, inspector, history)
	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start packager: %v", err)
	}

	qbitClient := qbit.New(store, qbit.NewSession())
	lacaleClient := lacale.New(store)
	archiveClient := archive.New(store, archive.S3Factory, logger)
	targets := push.NewRegistry(
		qbitClient,
		lacaleClient,
		transmission.New(store),
		deluge.New(store),
		archiveClient,
	)
	pushes := push.NewService(push.ServiceConfig{Timeout: cfg.Timeouts.Request, Logger: logger}, targets, store, history)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Dependencies{
		Settings:       store,
		Packager:       manager,
		Jobs:           registry,
		Broadcaster:    broadcaster,
		Pushes:         pushes,
		Preview:        lacaleClient,
		Categories:     qbitClient,
		Archive:        archiveClient,
		History:        history,
		Auth:           auth,
		Logger:         logger,
		PublicDir:      cfg.Server.PublicDir,
		RequestTimeout: cfg.Timeouts.Request,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
	return nil
}
