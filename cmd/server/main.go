// cmd/server wires the task execution substrate together and runs it as a
// long-lived process: dispatcher pool + watchdog ticker. No HTTP admin
// surface is started here (out of scope per spec.md §1); the control and
// dispatcher surfaces are library APIs an external admin process would call.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/clipforge/pipeline/internal/config"
	appdb "github.com/clipforge/pipeline/internal/db"
	"github.com/clipforge/pipeline/internal/dispatcher"
	"github.com/clipforge/pipeline/internal/executor"
	"github.com/clipforge/pipeline/internal/notifier"
	"github.com/clipforge/pipeline/internal/platform/logger"
	"github.com/clipforge/pipeline/internal/platform/object"
	"github.com/clipforge/pipeline/internal/repos"
	"github.com/clipforge/pipeline/internal/semaphore"
	"github.com/clipforge/pipeline/internal/tools"
	"github.com/clipforge/pipeline/internal/tools/builtin"
	"github.com/clipforge/pipeline/internal/watchdog"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load(log)

	pg, err := appdb.NewPostgresService(cfg, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", "error", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("failed to migrate schema", "error", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	objStore, err := object.New(ctx, cfg.ObjectStorageBucket, cfg.ObjectStorageEmulatorURL, log)
	if err != nil {
		log.Fatal("failed to initialize object store", "error", err)
	}

	taskRepo := repos.NewPublishTaskRepo(pg.DB(), log)
	stepRepo := repos.NewStepResultRepo(pg.DB(), log)
	presetRepo := repos.NewPresetRepo(pg.DB(), log)
	candidateRepo := repos.NewCandidateRepo(pg.DB(), log)

	reg := tools.NewRegistry()
	if err := builtin.RegisterAll(reg); err != nil {
		log.Fatal("failed to register builtin tools", "error", err)
	}

	sem := semaphore.New(redisClient, log)

	exec := &executor.Executor{
		Tasks:                taskRepo,
		Steps:                stepRepo,
		Presets:              presetRepo,
		Candidates:           candidateRepo,
		Registry:             reg,
		Semaphore:            sem,
		Objects:              objStore,
		Log:                  log,
		SemaphoreTTL:         cfg.SemaphoreDefaultTTL,
		SemaphoreWaitTimeout: cfg.SemaphoreWaitTimeout,
	}

	notify := notifier.New(nil, log)

	disp := &dispatcher.Dispatcher{
		Tasks:         taskRepo,
		Steps:         stepRepo,
		Executor:      exec,
		Notify:        notify,
		Log:           log,
		Concurrency:   cfg.DispatcherConcurrency,
		HardWallClock: cfg.DispatcherHardWallClock,
		SoftWallClock: cfg.DispatcherSoftWallClock,
	}
	disp.Start(ctx)

	wd := &watchdog.Watchdog{
		Tasks:            taskRepo,
		Steps:            stepRepo,
		Notify:           notify,
		Log:              log,
		Interval:         cfg.WatchdogInterval,
		MaxStepWallClock: cfg.WatchdogStaleStep,
		Grace:            cfg.WatchdogStaleStep,
		QueueSLA:         cfg.WatchdogQueueSLA,
	}
	go wd.Start(ctx)

	log.Info("pipeline orchestrator running", "concurrency", cfg.DispatcherConcurrency)
	<-ctx.Done()
	log.Info("shutdown signal received, draining")
}
