package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/quillos/kernel/internal/api/http"
	"github.com/quillos/kernel/internal/config"
	"github.com/quillos/kernel/internal/kernel"
	"github.com/quillos/kernel/internal/logging"
	"github.com/quillos/kernel/internal/monitoring"
	"github.com/quillos/kernel/internal/sched"
)

func main() {
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level

	logger, err := logging.New(logCfg)
	if err != nil {
		logger = logging.NewDefault()
	}
	defer func() {
		_ = logger.Sync()
	}()

	metrics := monitoring.NewMetrics()
	k := kernel.New(cfg, logger, metrics)

	logger.Info("kerneld starting",
		zap.String("boot_id", k.BootID()),
		zap.String("port", cfg.Server.Port))

	// Root process so the syscall debug endpoint has a running task.
	pid, task := k.CreateProcess(sched.PriorityNormal)
	k.Scheduler().Schedule()
	logger.Info("root process ready",
		zap.Uint64("pid", pid),
		zap.Uint64("task", uint64(task.ID())))

	// Timer: one tick per period, matching the 1000 Hz contract.
	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / sched.TimerFrequencyHz)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				k.Tick()
			case <-tickerDone:
				return
			}
		}
	}()

	server := api.NewServer(cfg, k, metrics, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	close(tickerDone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}

	logger.Info("kerneld stopped", zap.String("boot_id", k.BootID()))
}
