// Command workers runs the periodic jobs: deadline reminders for incoming
// documents and the nightly search reindex.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"document-portal/portal-backend/internal/app"
	"document-portal/portal-backend/internal/config"
	"document-portal/portal-backend/internal/jobs"
	"document-portal/portal-backend/pkg/logger"
)

func main() {
	once := flag.String("once", "", "run the named job immediately and exit")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogger(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log = log.Named("workers")

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	portal, err := app.New(ctx, cfg, log, false)
	if err != nil {
		log.Fatal("Failed to start", zap.Error(err))
	}
	defer portal.Close()

	list := workerJobs(portal, cfg.Workers, log)
	if *once != "" {
		for _, job := range list {
			if job.Name == *once {
				manager := jobs.NewManager(log, portal.Metrics)
				if err := manager.RunNow(ctx, job); err != nil {
					log.Fatal("Job failed", zap.String("job", job.Name), zap.Error(err))
				}
				return
			}
		}
		log.Fatal("Unknown job", zap.String("job", *once))
	}

	manager := jobs.NewManager(log, portal.Metrics)
	for _, job := range list {
		if err := manager.Add(job); err != nil {
			log.Fatal("Failed to schedule job", zap.Error(err))
		}
	}
	if err := manager.Start(); err != nil {
		log.Fatal("Failed to start job manager", zap.Error(err))
	}

	<-ctx.Done()
	log.Info("Workers shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	manager.Stop(stopCtx)
}
