package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelsud/webhook-engine/config"
	"github.com/marcelsud/webhook-engine/internal/http/chi"
	"github.com/marcelsud/webhook-engine/metrics"
	"github.com/marcelsud/webhook-engine/seed"
	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/memory"
	"github.com/marcelsud/webhook-engine/webhook/postgres"
	"github.com/marcelsud/webhook-engine/webhook/redis"
)

const TIMEOUT = 30 * time.Second

/*
 * main amarra todas as camadas: armazenamento, lógica de negócio e HTTP.
 * As importações devem ser feitas apenas em uma direção: para baixo
 */

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(ctx)

	registry := webhook.NewRegistry(repo, logger)
	events := webhook.NewService(repo, repo, logger)

	if cfg.SeedFile != "" {
		loader := seed.NewLoader(registry, logger)
		if err := loader.Load(ctx, cfg.SeedFile); err != nil {
			fmt.Println(err)
			return
		}
	}

	sender := webhook.NewHTTPSender(
		time.Duration(cfg.DeliveryTimeoutMS)*time.Millisecond,
		cfg.ResponseBodyLimit,
	)
	deliverer := webhook.NewDeliverer(repo, repo, sender, cfg.ResponseBodyLimit, logger)

	dispatcher := webhook.NewDispatcher(deliverer, cfg.WorkerCount, cfg.QueueSize, logger)
	dispatcher.Start(ctx)

	publisher := webhook.NewPublisher(repo, repo, dispatcher, cfg.MaxRetries, logger)

	retrySweeper := webhook.NewRetrySweeper(
		repo, dispatcher,
		time.Duration(cfg.RetrySweepSecs)*time.Second,
		logger,
	)
	go retrySweeper.Run(ctx)

	retentionSweeper := webhook.NewRetentionSweeper(
		repo,
		time.Duration(cfg.RetentionDays)*24*time.Hour,
		webhook.DefaultRetentionSweepInterval,
		logger,
	)
	go retentionSweeper.Run(ctx)

	exporter, err := metrics.NewOTelExporter(metrics.NewStoreCollector(repo))
	if err != nil {
		fmt.Println(err)
		return
	}

	r := chi.Handlers(ctx, registry, events, publisher, exporter.ServeHTTP())
	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	fmt.Printf("Listening on port %s\n", cfg.Port)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
		return
	}
	err = <-errShutdown
	if err != nil {
		fmt.Println(err)
		return
	}

	// Let in-flight deliveries finish before the store goes away
	drainCtx, cancel := context.WithTimeout(context.Background(), TIMEOUT)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		fmt.Println(err)
	}
	if err := exporter.Shutdown(drainCtx); err != nil {
		fmt.Println(err)
	}
}

// newRepository picks the storage backend from config
func newRepository(ctx context.Context, cfg *config.Config) (webhook.Repository, error) {
	switch cfg.Store {
	case "redis":
		return redis.NewRepository(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	case "postgres":
		repo, err := postgres.NewRepository(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.CreateTables(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case "memory":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		fmt.Printf("\nShutting down server...\n")
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("Forcing closing the server")
	}
}
