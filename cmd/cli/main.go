package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelsud/webhook-engine/config"
	"github.com/marcelsud/webhook-engine/webhook"
	"github.com/marcelsud/webhook-engine/webhook/redis"
	"github.com/marcelsud/webhook-engine/webhook/signature"
)

/* cli registra um endpoint e publica um evento de teste.
 * Útil para exercitar o fluxo completo sem subir a API
 */

func main() {
	url := flag.String("url", "", "endpoint URL to register")
	eventType := flag.String("type", "payment.succeeded", "event type to publish")
	data := flag.String("data", `{"amount":1000,"currency":"usd"}`, "event data as JSON")
	flag.Parse()

	if *url == "" {
		fmt.Println("usage: cli -url https://example.com/hooks [-type payment.succeeded] [-data '{...}']")
		return
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx := context.Background()
	repo, err := redis.NewRepository(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(ctx)

	secret, err := signature.GenerateSecret(32)
	if err != nil {
		fmt.Println(err)
		return
	}

	registry := webhook.NewRegistry(repo, logger)
	endpoint, err := registry.Register(ctx, *url, secret.String(), true, "registered via cli")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("registered endpoint %s with secret %s\n", endpoint.ID, endpoint.Secret)

	sender := webhook.NewHTTPSender(
		time.Duration(cfg.DeliveryTimeoutMS)*time.Millisecond,
		cfg.ResponseBodyLimit,
	)
	deliverer := webhook.NewDeliverer(repo, repo, sender, cfg.ResponseBodyLimit, logger)
	dispatcher := webhook.NewDispatcher(deliverer, 1, 16, logger)
	dispatcher.Start(ctx)

	publisher := webhook.NewPublisher(repo, repo, dispatcher, cfg.MaxRetries, logger)
	if err := publisher.Publish(ctx, *eventType, []byte(*data)); err != nil {
		fmt.Println(err)
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("event published")
}
