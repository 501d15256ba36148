package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pvaldebenito/scanbox/config"
	"github.com/pvaldebenito/scanbox/internal/broker/kafka"
	"github.com/pvaldebenito/scanbox/internal/cache/rediscache"
	"github.com/pvaldebenito/scanbox/internal/integrations/meli"
	syncsvc "github.com/pvaldebenito/scanbox/internal/services/sync"
)

type workerFactories struct {
	newMarketClient func(cfg *config.Config) syncsvc.MarketClient
	newProducer     func(cfg *config.Config) syncsvc.Producer
	newRateLimiter  func(cfg *config.Config) syncsvc.RateLimiter
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newMarketClient: func(cfg *config.Config) syncsvc.MarketClient {
			tokens := meli.NewTokenStore(cfg.Meli.BaseURL, cfg.Meli.TokenFile)
			return meli.New(cfg.Meli.BaseURL, tokens)
		},
		newProducer: func(cfg *config.Config) syncsvc.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) syncsvc.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
	}
}

func newSyncer(cfg *config.Config, f workerFactories) *syncsvc.Syncer {
	topic := cfg.Kafka.PackageSyncedTopicName
	if topic == "" {
		topic = "paquetes.synced"
	}

	interval := time.Duration(cfg.ScanBox.WorkerSyncIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	days := cfg.ScanBox.WorkerSyncDays
	if days <= 0 {
		days = 30
	}
	pageSize := cfg.ScanBox.WorkerPageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	concurrency := cfg.ScanBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 12
	}
	rlPerMin := int64(cfg.ScanBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	return syncsvc.New(f.newMarketClient(cfg), f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(interval, days, pageSize, concurrency, rlPerMin)
}

func RunSyncWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	return newSyncer(cfg, f).Run(ctx)
}
