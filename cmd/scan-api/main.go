package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pvaldebenito/scanbox/config"
	"github.com/pvaldebenito/scanbox/internal/api/scansapi"
	"github.com/pvaldebenito/scanbox/internal/broker/kafka"
	"github.com/pvaldebenito/scanbox/internal/cache/rediscache"
	"github.com/pvaldebenito/scanbox/internal/integrations/meli"
	"github.com/pvaldebenito/scanbox/internal/services/scans"
	"github.com/pvaldebenito/scanbox/internal/storage/blobstore"
)

func main() {
	// credenciales MELI_* desde un .env junto al binario, si existe
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("error al leer el config, %v", err))
	}

	httpAddr := cfg.ScanBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ScanBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "scan-api"
	}
	topic := cfg.Kafka.PackageSyncedTopicName
	if topic == "" {
		topic = "paquetes.synced"
	}
	cacheTTL := time.Duration(cfg.ScanBox.RecordTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	st := mustOpenPostgresWithRetry(postgresConnString(cfg), 60*time.Second)
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	tokens := meli.NewTokenStore(cfg.Meli.BaseURL, cfg.Meli.TokenFile)
	market := meli.New(cfg.Meli.BaseURL, tokens)

	blob := blobstore.New(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.ServiceKey)

	svc := scans.New(st, market, blob, rc, cacheTTL, nil)
	api := scansapi.New(svc, market, nil)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runScanAPI(ctx, scanAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   os.Getenv("swaggerPath"),
		topic:         topic,
		consumerGroup: consumerGroup,
	}, api, svc, consumer); err != nil && err != context.Canceled {
		panic(err)
	}
}
