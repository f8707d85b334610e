package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ParcelHub/ShipCore/config"
	shipmentsapi "github.com/ParcelHub/ShipCore/internal/api/shipments_api"
	"github.com/ParcelHub/ShipCore/internal/broker/kafka"
	"github.com/ParcelHub/ShipCore/internal/cache/rediscache"
	"github.com/ParcelHub/ShipCore/internal/manifestsource"
	"github.com/ParcelHub/ShipCore/internal/manifestsource/partnerhttp"
	"github.com/ParcelHub/ShipCore/internal/services/ingest"
	"github.com/ParcelHub/ShipCore/internal/services/lifecycle"
	"github.com/ParcelHub/ShipCore/internal/services/promotion"
	"github.com/ParcelHub/ShipCore/internal/services/reconcile"
	"github.com/ParcelHub/ShipCore/internal/storage/pgshipment"
)

type shipAPIApp struct {
	ctx        context.Context
	cancel     context.CancelFunc
	opts       shipAPIOpts
	api        *shipmentsapi.ShipmentsAPI
	ingestSvc  *ingest.Service
	consumer   *kafka.Consumer
	closeDB    func()
	closeRedis func()
}

func mustBootstrapShipAPI() *shipAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config: %v", err))
	}

	httpAddr := cfg.ShipCore.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ShipCore.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ship-api"
	}
	scanTopic := cfg.Kafka.ShipmentScannedTopicName
	if scanTopic == "" {
		scanTopic = "shipment.scanned"
	}
	statusTopic := cfg.Kafka.StatusChangedTopicName
	if statusTopic == "" {
		statusTopic = "shipment.status_changed"
	}

	cacheTTL := time.Duration(cfg.ShipCore.CurrentStatusTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	staleAge := time.Duration(cfg.ShipCore.StaleAgeDays) * 24 * time.Hour
	chunkSize := cfg.ShipCore.BulkChunkSize

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, scanTopic, consumerGroup)

	lifecycleSvc := lifecycle.New(st, rc, cacheTTL).
		WithProducer(producer, statusTopic)

	sources := []manifestsource.Source{}
	if cfg.ShipCore.PartnerLookupBaseURL != "" {
		sources = append(sources, partnerhttp.New(
			cfg.ShipCore.PartnerLookupBaseURL,
			cfg.ShipCore.PartnerLookupAPIKey,
			cfg.ShipCore.PartnerLookupCodePrefix,
		))
	}
	sources = append(sources,
		manifestsource.NewBranchSource(st),
		manifestsource.NewCentralSource(st),
	)
	lookup := manifestsource.NewChain(sources...)

	ingestSvc := ingest.New(st, lifecycleSvc, lookup)
	promotionSvc := promotion.New(st)
	reconcileSvc := reconcile.New(st).
		WithSettings(staleAge, chunkSize).
		WithProducer(producer, statusTopic).
		WithCacheInvalidator(rc)

	api := shipmentsapi.New(ingestSvc, lifecycleSvc, promotionSvc, reconcileSvc)
	if cfg.ShipCore.IngestRateLimitPerMinute > 0 {
		api = api.WithRateLimiter(rl, int64(cfg.ShipCore.IngestRateLimitPerMinute))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &shipAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: shipAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         scanTopic,
			consumerGroup: consumerGroup,
		},
		api:       api,
		ingestSvc: ingestSvc,
		consumer:  consumer,
		closeDB:   st.Close,
		closeRedis: func() {
			_ = rc.Close()
			_ = rl.Close()
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgshipment.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipment.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *shipAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeRedis != nil {
		a.closeRedis()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *shipAPIApp) Run() error {
	return runShipAPI(a.ctx, a.opts, a.api, a.ingestSvc, a.consumer)
}
