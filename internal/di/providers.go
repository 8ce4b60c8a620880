package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
	"SignalGate/internal/handler/api"
	mid "SignalGate/internal/middleware"
	internalrepo "SignalGate/internal/repository"
	"SignalGate/internal/service/binance"
	"SignalGate/internal/service/exchange"
	svcmetrics "SignalGate/internal/service/metrics"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/internal/services/analytics"
	"SignalGate/internal/services/features"
	"SignalGate/internal/usecase"
	"SignalGate/pkg/cache"
	pkgch "SignalGate/pkg/clickhouse"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	"SignalGate/pkg/http/middleware"
	pkgkafka "SignalGate/pkg/kafka"
	"SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
	"SignalGate/pkg/queue"
	"SignalGate/pkg/server"
)

// ProvideLogger creates the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
}

// ProvideRegistry creates the process-wide Prometheus registry.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the domain metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.NewWithRegisterer(reg)
}

func ProvideAPIMetrics(reg *prometheus.Registry) *svcmetrics.APIMetrics {
	return svcmetrics.NewAPIMetrics(reg)
}

// ProvideRedisCache connects to Redis. It returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers a small in-process cache over Redis, or falls back to memory only.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemory(1000, 2*time.Second))
}

func ProvideStateStore(c cache.Service) repository.StateStore {
	return internalrepo.NewCacheStateStore(c, 24*time.Hour)
}

// ProvideAlertPublisher starts the producer side of the alert queue and routes
// the error digest of the logger into it. Nil without Redis.
func ProvideAlertPublisher(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) (repository.AlertPublisher, error) {
	if rc == nil {
		return nil, nil
	}
	pub, err := queue.NewRedisPublisher(log, rc.Client(), queue.WithKeyPrefix(cfg.Redis.AlertQueue))
	if err != nil {
		return nil, fmt.Errorf("alert publisher: %w", err)
	}
	log.AddCollector(&logger.CollectionConfig{
		TimeInterval:   time.Minute,
		CountThreshold: 100,
		Topic:          models.AlertLogDigest,
		Publisher:      pub,
	})
	return pub, nil
}

// ProvideAlertConsumer builds the alert workers. They are started by the app.
func ProvideAlertConsumer(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	jobs := append(usecase.NewAlertJobs(log), usecase.NewLogDigestJob(log))
	return queue.NewRedisConsumer(log, queue.QueueConfig{
		Workers:     2,
		RetryLimit:  3,
		RetryDelay:  5 * time.Second,
		PollTimeout: 2 * time.Second,
	}, rc.Client(), jobs, queue.WithKeyPrefix(cfg.Redis.AlertQueue))
}

// needsClickHouse reports whether any component reads or writes the telemetry table.
func needsClickHouse(cfg *config.Config) bool {
	switch cfg.Telemetry.Backend {
	case usecase.BackendClickHouse:
		return true
	case usecase.BackendKafka:
		return cfg.Kafka.Consumer.Enabled
	}
	return false
}

// ProvideClickHouseClient connects and ensures the database exists. Nil when unused.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !needsClickHouse(cfg) {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTelemetryStorage creates the telemetry table on the ClickHouse client.
func ProvideTelemetryStorage(client *pkgch.Client, cfg *config.Config) (repository.TelemetryStorage, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseTelemetryStorage(client.DB(), cfg.ClickHouse.Database+"."+cfg.Telemetry.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("telemetry table: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates the telemetry producer for the kafka backend.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, log *logger.Logger) (*pkgkafka.Producer, error) {
	if cfg.Telemetry.Backend != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(reg),
		pkgkafka.WithProducerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideTelemetryPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.TelemetryPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaTelemetryPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates the consumer that loads telemetry into ClickHouse.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, m repository.Metrics, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Telemetry.Backend != usecase.BackendKafka || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerMetrics(reg),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(telemetryHook(m, log.Named("telemetry_loader")))
	return consumer, nil
}

// telemetryHook times each handled record and logs failed loads.
func telemetryHook(m repository.Metrics, log *logger.Logger) pkgkafka.HookFuncs {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, _ string, _ kafka.Message, data []byte) (context.Context, []byte, error) {
			return pkgkafka.WithStartTime(ctx, time.Now()), data, nil
		},
		After: func(ctx context.Context, _ string, _ kafka.Message, err error) {
			if start, ok := pkgkafka.StartTime(ctx); ok && err == nil {
				m.RecordLatency("telemetry_load", time.Since(start).Seconds())
			}
		},
		Err: func(_ context.Context, topic string, km kafka.Message, err error) {
			log.Warn("telemetry load failed",
				logger.String("topic", topic),
				logger.Int("partition", km.Partition),
				logger.Int64("offset", km.Offset),
				logger.Error(err))
		},
	}
}

func ProvideTelemetryHandler(store repository.TelemetryStorage, m repository.Metrics, cfg *config.Config) *usecase.TelemetryHandler {
	if store == nil {
		return nil
	}
	return usecase.NewTelemetryHandler(cfg.Kafka.Topic, store, m)
}

func ProvideTelemetryFile(cfg *config.Config) (*internalrepo.FileTelemetrySink, error) {
	return internalrepo.NewFileTelemetrySink(cfg.Telemetry.FilePath)
}

// ProvideTelemetryProcessor fans each cycle record out to the file and the configured backend.
func ProvideTelemetryProcessor(
	file *internalrepo.FileTelemetrySink,
	pub repository.TelemetryPublisher,
	store repository.TelemetryStorage,
	m repository.Metrics,
	log *logger.Logger,
	cfg *config.Config,
) (*usecase.TelemetryProcessor, error) {
	// Storage fed by the kafka consumer is not a direct sink.
	if cfg.Telemetry.Backend != usecase.BackendClickHouse {
		store = nil
	}
	return usecase.NewTelemetryProcessor(file, pub, store, m, log, cfg.Telemetry.Backend)
}

// ProvideMarketStream creates the Binance websocket client.
func ProvideMarketStream(cfg *config.Config, m repository.Metrics, log *logger.Logger) *binance.Client {
	return binance.New(cfg.Stream.BaseURL,
		binance.WithLogger(log),
		binance.WithMetrics(m),
		binance.WithPingInterval(cfg.Stream.PingInterval),
		binance.WithReconnect(cfg.Stream.ReconnectDelay, cfg.Stream.MaxReconnectDelay, cfg.Stream.MaxReconnectAttempts),
		binance.WithEventBuffer(cfg.Stream.EventBuffer),
	)
}

func ProvideAggregator() *features.Aggregator {
	return features.NewAggregator()
}

// ProvidePipeline validates and optionally throttles events before the aggregator.
func ProvidePipeline(agg *features.Aggregator, m repository.Metrics, cfg *config.Config) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(agg, m,
		mid.WithMaxRPS(cfg.Stream.MaxRPS),
		mid.WithTransform(mid.UppercaseSymbols),
	)
}

func ProvidePaperAccount(cfg *config.Config) *exchange.PaperAccount {
	return exchange.NewPaperAccount(cfg.Trading.PaperBalances)
}

// ProvideExchangeClient creates the signed order client in live mode. Nil in paper mode.
func ProvideExchangeClient(cfg *config.Config, c cache.Service, log *logger.Logger) (*exchange.Client, error) {
	if !cfg.Trading.Live() {
		return nil, nil
	}
	return exchange.NewClient(
		cfg.Execution.BaseURL,
		cfg.Execution.APIKey,
		cfg.Execution.APISecret,
		xhttp.NewClient(xhttp.WithTimeout(cfg.Execution.Timeout)),
		exchange.WithLogger(log.Named("exchange")),
		exchange.WithRecvWindow(cfg.Execution.RecvWindow),
		exchange.WithBalanceCache(c, cfg.Execution.BalanceCacheTTL),
	)
}

// ProvideExecutor builds the order executor. Collaborator interfaces stay nil in paper mode.
func ProvideExecutor(
	cfg *config.Config,
	client *exchange.Client,
	paper *exchange.PaperAccount,
	alerts repository.AlertPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.TradeExecutor {
	var (
		orders   repository.OrderExecutor
		balances repository.BalanceProvider
	)
	if client != nil {
		orders, balances = client, client
	}
	return usecase.NewTradeExecutor(usecase.ExecutorConfig{
		Live:                cfg.Trading.Live(),
		PositionSizePercent: cfg.Trading.PositionSizePercent,
		MinQuantity:         cfg.Trading.MinQuantity,
		QuoteAssets:         cfg.Trading.QuoteAssets,
		OrderTimeout:        cfg.Execution.OrderTimeout,
		OrderRatePerSec:     cfg.Execution.OrderRatePerSec,
		OrderBurst:          cfg.Execution.OrderBurst,
	}, orders, balances, paper, ratelimit.New(), alerts, m, log.Named("executor"))
}

// ProvideDecisionLoops creates one loop per configured symbol.
func ProvideDecisionLoops(
	cfg *config.Config,
	agg *features.Aggregator,
	exec *usecase.TradeExecutor,
	proc *usecase.TelemetryProcessor,
	state repository.StateStore,
	m repository.Metrics,
	log *logger.Logger,
) []*usecase.DecisionLoop {
	loops := make([]*usecase.DecisionLoop, 0, len(cfg.Stream.Symbols))
	for _, sym := range cfg.Stream.Symbols {
		loops = append(loops, usecase.NewDecisionLoop(usecase.LoopConfig{
			Symbol:          sym,
			Mode:            cfg.Trading.Mode,
			Interval:        cfg.Trading.CycleInterval,
			BaseThreshold:   cfg.Trading.CoherenceThreshold,
			VoteThreshold:   cfg.Trading.VoteThreshold,
			RequiredVotes:   cfg.Trading.RequiredVotes,
			MaxCycles:       cfg.Trading.MaxCycles,
			ThresholdWindow: cfg.Trading.ThresholdWindow,
		}, agg, analytics.DefaultEnsemble(), exec, proc, state, m, log))
	}
	return loops
}

// ProvideEventCollector subscribes every symbol on every channel and drives the loops.
func ProvideEventCollector(
	cfg *config.Config,
	stream *binance.Client,
	pipe *mid.RealtimePipeline,
	loops []*usecase.DecisionLoop,
	alerts repository.AlertPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.EventCollector {
	c := usecase.NewEventCollector(stream, pipe,
		binance.StreamNames(cfg.Stream.Symbols, cfg.Stream.Channels), alerts, m, log)
	for _, l := range loops {
		c.Attach(l)
	}
	return c
}

func ProvideStatusHandler(
	cfg *config.Config,
	log *logger.Logger,
	collector *usecase.EventCollector,
	loops []*usecase.DecisionLoop,
	state repository.StateStore,
	store repository.TelemetryStorage,
	am *svcmetrics.APIMetrics,
) *api.StatusHandler {
	views := make([]api.LoopView, len(loops))
	for i, l := range loops {
		views[i] = l
	}
	return api.NewStatusHandler(log, cfg.Trading.Mode, collector, views, state, store, am)
}

// ProvideHTTPServer serves the status API and, when enabled, the metrics endpoint.
func ProvideHTTPServer(cfg *config.Config, h *api.StatusHandler, reg *prometheus.Registry, log *logger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path,
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			middleware.NewHTTPMetrics(reg)))
	}
	return xhttp.NewServer(h, log.Named("http"), opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	collector *usecase.EventCollector,
	loops []*usecase.DecisionLoop,
	proc *usecase.TelemetryProcessor,
	httpServer *xhttp.Server,
	alertConsumer *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	handler *usecase.TelemetryHandler,
	chClient *pkgch.Client,
	c cache.Service,
) *server.App {
	return server.New(server.Deps{
		Config:        cfg,
		Logger:        log,
		Collector:     collector,
		Loops:         loops,
		Processor:     proc,
		HTTP:          httpServer,
		AlertConsumer: alertConsumer,
		Consumer:      consumer,
		Handler:       handler,
		ClickHouse:    chClient,
		Cache:         c,
	})
}
