package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"SignalGate/internal/usecase"
	"SignalGate/pkg/cache"
	pkgch "SignalGate/pkg/clickhouse"
	"SignalGate/pkg/config"
	xhttp "SignalGate/pkg/http"
	pkgkafka "SignalGate/pkg/kafka"
	"SignalGate/pkg/logger"
	"SignalGate/pkg/queue"
)

// Deps are the components the App drives. Optional ones may be nil.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Collector     *usecase.EventCollector
	Loops         []*usecase.DecisionLoop
	Processor     *usecase.TelemetryProcessor
	HTTP          *xhttp.Server
	AlertConsumer *queue.RedisQueue
	Consumer      *pkgkafka.Consumer
	Handler       *usecase.TelemetryHandler
	ClickHouse    *pkgch.Client
	Cache         cache.Service
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	log *logger.Logger
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	return &App{Deps: d, log: d.Logger.Named("app")}
}

// Run starts every component and blocks until a signal arrives or all loops
// reach their cycle cap.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.HTTP.Start(); err != nil {
		return err
	}

	if a.AlertConsumer != nil {
		if err := a.AlertConsumer.Start(); err != nil {
			a.log.Warn("alert consumer start failed", logger.Error(err))
		}
	}
	if a.Consumer != nil && a.Handler != nil {
		a.Consumer.RegisterHandler(a.Handler)
		if err := a.Consumer.Start(); err != nil {
			a.log.Warn("kafka consumer start failed", logger.Error(err))
		} else {
			a.log.Info("telemetry loader started", logger.String("topic", a.Handler.Topic()))
		}
	}

	var wg sync.WaitGroup
	for _, l := range a.Loops {
		wg.Add(1)
		go func(l *usecase.DecisionLoop) {
			defer wg.Done()
			l.Run(runCtx)
		}(l)
	}
	loopsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(loopsDone)
	}()

	if err := a.Collector.Start(runCtx); err != nil {
		a.log.Error("market stream connect failed", logger.Error(err))
		cancel()
		return errors.Join(err, a.shutdown())
	}
	a.log.Info("signalgate started",
		logger.String("mode", a.Config.Trading.Mode),
		logger.Strings("symbols", a.Config.Stream.Symbols),
		logger.String("telemetry_backend", a.Config.Telemetry.Backend),
	)

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case <-loopsDone:
		a.log.Info("all decision loops finished")
	}
	cancel()
	return a.shutdown()
}

// shutdown stops producers before consumers and flushes sinks before closing clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", logger.Error(err))
		errs = append(errs, err)
	}

	for _, l := range a.Loops {
		if !l.Drain(ctx) {
			a.log.Warn("abandoned in-flight cycle, trading lock left to expire", logger.String("symbol", l.Symbol()))
		}
	}

	if err := a.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
		errs = append(errs, err)
	}

	if a.Consumer != nil && a.Handler != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.AlertConsumer != nil {
		if err := a.AlertConsumer.Stop(ctx); err != nil {
			a.log.Warn("alert consumer stop error", logger.Error(err))
		}
	}

	if err := a.Processor.Close(); err != nil {
		a.log.Error("telemetry close error", logger.Error(err))
		errs = append(errs, err)
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", logger.Error(err))
		}
	}

	// The digest flush publishes through Redis, so it goes before the cache closes.
	a.log.RemoveCollector()
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.log.Warn("cache close error", logger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
