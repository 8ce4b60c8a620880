package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	drepo "SignalGate/internal/domain/repository"
	"SignalGate/pkg/logger"
)

// Telemetry backends.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// TelemetryProcessor writes every record to the local file and forwards it
// to the configured backend. Only the file write decides the returned error.
type TelemetryProcessor struct {
	file    drepo.TelemetrySink
	pub     drepo.TelemetryPublisher
	store   drepo.TelemetryStorage
	metrics drepo.Metrics
	log     *logger.Logger
	backend string
}

// NewTelemetryProcessor creates a new TelemetryProcessor instance.
func NewTelemetryProcessor(
	file drepo.TelemetrySink,
	pub drepo.TelemetryPublisher,
	store drepo.TelemetryStorage,
	metrics drepo.Metrics,
	log *logger.Logger,
	backend string,
) (*TelemetryProcessor, error) {
	if file == nil {
		return nil, fmt.Errorf("telemetry file sink is required")
	}
	switch backend {
	case "", BackendNone:
		backend = BackendNone
	case BackendKafka:
		if pub == nil {
			return nil, fmt.Errorf("kafka backend without publisher")
		}
	case BackendClickHouse:
		if store == nil {
			return nil, fmt.Errorf("clickhouse backend without storage")
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s", backend)
	}
	return &TelemetryProcessor{
		file:    file,
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     log.Named("telemetry"),
		backend: backend,
	}, nil
}

func (p *TelemetryProcessor) Write(ctx context.Context, rec models.TelemetryRecord) error {
	start := time.Now()
	if err := p.file.Write(ctx, rec); err != nil {
		p.metrics.RecordError("telemetry_file")
		return fmt.Errorf("write telemetry: %w", err)
	}
	p.metrics.RecordMessageSent("file", rec.Symbol)

	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.Publish(ctx, rec)
	case BackendClickHouse:
		err = p.store.Store(ctx, rec)
	default:
		p.metrics.RecordLatency("telemetry", time.Since(start).Seconds())
		return nil
	}

	if err != nil {
		p.metrics.RecordError("telemetry_" + p.backend)
		p.log.Warn("telemetry backend write failed",
			logger.String("backend", p.backend),
			logger.String("symbol", rec.Symbol),
			logger.Int64("cycle", rec.Cycle),
			logger.Error(err))
		return nil
	}
	p.metrics.RecordMessageSent(p.backend, rec.Symbol)
	p.metrics.RecordLatency("telemetry", time.Since(start).Seconds())
	return nil
}

// Close closes the file and backend.
func (p *TelemetryProcessor) Close() error {
	var errs []error
	if p.pub != nil {
		errs = append(errs, p.pub.Close())
	}
	if p.store != nil {
		errs = append(errs, p.store.Close())
	}
	errs = append(errs, p.file.Close())
	return errors.Join(errs...)
}

var _ drepo.TelemetrySink = (*TelemetryProcessor)(nil)
