package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	drepo "SignalGate/internal/domain/repository"
	pkgkafka "SignalGate/pkg/kafka"
)

// TelemetryHandler consumes telemetry records from Kafka and stores them.
type TelemetryHandler struct {
	topic   string
	storage drepo.TelemetryStorage
	metrics drepo.Metrics
}

func NewTelemetryHandler(topic string, storage drepo.TelemetryStorage, metrics drepo.Metrics) *TelemetryHandler {
	return &TelemetryHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *TelemetryHandler) Topic() string { return h.topic }

func (h *TelemetryHandler) Handle(ctx context.Context, b []byte) error {
	var rec models.TelemetryRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if rec.Symbol == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("telemetry record without symbol")
	}
	if !rec.Ts.IsZero() {
		h.metrics.RecordLatency("telemetry_e2e", time.Since(rec.Ts).Seconds())
	}

	start := time.Now()
	err := h.storage.Store(ctx, rec)
	h.metrics.RecordLatency("ch_insert", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordMessageSent(BackendClickHouse, rec.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*TelemetryHandler)(nil)
