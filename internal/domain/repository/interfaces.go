package repository

import (
	"context"
	"time"

	"SignalGate/internal/domain/models"
)

// MarketStream is the multiplexed market-data connection. Events are delivered
// on a single ordered channel for the lifetime of the stream.
type MarketStream interface {
	Connect(ctx context.Context, streams []string) error
	Subscribe(streams []string) error
	Unsubscribe(streams []string) error
	ListSubscriptions() error
	Subscriptions() []string
	Events() <-chan models.StreamEvent
	IsConnected() bool
	Close() error
}

// TelemetrySink receives the single per-cycle telemetry record.
type TelemetrySink interface {
	Write(ctx context.Context, rec models.TelemetryRecord) error
	Close() error
}

type TelemetryPublisher interface {
	Publish(ctx context.Context, rec models.TelemetryRecord) error
	Close() error
}

type TelemetryStorage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, rec models.TelemetryRecord) error
	StoreBatch(ctx context.Context, recs []models.TelemetryRecord) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.TelemetryRecord, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// StateStore keeps the latest per-symbol state and the cross-process trading lock.
type StateStore interface {
	SaveState(ctx context.Context, st models.SymbolState) error
	LoadState(ctx context.Context, symbol string) (models.SymbolState, error)
	AcquireLock(ctx context.Context, symbol string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, symbol string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, symbol string) error
}

// OrderExecutor is the external order-placement collaborator.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResponse, error)
}

// BalanceProvider returns the free balance of an asset.
type BalanceProvider interface {
	Balance(ctx context.Context, asset string) (float64, error)
}

type AlertPublisher interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type Metrics interface {
	RecordFrame(kind string)
	RecordError(kind string)
	RecordReconnect(outcome string)
	RecordSubscriptions(n int)
	RecordLastPrice(symbol string, price float64)
	RecordSignal(symbol string, lambda, coherence, threshold float64)
	RecordDecision(symbol, action, reason string)
	RecordOrder(symbol, status string)
	RecordMessageSent(backend, symbol string)
	RecordLatency(op string, seconds float64)
}
