package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
	pkgkafka "SignalGate/pkg/kafka"
)

const telemetryColumns = "ts, cycle, symbol, lambda, coherence, applied_threshold, base_threshold, votes, required_votes, direction, decision, reason, execution_status, quantity"

// ClickHouseTelemetryStorage implements TelemetryStorage for ClickHouse.
type ClickHouseTelemetryStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseTelemetryStorage creates ClickHouse storage over an open pool.
func NewClickHouseTelemetryStorage(db *sql.DB, table string) repository.TelemetryStorage {
	return &ClickHouseTelemetryStorage{db: db, table: table}
}

func telemetryDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts DateTime64(3, 'UTC'),
	cycle Int64,
	symbol LowCardinality(String),
	lambda Float64,
	coherence Float64,
	applied_threshold Float64,
	base_threshold Float64,
	votes UInt8,
	required_votes UInt8,
	direction LowCardinality(String),
	decision LowCardinality(String),
	reason LowCardinality(String),
	execution_status LowCardinality(String),
	quantity String
) ENGINE = MergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (symbol, ts, cycle)`, table)
}

func (s *ClickHouseTelemetryStorage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, telemetryDDL(s.table)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseTelemetryStorage) Store(ctx context.Context, rec models.TelemetryRecord) error {
	return s.StoreBatch(ctx, []models.TelemetryRecord{rec})
}

// StoreBatch inserts records as multi-row VALUES in chunks.
func (s *ClickHouseTelemetryStorage) StoreBatch(ctx context.Context, recs []models.TelemetryRecord) error {
	const chunkSize = 1000
	for start := 0; start < len(recs); start += chunkSize {
		end := min(start+chunkSize, len(recs))
		q, args := insertTelemetry(s.table, recs[start:end])
		if len(args) == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert telemetry: %w", err)
		}
	}
	return nil
}

func insertTelemetry(table string, recs []models.TelemetryRecord) (string, []interface{}) {
	values := make([]string, 0, len(recs))
	args := make([]interface{}, 0, len(recs)*14)
	for _, r := range recs {
		if r.Symbol == "" {
			continue
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.Ts.UTC(),
			r.Cycle,
			r.Symbol,
			r.Lambda,
			r.Coherence,
			r.AppliedThreshold,
			r.BaseThreshold,
			uint8(r.Votes),
			uint8(r.RequiredVotes),
			string(r.Direction),
			string(r.Decision),
			r.Reason,
			string(r.ExecutionStatus),
			r.Quantity,
		)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, telemetryColumns, strings.Join(values, ",")), args
}

// Query returns newest-first records for symbol within [from, to].
func (s *ClickHouseTelemetryStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.TelemetryRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC, cycle DESC LIMIT ?", telemetryColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TelemetryRecord
	for rows.Next() {
		var (
			r                             models.TelemetryRecord
			votes, required               uint8
			direction, decision, execStat string
		)
		if err := rows.Scan(&r.Ts, &r.Cycle, &r.Symbol, &r.Lambda, &r.Coherence, &r.AppliedThreshold,
			&r.BaseThreshold, &votes, &required, &direction, &decision, &r.Reason, &execStat, &r.Quantity); err != nil {
			return nil, err
		}
		r.Votes = int(votes)
		r.RequiredVotes = int(required)
		r.Direction = models.Direction(direction)
		r.Decision = models.Action(decision)
		r.ExecutionStatus = models.ExecutionStatus(execStat)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ClickHouseTelemetryStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTelemetryStorage) Close() error {
	return nil // pool owned by pkg/clickhouse.Client
}

// KafkaTelemetryPublisher implements TelemetryPublisher for Kafka, keyed by symbol.
type KafkaTelemetryPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTelemetryPublisher creates Kafka publisher.
func NewKafkaTelemetryPublisher(producer *pkgkafka.Producer, topic string) repository.TelemetryPublisher {
	return &KafkaTelemetryPublisher{producer: producer, topic: topic}
}

func (p *KafkaTelemetryPublisher) Publish(ctx context.Context, rec models.TelemetryRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Symbol), rec)
}

func (p *KafkaTelemetryPublisher) PublishBatch(ctx context.Context, recs []models.TelemetryRecord) error {
	msgs := make([]pkgkafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = pkgkafka.Message{Key: []byte(r.Symbol), Value: r}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTelemetryPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
