package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
	svcmetrics "SignalGate/internal/service/metrics"
	"SignalGate/pkg/logger"
)

type stubLoop struct {
	symbol string
	state  models.SymbolState
	cycles int64
	paused bool
}

func (s stubLoop) Symbol() string            { return s.symbol }
func (s stubLoop) State() models.SymbolState { return s.state }
func (s stubLoop) Cycles() int64             { return s.cycles }
func (s stubLoop) Paused() bool              { return s.paused }

type stubConn bool

func (c stubConn) IsConnected() bool { return bool(c) }

type stubStateStore struct{ states map[string]models.SymbolState }

func (s stubStateStore) SaveState(context.Context, models.SymbolState) error { return nil }
func (s stubStateStore) LoadState(_ context.Context, symbol string) (models.SymbolState, error) {
	st, ok := s.states[symbol]
	if !ok {
		return st, errors.New("not found")
	}
	return st, nil
}
func (s stubStateStore) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
func (s stubStateStore) RefreshLock(context.Context, string, time.Duration) error { return nil }
func (s stubStateStore) ReleaseLock(context.Context, string) error                { return nil }

type stubStorage struct {
	rows           []models.TelemetryRecord
	err            error
	gotSymbol      string
	gotFrom, gotTo time.Time
	gotLimit       int
}

func (s *stubStorage) Init(context.Context) error                                 { return nil }
func (s *stubStorage) Store(context.Context, models.TelemetryRecord) error        { return nil }
func (s *stubStorage) StoreBatch(context.Context, []models.TelemetryRecord) error { return nil }
func (s *stubStorage) Query(_ context.Context, symbol string, from, to time.Time, limit int) ([]models.TelemetryRecord, error) {
	s.gotSymbol, s.gotFrom, s.gotTo, s.gotLimit = symbol, from, to, limit
	return s.rows, s.err
}
func (s *stubStorage) Health(context.Context) error { return nil }
func (s *stubStorage) Close() error                 { return nil }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newHandler(storage *stubStorage) (*echo.Echo, *svcmetrics.APIMetrics) {
	btc := stubLoop{
		symbol: "BTCUSDT",
		cycles: 12,
		state: models.SymbolState{
			Symbol:      "BTCUSDT",
			TotalTrades: 2,
			TotalProfit: "3.5",
			Snapshot:    models.MarketSnapshot{Symbol: "BTCUSDT", Price: 105},
			Signal:      models.SignalState{Lambda: 0.1, Coherence: 0.95},
			Decision:    models.TradeDecision{Action: models.ActionExecute, Reason: models.ReasonConsensusReached},
		},
	}
	eth := stubLoop{symbol: "ETHUSDT", cycles: 3, paused: true, state: models.SymbolState{Symbol: "ETHUSDT", TotalProfit: "0"}}
	remote := stubStateStore{states: map[string]models.SymbolState{
		"SOLUSDT": {Symbol: "SOLUSDT", Snapshot: models.MarketSnapshot{Symbol: "SOLUSDT", Price: 150}},
	}}

	m := svcmetrics.NewAPIMetrics(prometheus.NewRegistry())
	h := NewStatusHandler(logger.Nop(), "paper", stubConn(true), []LoopView{eth, btc}, remote, nil, m)
	if storage != nil {
		h.storage = storage
	}
	e := echo.New()
	h.RegisterRoutes(e)
	return e, m
}

func get(e *echo.Echo, target string) (*httptest.ResponseRecorder, envelope) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestStatusAggregatesLoops(t *testing.T) {
	e, _ := newHandler(nil)
	rec, env := get(e, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st StatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "paper", st.Mode)
	assert.True(t, st.Connected)
	assert.Equal(t, int64(15), st.TotalCycles)
	assert.Equal(t, int64(2), st.TotalTrades)
	require.Len(t, st.Symbols, 2)
	assert.Equal(t, "BTCUSDT", st.Symbols[0].Symbol)
	assert.Equal(t, "3.5", st.Symbols[0].TotalProfit)
	assert.True(t, st.Symbols[1].Paused)
}

func TestSnapshotFromLoopAndStateStore(t *testing.T) {
	e, m := newHandler(nil)

	rec, env := get(e, "/api/snapshot?symbol=BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.MarketSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 105.0, snap.Price)

	rec, env = get(e, "/api/snapshot?symbol=SOLUSDT")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 150.0, snap.Price)

	rec, _ = get(e, "/api/snapshot?symbol=XRPUSDT")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = get(e, "/api/snapshot?symbol=btcusdt")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 105.0, snap.Price)

	rec, _ = get(e, "/api/snapshot")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Errors.WithLabelValues("snapshot")))
}

func TestSignalReturnsDecisionContext(t *testing.T) {
	e, _ := newHandler(nil)
	rec, env := get(e, "/api/signal?symbol=BTCUSDT")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Signal   models.SignalState   `json:"signal"`
		Decision models.TradeDecision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 0.95, body.Signal.Coherence)
	assert.Equal(t, models.ActionExecute, body.Decision.Action)
}

func TestDecisionsWithoutStorageIsUnavailable(t *testing.T) {
	e, _ := newHandler(nil)
	rec, _ := get(e, "/api/decisions?symbol=BTCUSDT")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDecisionsQueriesStorage(t *testing.T) {
	storage := &stubStorage{rows: []models.TelemetryRecord{{Symbol: "BTCUSDT", Cycle: 9, Decision: models.ActionSkip}}}
	e, _ := newHandler(storage)

	rec, env := get(e, "/api/decisions?symbol=BTCUSDT&from=2024-01-01T00:00:00Z&to=2024-01-02T00:00:00Z&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.TelemetryRecord `json:"rows"`
		Total int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, int64(9), list.Rows[0].Cycle)
	assert.Equal(t, "BTCUSDT", storage.gotSymbol)
	assert.Equal(t, 10, storage.gotLimit)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), storage.gotFrom)

	rec, _ = get(e, "/api/decisions?symbol=btcusdt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BTCUSDT", storage.gotSymbol)
	assert.Equal(t, 100, storage.gotLimit)
	assert.Equal(t, 24*time.Hour, storage.gotTo.Sub(storage.gotFrom))

	rec, _ = get(e, "/api/decisions?symbol=BTCUSDT&from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(e, "/api/decisions?symbol=BTCUSDT&from=2024-01-02T00:00:00Z&to=2024-01-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	storage.err = errors.New("clickhouse down")
	rec, _ = get(e, "/api/decisions?symbol=BTCUSDT")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthReflectsConnection(t *testing.T) {
	e, _ := newHandler(nil)
	rec, _ := get(e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	h := NewStatusHandler(logger.Nop(), "live", stubConn(false), nil, nil, nil, nil)
	e2 := echo.New()
	h.RegisterRoutes(e2)
	rec, _ = get(e2, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
