package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/service/exchange"
	"SignalGate/internal/services/features"
	"SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
)

func loopConfig(mode string) LoopConfig {
	return LoopConfig{
		Symbol:          "BTCUSDT",
		Mode:            mode,
		Interval:        5 * time.Millisecond,
		BaseThreshold:   0.9,
		VoteThreshold:   0.7,
		RequiredVotes:   6,
		ThresholdWindow: 500,
	}
}

func readySource() fakeSource {
	return fakeSource{"BTCUSDT": btcSnap}
}

func TestTenTradesEndToEndExecutesBuy(t *testing.T) {
	agg := features.NewAggregator()
	prices := []float64{100, 101, 99, 102, 98, 103, 97, 104, 96, 105}
	for i, p := range prices {
		require.NoError(t, agg.OnMarketEvent(models.Trade{
			Symbol: "BTCUSDT", Price: p, Quantity: 0.5, TradeTime: time.Unix(int64(i), 0),
		}))
	}

	paper := exchange.NewPaperAccount(map[string]float64{"USDT": 10000})
	exec := NewTradeExecutor(baseExecConfig(false), nil, nil, paper, nil, nil, metrics.Nop{}, logger.Nop())
	sink := &memSink{}
	state := &fakeState{}
	l := NewDecisionLoop(loopConfig("paper"), agg, constEnsemble(0.1, 7), exec, sink, state, metrics.Nop{}, logger.Nop())

	rec, ok := l.RunCycle(context.Background())
	require.True(t, ok)
	assert.Equal(t, models.ActionExecute, rec.Decision)
	assert.Equal(t, models.ReasonConsensusReached, rec.Reason)
	assert.Equal(t, models.DirectionBuy, rec.Direction)
	assert.Equal(t, 7, rec.Votes)
	assert.Equal(t, 6, rec.RequiredVotes)
	assert.GreaterOrEqual(t, rec.Coherence, rec.AppliedThreshold)
	assert.InDelta(t, 0.1, rec.Lambda, 1e-9)
	assert.Equal(t, models.StatusSimulated, rec.ExecutionStatus)
	assert.Equal(t, "9.523809", rec.Quantity)
	assert.Equal(t, int64(1), rec.Cycle)

	require.Len(t, sink.records(), 1)
	st := l.State()
	assert.InDelta(t, 0.05, st.Snapshot.Momentum, 1e-12)
	assert.Equal(t, int64(1), st.TotalTrades)
	require.Len(t, state.saved, 1)
	assert.Equal(t, int64(1), state.saved[0].Cycles)
}

func TestCycleWithoutSnapshotSkipsNoData(t *testing.T) {
	exec := &fakeExecutor{}
	sink := &memSink{}
	l := NewDecisionLoop(loopConfig("paper"), fakeSource{}, constEnsemble(0.1, 7), exec, sink, nil, metrics.Nop{}, logger.Nop())

	rec, ok := l.RunCycle(context.Background())
	require.True(t, ok)
	assert.Equal(t, models.ActionSkip, rec.Decision)
	assert.Equal(t, models.ReasonNoData, rec.Reason)
	assert.Equal(t, models.DirectionHold, rec.Direction)
	assert.Equal(t, 0.9, rec.AppliedThreshold)
	assert.Empty(t, rec.ExecutionStatus)
	assert.Zero(t, exec.count())
	assert.Len(t, sink.records(), 1)
}

func TestMarkNoDataOverridesSnapshot(t *testing.T) {
	exec := &fakeExecutor{}
	l := NewDecisionLoop(loopConfig("paper"), readySource(), constEnsemble(0.1, 7), exec, &memSink{}, nil, metrics.Nop{}, logger.Nop())
	l.MarkNoData()
	assert.False(t, l.Paused())

	rec, _ := l.RunCycle(context.Background())
	assert.Equal(t, models.ReasonNoData, rec.Reason)

	l.Resume()
	rec, _ = l.RunCycle(context.Background())
	assert.Equal(t, models.ActionExecute, rec.Decision)
	assert.Equal(t, 1, exec.count())
}

func TestInsufficientVotesSkips(t *testing.T) {
	exec := &fakeExecutor{}
	l := NewDecisionLoop(loopConfig("paper"), readySource(), constEnsemble(0.1, 5), exec, &memSink{}, nil, metrics.Nop{}, logger.Nop())

	rec, _ := l.RunCycle(context.Background())
	assert.Equal(t, models.ReasonInsufficientVotes, rec.Reason)
	assert.Equal(t, 5, rec.Votes)
	assert.Zero(t, exec.count())
}

func TestLiveCycleWithoutLockSkips(t *testing.T) {
	exec := &fakeExecutor{result: models.ExecutionResult{Success: true, Status: models.StatusFilled,
		SizedQuantity: decimal.NewFromInt(1), FillPrice: decimal.NewFromInt(105)}}
	state := &fakeState{}
	l := NewDecisionLoop(loopConfig("live"), readySource(), constEnsemble(0.1, 7), exec, &memSink{}, state, metrics.Nop{}, logger.Nop())

	rec, _ := l.RunCycle(context.Background())
	assert.Equal(t, models.ActionSkip, rec.Decision)
	assert.Equal(t, models.ReasonLocked, rec.Reason)
	assert.Equal(t, 7, rec.Votes)
	assert.Zero(t, exec.count())

	state.mu.Lock()
	state.lockFree = true
	state.mu.Unlock()

	rec, _ = l.RunCycle(context.Background())
	assert.Equal(t, models.ActionExecute, rec.Decision)
	assert.Equal(t, models.StatusFilled, rec.ExecutionStatus)
	assert.Equal(t, 1, exec.count())

	l.ReleaseLock(context.Background())
	assert.Equal(t, 1, state.released)
}

func TestDrainKeepsLockWhileOrderInFlight(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{}), entered: make(chan struct{}, 1),
		result: models.ExecutionResult{Success: true, Status: models.StatusFilled,
			SizedQuantity: decimal.NewFromInt(1), FillPrice: decimal.NewFromInt(105)}}
	state := &fakeState{lockFree: true}
	l := NewDecisionLoop(loopConfig("live"), readySource(), constEnsemble(0.1, 7), exec, &memSink{}, state, metrics.Nop{}, logger.Nop())
	l.Resume()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	select {
	case <-exec.entered:
	case <-time.After(3 * time.Second):
		t.Fatalf("order was never placed")
	}
	cancel()
	<-done

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	assert.False(t, l.Drain(short))
	state.mu.Lock()
	assert.Zero(t, state.released, "lock released while the order was unresolved")
	state.mu.Unlock()

	close(exec.block)
	long, cancelLong := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelLong()
	require.True(t, l.Drain(long))
	state.mu.Lock()
	assert.Equal(t, 1, state.released)
	state.mu.Unlock()
}

func TestOverlappingCycleIsDropped(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	sink := &memSink{}
	l := NewDecisionLoop(loopConfig("paper"), readySource(), constEnsemble(0.1, 7), exec, sink, nil, metrics.Nop{}, logger.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.RunCycle(context.Background())
	}()
	<-exec.entered

	_, ok := l.RunCycle(context.Background())
	assert.False(t, ok)

	close(exec.block)
	wg.Wait()
	assert.Len(t, sink.records(), 1)
	assert.Equal(t, int64(1), l.Cycles())
}

func TestMaxCyclesStopsRun(t *testing.T) {
	cfg := loopConfig("paper")
	cfg.MaxCycles = 3
	sink := &memSink{}
	l := NewDecisionLoop(cfg, readySource(), constEnsemble(0.1, 7), &fakeExecutor{}, sink, nil, metrics.Nop{}, logger.Nop())
	l.Resume()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("Run did not stop at max cycles")
	}
	require.True(t, l.Wait(ctx))
	assert.Equal(t, int64(3), l.Cycles())
	assert.Len(t, sink.records(), 3)

	_, ok := l.RunCycle(context.Background())
	assert.False(t, ok)
}

func TestPausedLoopDoesNotTick(t *testing.T) {
	sink := &memSink{}
	l := NewDecisionLoop(loopConfig("paper"), readySource(), constEnsemble(0.1, 7), &fakeExecutor{}, sink, nil, metrics.Nop{}, logger.Nop())
	require.True(t, l.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	l.Run(ctx)
	assert.Empty(t, sink.records())
}

func TestBookRealizesProfitAgainstAverageEntry(t *testing.T) {
	l := NewDecisionLoop(loopConfig("paper"), fakeSource{}, nil, &fakeExecutor{}, &memSink{}, nil, metrics.Nop{}, logger.Nop())
	d := decimal.NewFromInt

	l.book(models.DirectionBuy, d(1), d(100))
	l.book(models.DirectionBuy, d(1), d(200))
	l.book(models.DirectionSell, d(1), d(180))
	assert.Equal(t, "30", l.totalProfit.String())
	assert.Equal(t, "1", l.position.String())

	l.book(models.DirectionSell, d(5), d(140))
	assert.Equal(t, "20", l.totalProfit.String())
	assert.True(t, l.position.IsZero())
	assert.Equal(t, int64(4), l.totalTrades)
}
