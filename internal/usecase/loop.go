package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"SignalGate/internal/domain/models"
	drepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/services/analytics"
	"SignalGate/pkg/logger"
)

// SnapshotSource returns a copy of the latest snapshot for a symbol.
type SnapshotSource interface {
	Snapshot(symbol string) (models.MarketSnapshot, bool)
}

type LoopConfig struct {
	Symbol          string
	Mode            string
	Interval        time.Duration
	BaseThreshold   float64
	VoteThreshold   float64
	RequiredVotes   int
	MaxCycles       int64
	ThresholdWindow int
}

// DecisionLoop runs the fixed-period decision cycle of one symbol. Cycles are
// serialized: a tick that fires while a cycle is still running is dropped.
type DecisionLoop struct {
	cfg     LoopConfig
	src     SnapshotSource
	engine  *analytics.Engine
	voter   *analytics.Voter
	calib   *analytics.Calibrator
	exec    Executor
	sink    drepo.TelemetrySink
	state   drepo.StateStore
	metrics drepo.Metrics
	log     *logger.Logger

	running atomic.Bool
	paused  atomic.Bool
	noData  atomic.Bool
	cycles  atomic.Int64
	wake    chan struct{}
	inCycle sync.WaitGroup

	// lockHeld is only touched from inside a cycle.
	lockHeld bool

	mu          sync.RWMutex
	totalTrades int64
	totalProfit decimal.Decimal
	position    decimal.Decimal
	avgEntry    decimal.Decimal
	last        models.SymbolState
}

// NewDecisionLoop builds a paused loop; Resume starts the timer.
func NewDecisionLoop(
	cfg LoopConfig,
	src SnapshotSource,
	ensemble []models.DetectorSpec,
	exec Executor,
	sink drepo.TelemetrySink,
	state drepo.StateStore,
	metrics drepo.Metrics,
	log *logger.Logger,
) *DecisionLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	l := &DecisionLoop{
		cfg:     cfg,
		src:     src,
		engine:  analytics.NewEngine(ensemble),
		voter:   analytics.NewVoter(cfg.VoteThreshold),
		calib:   analytics.NewCalibrator(cfg.ThresholdWindow),
		exec:    exec,
		sink:    sink,
		state:   state,
		metrics: metrics,
		log:     log.Named("loop").With(logger.String("symbol", cfg.Symbol)),
		wake:    make(chan struct{}, 1),
	}
	l.paused.Store(true)
	l.last = models.SymbolState{Symbol: cfg.Symbol, Mode: cfg.Mode, TotalProfit: "0"}
	return l
}

func (l *DecisionLoop) Symbol() string { return l.cfg.Symbol }

// Pause stops the timer; no cycle runs until Resume or MarkNoData.
func (l *DecisionLoop) Pause() {
	if !l.paused.Swap(true) {
		l.log.Info("decision loop paused")
	}
	l.signal()
}

// Resume restarts the timer after a (re)connect.
func (l *DecisionLoop) Resume() {
	l.noData.Store(false)
	if l.paused.Swap(false) {
		l.log.Info("decision loop resumed")
	}
	l.signal()
}

// MarkNoData keeps the timer running but every cycle skips with NO_DATA.
// Used once the stream gave up reconnecting.
func (l *DecisionLoop) MarkNoData() {
	l.noData.Store(true)
	l.paused.Store(false)
	l.log.Warn("decision loop idling without market data")
	l.signal()
}

func (l *DecisionLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives cycles until ctx is done or MaxCycles is reached.
func (l *DecisionLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()
	if l.paused.Load() {
		ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			if l.paused.Load() {
				ticker.Stop()
			} else {
				ticker.Reset(l.cfg.Interval)
			}
		case <-ticker.C:
			if l.paused.Load() {
				continue
			}
			l.inCycle.Add(1)
			go func() {
				defer l.inCycle.Done()
				l.RunCycle(ctx)
			}()
			if l.done() {
				l.log.Info("max cycles reached", logger.Int64("cycles", l.cycles.Load()))
				return
			}
		}
	}
}

// Wait blocks until the in-flight cycle, if any, has finished or ctx expires.
// It reports whether the loop drained.
func (l *DecisionLoop) Wait(ctx context.Context) bool {
	ch := make(chan struct{})
	go func() {
		l.inCycle.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// Drain waits for the in-flight cycle and releases the trading lock once the
// loop is idle. When ctx expires first the lock is left to its TTL, since the
// abandoned cycle may still have an order outstanding.
func (l *DecisionLoop) Drain(ctx context.Context) bool {
	if !l.Wait(ctx) {
		return false
	}
	l.ReleaseLock(ctx)
	return true
}

func (l *DecisionLoop) done() bool {
	return l.cfg.MaxCycles > 0 && l.cycles.Load() >= l.cfg.MaxCycles
}

// RunCycle executes one cycle and returns its telemetry record. ok is false
// when the cycle was skipped because another one is running or the cap is hit.
func (l *DecisionLoop) RunCycle(ctx context.Context) (rec models.TelemetryRecord, ok bool) {
	if !l.running.CompareAndSwap(false, true) {
		l.log.Debug("previous cycle still running, tick dropped")
		return rec, false
	}
	defer l.running.Store(false)
	if l.done() {
		return rec, false
	}
	n := l.cycles.Add(1)

	var (
		sig  models.SignalState
		cons = models.ConsensusResult{Direction: models.DirectionHold}
		res  models.ExecutionResult
		dec  models.TradeDecision
	)
	snap, have := l.src.Snapshot(l.cfg.Symbol)
	th := l.calib.Threshold(l.cfg.BaseThreshold)

	if l.noData.Load() || !have || !snap.Ready() {
		dec = skip(models.ReasonNoData, th.Value)
	} else {
		sig = l.engine.Step(snap)
		l.calib.Observe(sig.Coherence)
		th = l.calib.Threshold(l.cfg.BaseThreshold)
		cons = l.voter.Vote(sig.Lambda, l.engine.Ensemble())

		if l.live() && !l.holdLock(ctx) {
			dec = skip(models.ReasonLocked, th.Value)
			dec.Direction, dec.Votes = cons.Direction, cons.Votes
		} else {
			dec = Decide(cons, sig.Coherence, th.Value, l.cfg.RequiredVotes)
		}
		if dec.Execute() {
			res = l.exec.Execute(ctx, dec, snap)
			if res.Success {
				l.book(dec.Direction, res.SizedQuantity, res.FillPrice)
			}
		}
		l.metrics.RecordSignal(l.cfg.Symbol, sig.Lambda, sig.Coherence, th.Value)
	}
	l.metrics.RecordDecision(l.cfg.Symbol, string(dec.Action), dec.Reason)

	now := time.Now().UTC()
	rec = models.TelemetryRecord{
		Ts:               now,
		Cycle:            n,
		Symbol:           l.cfg.Symbol,
		Lambda:           sig.Lambda,
		Coherence:        sig.Coherence,
		AppliedThreshold: th.Value,
		BaseThreshold:    l.cfg.BaseThreshold,
		Votes:            cons.Votes,
		RequiredVotes:    l.cfg.RequiredVotes,
		Direction:        cons.Direction,
		Decision:         dec.Action,
		Reason:           dec.Reason,
		ExecutionStatus:  res.Status,
	}
	if res.Status != "" {
		rec.Quantity = res.SizedQuantity.String()
	}

	l.log.Debug("cycle",
		logger.Int64("cycle", n),
		logger.Float64("lambda", sig.Lambda),
		logger.Float64("coherence", sig.Coherence),
		logger.Float64("threshold", th.Value),
		logger.Int("votes", cons.Votes),
		logger.String("decision", string(dec.Action)),
		logger.String("reason", dec.Reason),
	)

	// Shutdown must not lose the record of a cycle that already ran.
	wctx := context.WithoutCancel(ctx)
	if err := l.sink.Write(wctx, rec); err != nil {
		l.log.Error("telemetry write failed", logger.Error(err))
	}
	l.publish(wctx, n, snap, sig, cons, th.Value, dec, now)
	return rec, true
}

func (l *DecisionLoop) live() bool { return l.cfg.Mode == "live" && l.state != nil }

// holdLock acquires or refreshes the per-symbol trading lock.
func (l *DecisionLoop) holdLock(ctx context.Context) bool {
	ttl := 3 * l.cfg.Interval
	if l.lockHeld {
		if err := l.state.RefreshLock(ctx, l.cfg.Symbol, ttl); err == nil {
			return true
		}
		l.log.Warn("trading lock lost")
		l.lockHeld = false
	}
	ok, err := l.state.AcquireLock(ctx, l.cfg.Symbol, ttl)
	if err != nil {
		l.log.Error("trading lock acquire failed", logger.Error(err))
		return false
	}
	if ok {
		l.log.Info("trading lock acquired")
	}
	l.lockHeld = ok
	return ok
}

// ReleaseLock gives the trading lock back on shutdown.
func (l *DecisionLoop) ReleaseLock(ctx context.Context) {
	if !l.lockHeld || l.state == nil {
		return
	}
	if err := l.state.ReleaseLock(ctx, l.cfg.Symbol); err != nil {
		l.log.Warn("trading lock release failed", logger.Error(err))
	}
	l.lockHeld = false
}

// book updates the trade count, position and realized profit from a fill.
// Profit is realized on SELL against the average entry of prior BUY fills.
func (l *DecisionLoop) book(side models.Direction, qty, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalTrades++
	switch side {
	case models.DirectionBuy:
		cost := l.position.Mul(l.avgEntry).Add(qty.Mul(price))
		l.position = l.position.Add(qty)
		if l.position.IsPositive() {
			l.avgEntry = cost.Div(l.position)
		}
	case models.DirectionSell:
		matched := decimal.Min(qty, l.position)
		if matched.IsPositive() {
			l.totalProfit = l.totalProfit.Add(price.Sub(l.avgEntry).Mul(matched))
			l.position = l.position.Sub(matched)
		}
		if !l.position.IsPositive() {
			l.position, l.avgEntry = decimal.Zero, decimal.Zero
		}
	}
}

func (l *DecisionLoop) publish(ctx context.Context, n int64, snap models.MarketSnapshot, sig models.SignalState,
	cons models.ConsensusResult, th float64, dec models.TradeDecision, at time.Time) {
	l.mu.Lock()
	l.last = models.SymbolState{
		Symbol:      l.cfg.Symbol,
		Mode:        l.cfg.Mode,
		Cycles:      n,
		TotalTrades: l.totalTrades,
		TotalProfit: l.totalProfit.String(),
		Snapshot:    snap,
		Signal:      sig,
		Consensus:   cons,
		Threshold:   th,
		Decision:    dec,
		UpdatedAt:   at,
	}
	st := l.last
	l.mu.Unlock()

	if l.state == nil {
		return
	}
	if err := l.state.SaveState(ctx, st); err != nil {
		l.log.Warn("state save failed", logger.Error(err))
	}
}

// State returns the state published by the last cycle.
func (l *DecisionLoop) State() models.SymbolState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

func (l *DecisionLoop) Cycles() int64 { return l.cycles.Load() }

func (l *DecisionLoop) Paused() bool { return l.paused.Load() }
