package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalGate/internal/domain/models"
)

type fakeSource map[string]models.MarketSnapshot

func (f fakeSource) Snapshot(symbol string) (models.MarketSnapshot, bool) {
	s, ok := f[symbol]
	return s, ok
}

type memSink struct {
	mu   sync.Mutex
	recs []models.TelemetryRecord
	err  error
}

func (s *memSink) Write(_ context.Context, rec models.TelemetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) records() []models.TelemetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TelemetryRecord(nil), s.recs...)
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []models.TradeDecision
	result  models.ExecutionResult
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, d models.TradeDecision, _ models.MarketSnapshot) models.ExecutionResult {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.result
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeState struct {
	mu       sync.Mutex
	lockFree bool
	saved    []models.SymbolState
	released int
}

func (f *fakeState) SaveState(_ context.Context, st models.SymbolState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, st)
	return nil
}

func (f *fakeState) LoadState(_ context.Context, _ string) (models.SymbolState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return models.SymbolState{}, errors.New("not found")
	}
	return f.saved[len(f.saved)-1], nil
}

func (f *fakeState) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lockFree, nil
}

func (f *fakeState) RefreshLock(context.Context, string, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.lockFree {
		return errors.New("not owner")
	}
	return nil
}

func (f *fakeState) ReleaseLock(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

type fakeOrders struct {
	mu   sync.Mutex
	reqs []models.OrderRequest
	resp models.OrderResponse
	err  error
}

func (f *fakeOrders) PlaceOrder(_ context.Context, req models.OrderRequest) (models.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

type staticBalances map[string]float64

func (b staticBalances) Balance(_ context.Context, asset string) (float64, error) {
	return b[asset], nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (r *recordingAlerts) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := payload.(models.Alert); ok {
		r.alerts = append(r.alerts, a)
	}
	return nil
}

func (r *recordingAlerts) all() []models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Alert(nil), r.alerts...)
}

// constEnsemble returns nine detectors with identical weighted response r.
// The first voting detectors resonate fully at lambda=0.1; the rest never vote.
func constEnsemble(r float64, voting int) []models.DetectorSpec {
	out := make([]models.DetectorSpec, 9)
	for i := range out {
		freq := 0.0
		if i < voting {
			freq = 2.5
		}
		out[i] = models.DetectorSpec{
			ID:        string(rune('a' + i)),
			Weight:    1,
			Frequency: freq,
			Response:  func(models.MarketSnapshot) float64 { return r },
		}
	}
	return out
}
