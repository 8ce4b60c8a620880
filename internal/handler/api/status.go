package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	svcmetrics "SignalGate/internal/service/metrics"
	xhttp "SignalGate/pkg/http"
	xlogger "SignalGate/pkg/logger"
	"SignalGate/pkg/util"
)

// LoopView is the read side of a running decision loop.
type LoopView interface {
	Symbol() string
	State() models.SymbolState
	Cycles() int64
	Paused() bool
}

// ConnectionState reports whether market data is flowing.
type ConnectionState interface {
	IsConnected() bool
}

type LoopStatus struct {
	Symbol      string        `json:"symbol"`
	Paused      bool          `json:"paused"`
	Cycles      int64         `json:"cycles"`
	TotalTrades int64         `json:"totalTrades"`
	TotalProfit string        `json:"totalProfit"`
	LastAction  models.Action `json:"lastAction,omitempty"`
	LastReason  string        `json:"lastReason,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type StatusResponse struct {
	Mode        string       `json:"mode"`
	Connected   bool         `json:"connected"`
	Uptime      string       `json:"uptime"`
	TotalCycles int64        `json:"totalCycles"`
	TotalTrades int64        `json:"totalTrades"`
	Symbols     []LoopStatus `json:"symbols"`
}

// StatusHandler serves the read-only status API.
type StatusHandler struct {
	logger  *xlogger.Logger
	mode    string
	conn    ConnectionState
	loops   map[string]LoopView
	state   domrepo.StateStore
	storage domrepo.TelemetryStorage
	metrics *svcmetrics.APIMetrics
	started time.Time
	now     func() time.Time
}

// NewStatusHandler builds the handler; state and storage may be nil.
func NewStatusHandler(
	logger *xlogger.Logger,
	mode string,
	conn ConnectionState,
	loops []LoopView,
	state domrepo.StateStore,
	storage domrepo.TelemetryStorage,
	metrics *svcmetrics.APIMetrics,
) *StatusHandler {
	byName := make(map[string]LoopView, len(loops))
	for _, l := range loops {
		byName[l.Symbol()] = l
	}
	return &StatusHandler{
		logger:  logger.Named("api"),
		mode:    mode,
		conn:    conn,
		loops:   byName,
		state:   state,
		storage: storage,
		metrics: metrics,
		started: time.Now(),
		now:     time.Now,
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/snapshot", h.Snapshot)
	g.GET("/signal", h.Signal)
	g.GET("/decisions", h.Decisions)
}

func (h *StatusHandler) Health(c echo.Context) error {
	if h.conn != nil && !h.conn.IsConnected() {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *StatusHandler) Status(c echo.Context) error {
	start := time.Now()
	defer h.metrics.Observe("status", start, false)

	res := StatusResponse{
		Mode:      h.mode,
		Connected: h.conn != nil && h.conn.IsConnected(),
		Uptime:    h.now().Sub(h.started).Truncate(time.Second).String(),
		Symbols:   make([]LoopStatus, 0, len(h.loops)),
	}
	for _, l := range h.loops {
		st := l.State()
		res.TotalCycles += l.Cycles()
		res.TotalTrades += st.TotalTrades
		res.Symbols = append(res.Symbols, LoopStatus{
			Symbol:      l.Symbol(),
			Paused:      l.Paused(),
			Cycles:      l.Cycles(),
			TotalTrades: st.TotalTrades,
			TotalProfit: st.TotalProfit,
			LastAction:  st.Decision.Action,
			LastReason:  st.Decision.Reason,
			UpdatedAt:   st.UpdatedAt,
		})
	}
	sort.Slice(res.Symbols, func(i, j int) bool { return res.Symbols[i].Symbol < res.Symbols[j].Symbol })
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusHandler) Snapshot(c echo.Context) error {
	start := time.Now()
	st, ok, err := h.symbolState(c)
	h.metrics.Observe("snapshot", start, !ok)
	if !ok {
		return err
	}
	return xhttp.SuccessResponse(c, st.Snapshot)
}

func (h *StatusHandler) Signal(c echo.Context) error {
	start := time.Now()
	st, ok, err := h.symbolState(c)
	h.metrics.Observe("signal", start, !ok)
	if !ok {
		return err
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol":    st.Symbol,
		"signal":    st.Signal,
		"consensus": st.Consensus,
		"threshold": st.Threshold,
		"decision":  st.Decision,
		"updatedAt": st.UpdatedAt,
	})
}

// symbolState prefers the in-process loop and falls back to the shared state
// store, which also holds symbols traded by other instances. When ok is false
// the error response has already been written and err is what Echo should get.
func (h *StatusHandler) symbolState(c echo.Context) (st models.SymbolState, ok bool, err error) {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return st, false, xhttp.BadRequestResponse(c, verr)
	}
	if l, found := h.loops[req.Symbol]; found {
		return l.State(), true, nil
	}
	if h.state != nil {
		st, err = h.state.LoadState(c.Request().Context(), req.Symbol)
		if err == nil {
			return st, true, nil
		}
		h.logger.Debug("state lookup failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
	}
	return st, false, xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s is not tracked", req.Symbol))
}

func (h *StatusHandler) Decisions(c echo.Context) error {
	start := time.Now()
	failed := true
	defer func() { h.metrics.Observe("decisions", start, failed) }()

	if h.storage == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("decision history requires clickhouse storage"))
	}
	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	to := h.now().UTC()
	from := to.Add(-24 * time.Hour)
	if req.From != "" {
		t, ok := util.ParseTime(req.From)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from must be RFC3339 or unix seconds").WithParam("from", req.From))
		}
		from = t
	}
	if req.To != "" {
		t, ok := util.ParseTime(req.To)
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("to must be RFC3339 or unix seconds").WithParam("to", req.To))
		}
		to = t
	}
	if to.Before(from) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from must not be after to"))
	}

	rows, err := h.storage.Query(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("decision history query failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("decision history unavailable").WithError(err))
	}
	if rows == nil {
		rows = []models.TelemetryRecord{}
	}
	failed = false
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}
