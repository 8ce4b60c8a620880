package usecase

import (
	"context"
	"time"

	"SignalGate/internal/domain/models"
	drepo "SignalGate/internal/domain/repository"
	mid "SignalGate/internal/middleware"
	"SignalGate/pkg/logger"
)

// LoopControl is the part of a decision loop the collector drives from connection state.
type LoopControl interface {
	Pause()
	Resume()
	MarkNoData()
}

// EventCollector consumes the stream's ordered event channel. Market events go
// through the pipeline into the aggregator in arrival order; connection events
// start and stop the decision loops.
type EventCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	streams []string
	loops   []LoopControl
	alerts  drepo.AlertPublisher
	metrics drepo.Metrics
	log     *logger.Logger
	done    chan struct{}
}

func NewEventCollector(
	stream drepo.MarketStream,
	pipe *mid.RealtimePipeline,
	streams []string,
	alerts drepo.AlertPublisher,
	metrics drepo.Metrics,
	log *logger.Logger,
) *EventCollector {
	return &EventCollector{
		stream:  stream,
		pipe:    pipe,
		streams: streams,
		alerts:  alerts,
		metrics: metrics,
		log:     log.Named("collector"),
		done:    make(chan struct{}),
	}
}

// Attach registers loops to be paused and resumed with the connection. Call before Start.
func (c *EventCollector) Attach(loops ...LoopControl) {
	c.loops = append(c.loops, loops...)
}

// IsConnected returns true if the market stream is connected.
func (c *EventCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects the stream and begins consuming. A failed first connect is returned.
func (c *EventCollector) Start(ctx context.Context) error {
	go c.consume(ctx)
	if err := c.stream.Connect(ctx, c.streams); err != nil {
		return err
	}
	c.log.Info("stream connected", logger.Strings("streams", c.streams))
	return nil
}

// Done is closed once the event channel has been drained.
func (c *EventCollector) Done() <-chan struct{} { return c.done }

func (c *EventCollector) consume(ctx context.Context) {
	defer close(c.done)
	for ev := range c.stream.Events() {
		c.handle(ctx, ev)
	}
}

func (c *EventCollector) handle(ctx context.Context, ev models.StreamEvent) {
	switch ev.Kind {
	case models.StreamMarket:
		if err := c.pipe.Process(ev.Market); err != nil {
			c.log.Debug("market event dropped", logger.Error(err))
			return
		}
		switch m := ev.Market.(type) {
		case models.Trade:
			c.metrics.RecordLastPrice(m.Symbol, m.Price)
		case models.AggTrade:
			c.metrics.RecordLastPrice(m.Symbol, m.Price)
		}
	case models.StreamConnected:
		for _, l := range c.loops {
			l.Resume()
		}
	case models.StreamDisconnected:
		c.log.Warn("stream disconnected",
			logger.Int("code", ev.Code),
			logger.String("reason", ev.Reason),
			logger.Bool("terminal", ev.Terminal),
		)
		if !ev.Terminal {
			for _, l := range c.loops {
				l.Pause()
			}
			return
		}
		for _, l := range c.loops {
			l.MarkNoData()
		}
		c.alert(ctx, ev)
	case models.StreamError:
		c.log.Warn("stream error", logger.Error(ev.Err))
	}
}

func (c *EventCollector) alert(ctx context.Context, ev models.StreamEvent) {
	if c.alerts == nil {
		return
	}
	msg := ev.Reason
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	a := models.Alert{Kind: models.AlertStreamTerminated, Message: msg, Time: time.Now().UTC()}
	if err := c.alerts.PublishMessage(context.WithoutCancel(ctx), a.Kind, a); err != nil {
		c.log.Warn("alert publish failed", logger.Error(err))
	}
}

// Shutdown closes the stream and waits for the consumer to drain.
func (c *EventCollector) Shutdown(ctx context.Context) error {
	err := c.stream.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
