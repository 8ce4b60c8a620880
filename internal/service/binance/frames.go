package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/util"
)

const (
	methodSubscribe   = "SUBSCRIBE"
	methodUnsubscribe = "UNSUBSCRIBE"
	methodList        = "LIST_SUBSCRIPTIONS"
)

var errUnsupportedEvent = errors.New("unsupported event type")

type controlFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type ackError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type ack struct {
	ID     int64
	Result json.RawMessage
	Err    *ackError
}

type frame struct {
	ack    *ack
	stream string
	event  models.MarketEvent
}

type envelope struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ackError       `json:"error"`
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// decodeFrame recognizes ack, combined and single-stream frames.
// recv stamps events that carry no server time.
func decodeFrame(b []byte, recv time.Time) (frame, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if env.ID != nil && env.Stream == "" {
		return frame{ack: &ack{ID: *env.ID, Result: env.Result, Err: env.Error}}, nil
	}
	payload := json.RawMessage(b)
	if env.Stream != "" {
		if len(env.Data) == 0 {
			return frame{}, fmt.Errorf("combined frame %q without data", env.Stream)
		}
		payload = env.Data
	}
	ev, err := decodeEvent(payload, recv)
	if err != nil {
		return frame{stream: env.Stream}, err
	}
	return frame{stream: env.Stream, event: ev}, nil
}

// Binance payloads use keys that differ only in case ("e"/"E", "t"/"T", "b"/"B").
// encoding/json matches keys case-insensitively, so every struct below declares
// both spellings wherever the payload carries both.

type tradeMsg struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
	Ignore     bool   `json:"M"`
}

type aggTradeMsg struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	AggID      int64  `json:"a"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	FirstID    int64  `json:"f"`
	LastID     int64  `json:"l"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
	Ignore     bool   `json:"M"`
}

type depthMsg struct {
	Event     string     `json:"e"`
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	FirstID   int64      `json:"U"`
	FinalID   int64      `json:"u"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type bookTickerMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	UpdateID  int64  `json:"u"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	BidQty    string `json:"B"`
	AskPrice  string `json:"a"`
	AskQty    string `json:"A"`
}

type miniTickerMsg struct {
	Event       string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

type klineMsg struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		Start        int64  `json:"t"`
		End          int64  `json:"T"`
		Symbol       string `json:"s"`
		Interval     string `json:"i"`
		FirstID      int64  `json:"f"`
		LastID       int64  `json:"L"`
		Open         string `json:"o"`
		Close        string `json:"c"`
		High         string `json:"h"`
		Low          string `json:"l"`
		Volume       string `json:"v"`
		Trades       int64  `json:"n"`
		Closed       bool   `json:"x"`
		QuoteVolume  string `json:"q"`
		TakerVolume  string `json:"V"`
		TakerQuote   string `json:"Q"`
		IgnoreString string `json:"B"`
	} `json:"k"`
}

func decodeEvent(b []byte, recv time.Time) (models.MarketEvent, error) {
	// Decoding into a map keeps keys exact, so "e" and "E" are told apart.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var kind string
	if raw, ok := keys["e"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return nil, fmt.Errorf("decode event type: %w", err)
		}
	} else if has(keys, "u", "b", "a") {
		kind = string(models.EventBookTicker)
	}

	switch kind {
	case "trade":
		var m tradeMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		price, qty, err := priceQty(m.Price, m.Quantity)
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", m.Symbol, err)
		}
		return models.Trade{Symbol: m.Symbol, Price: price, Quantity: qty, TradeTime: eventTime(m.TradeTime, m.EventTime, recv)}, nil

	case "aggTrade":
		var m aggTradeMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode aggTrade: %w", err)
		}
		price, qty, err := priceQty(m.Price, m.Quantity)
		if err != nil {
			return nil, fmt.Errorf("aggTrade %s: %w", m.Symbol, err)
		}
		return models.AggTrade{Symbol: m.Symbol, Price: price, Quantity: qty, TradeTime: eventTime(m.TradeTime, m.EventTime, recv)}, nil

	case "depthUpdate":
		var m depthMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode depthUpdate: %w", err)
		}
		bids, err := levels(m.Bids)
		if err != nil {
			return nil, fmt.Errorf("depthUpdate %s bids: %w", m.Symbol, err)
		}
		asks, err := levels(m.Asks)
		if err != nil {
			return nil, fmt.Errorf("depthUpdate %s asks: %w", m.Symbol, err)
		}
		return models.DepthUpdate{Symbol: m.Symbol, Bids: bids, Asks: asks, Time: eventTime(m.EventTime, 0, recv)}, nil

	case "bookTicker":
		var m bookTickerMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode bookTicker: %w", err)
		}
		bid, bidQty, err := priceQty(m.BidPrice, m.BidQty)
		if err != nil {
			return nil, fmt.Errorf("bookTicker %s bid: %w", m.Symbol, err)
		}
		ask, askQty, err := priceQty(m.AskPrice, m.AskQty)
		if err != nil {
			return nil, fmt.Errorf("bookTicker %s ask: %w", m.Symbol, err)
		}
		return models.BookTicker{
			Symbol:   m.Symbol,
			UpdateID: m.UpdateID,
			BidPrice: bid,
			BidQty:   bidQty,
			AskPrice: ask,
			AskQty:   askQty,
			Time:     eventTime(m.EventTime, 0, recv),
		}, nil

	case "24hrMiniTicker", "miniTicker":
		var m miniTickerMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode miniTicker: %w", err)
		}
		closePrice, vol, err := priceQty(m.Close, m.Volume)
		if err != nil {
			return nil, fmt.Errorf("miniTicker %s: %w", m.Symbol, err)
		}
		return models.MiniTicker{Symbol: m.Symbol, Close: closePrice, Volume: vol, Time: eventTime(m.EventTime, 0, recv)}, nil

	case "kline":
		var m klineMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("decode kline: %w", err)
		}
		closePrice, vol, err := priceQty(m.Kline.Close, m.Kline.Volume)
		if err != nil {
			return nil, fmt.Errorf("kline %s: %w", m.Symbol, err)
		}
		sym := m.Symbol
		if sym == "" {
			sym = m.Kline.Symbol
		}
		return models.Kline{
			Symbol:     sym,
			Close:      closePrice,
			Volume:     vol,
			TradeCount: m.Kline.Trades,
			Closed:     m.Kline.Closed,
			Time:       eventTime(m.Kline.End, m.EventTime, recv),
		}, nil

	case "":
		return nil, fmt.Errorf("%w: untagged payload", errUnsupportedEvent)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEvent, kind)
	}
}

func has(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func priceQty(p, q string) (float64, float64, error) {
	price, err := strconv.ParseFloat(p, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("price %q: %w", p, err)
	}
	qty, err := strconv.ParseFloat(q, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("quantity %q: %w", q, err)
	}
	return price, qty, nil
}

func levels(raw [][]string) ([]models.PriceLevel, error) {
	out := make([]models.PriceLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			return nil, fmt.Errorf("level %v: want [price, qty]", l)
		}
		p, q, err := priceQty(l[0], l[1])
		if err != nil {
			return nil, err
		}
		out = append(out, models.PriceLevel{Price: p, Quantity: q})
	}
	return out, nil
}

// eventTime prefers the first non-zero millisecond timestamp, then the receive time.
func eventTime(primary, fallback int64, recv time.Time) time.Time {
	if t := util.FromMillis(primary); !t.IsZero() {
		return t
	}
	if t := util.FromMillis(fallback); !t.IsZero() {
		return t
	}
	return recv
}
