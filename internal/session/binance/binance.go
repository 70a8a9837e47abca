// Package binance implements session.Venue for Binance's combined-stream
// websocket API. Binance encodes its subscription entirely in the dial URL
// and sends no post-connect frames, unlike Kraken's event-frame protocol.
package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/session"
)

const baseURL = "wss://stream.binance.com:9443/stream"

// Venue implements session.Venue for Binance.
type Venue struct{}

func (Venue) Name() string { return "binance" }

// DialURL builds a single combined-stream URL covering every subscribed
// ticker's depth and trade streams, e.g.
// wss://stream.binance.com:9443/stream?streams=btcusdt@depth@100ms/btcusdt@aggTrade
//
// aggTrade, not the raw trade stream: it folds same-taker fills at the same
// price into one event and is the stream Binance recommends for this use.
func (Venue) DialURL(cfg session.Config) (string, error) {
	var streams []string
	for _, t := range cfg.Tickers {
		symbol := strings.ToLower(strings.ReplaceAll(canon.DerefOrEmpty(t.Ticker), "/", ""))
		if t.SubscribeDepth {
			streams = append(streams, symbol+"@depth@100ms")
		}
		if t.SubscribeTrades {
			streams = append(streams, symbol+"@aggTrade")
		}
	}
	if len(streams) == 0 {
		return "", fmt.Errorf("binance: %w: no ticker requests depth or trades", canon.ErrBuilder)
	}
	return fmt.Sprintf("%s?streams=%s", baseURL, strings.Join(streams, "/")), nil
}

// SubscribeFrames is empty: Binance's combined stream requires no frames
// after connecting.
func (Venue) SubscribeFrames(session.Config) ([][]byte, error) {
	return nil, nil
}

// envelope is Binance's combined-stream wrapper: {"stream": "...", "data": {...}}.
type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthUpdate struct {
	EventType string     `json:"e"`
	Symbol    string     `json:"s"`
	EventTime int64      `json:"E"`
	Bids      [][]string `json:"b"`
	Asks      [][]string `json:"a"`
}

type tradeUpdate struct {
	EventType    string `json:"e"`
	Symbol       string `json:"s"`
	TradeTime    int64  `json:"T"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	IsBuyerMaker bool   `json:"m"`
}

func (Venue) Translate(cfg session.Config, frame []byte) ([]canon.Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("binance: %w: decoding stream envelope: %v", canon.ErrParsing, err)
	}

	symbol := strings.ToLower(streamSymbol(env.Stream))
	tc, ok := findTicker(cfg, symbol)
	if !ok {
		return nil, nil
	}

	switch {
	case strings.Contains(env.Stream, "@depth"):
		return translateDepth(tc, env.Data)
	case strings.Contains(env.Stream, "@aggTrade"):
		return translateTrade(tc, env.Data)
	default:
		return nil, nil
	}
}

func streamSymbol(stream string) string {
	idx := strings.Index(stream, "@")
	if idx < 0 {
		return stream
	}
	return stream[:idx]
}

func findTicker(cfg session.Config, lowerSymbol string) (canon.TickerConfig, bool) {
	for _, t := range cfg.Tickers {
		normalized := strings.ToLower(strings.ReplaceAll(canon.DerefOrEmpty(t.Ticker), "/", ""))
		if normalized == lowerSymbol {
			return t, true
		}
	}
	return canon.TickerConfig{}, false
}

func translateDepth(tc canon.TickerConfig, data json.RawMessage) ([]canon.Event, error) {
	var upd depthUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return nil, fmt.Errorf("binance: %w: decoding depth payload: %v", canon.ErrParsing, err)
	}
	ts := canon.TimestampMS(upd.EventTime)

	events := make([]canon.Event, 0, len(upd.Bids)+len(upd.Asks))
	for _, lvl := range upd.Bids {
		ev, err := toLevelUpdated(tc, canon.Buy, lvl, ts)
		if err != nil {
			return nil, err
		}
		events = append(events, canon.Event{Level: &ev})
	}
	for _, lvl := range upd.Asks {
		ev, err := toLevelUpdated(tc, canon.Sell, lvl, ts)
		if err != nil {
			return nil, err
		}
		events = append(events, canon.Event{Level: &ev})
	}
	return events, nil
}

func toLevelUpdated(tc canon.TickerConfig, side canon.Side, lvl []string, ts canon.TimestampMS) (canon.LevelUpdated, error) {
	if len(lvl) < 2 {
		return canon.LevelUpdated{}, fmt.Errorf("binance: %w: level entry missing price/quantity", canon.ErrParsing)
	}
	price, err := scaled(lvl[0], tc.PriceMultiplier)
	if err != nil {
		return canon.LevelUpdated{}, fmt.Errorf("binance: %w: parsing price: %v", canon.ErrParsing, err)
	}
	qty, err := scaled(lvl[1], tc.QuantityMultiplier)
	if err != nil {
		return canon.LevelUpdated{}, fmt.Errorf("binance: %w: parsing quantity: %v", canon.ErrParsing, err)
	}
	return canon.LevelUpdated{
		Exchange:  canon.Binance,
		Ticker:    tc.Ticker,
		Side:      side,
		Price:     canon.Price(price),
		Quantity:  canon.Quantity(qty),
		Timestamp: ts,
	}, nil
}

func translateTrade(tc canon.TickerConfig, data json.RawMessage) ([]canon.Event, error) {
	var t tradeUpdate
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("binance: %w: decoding trade payload: %v", canon.ErrParsing, err)
	}
	price, err := scaled(t.Price, tc.PriceMultiplier)
	if err != nil {
		return nil, fmt.Errorf("binance: %w: parsing trade price: %v", canon.ErrParsing, err)
	}
	qty, err := scaled(t.Quantity, tc.QuantityMultiplier)
	if err != nil {
		return nil, fmt.Errorf("binance: %w: parsing trade quantity: %v", canon.ErrParsing, err)
	}
	// IsBuyerMaker true means the buyer was resting and the seller was the
	// aggressor: the trade executed against the bid.
	mm := canon.Sell
	if t.IsBuyerMaker {
		mm = canon.Buy
	}
	return []canon.Event{{Trade: &canon.TradeEvent{
		Exchange:    canon.Binance,
		Ticker:      tc.Ticker,
		Price:       canon.Price(price),
		Quantity:    canon.Quantity(qty),
		Timestamp:   canon.TimestampMS(t.TradeTime),
		MarketMaker: mm,
	}}}, nil
}

func scaled(s string, multiplier uint64) (uint64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return uint64(f*float64(multiplier) + 0.5), nil
}
