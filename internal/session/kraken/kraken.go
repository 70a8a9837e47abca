// Package kraken implements session.Venue for Kraken's public websocket
// v2 API. Unlike Binance's combined-stream URL, Kraken requires one
// "subscribe" method frame per channel sent after the connection opens,
// and replies with JSON objects (never the heterogeneous arrays of the
// deprecated v1 API).
package kraken

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/session"
)

const wsURL = "wss://ws.kraken.com/v2"

// Venue implements session.Venue for Kraken.
type Venue struct{}

func (Venue) Name() string { return "kraken" }

func (Venue) DialURL(session.Config) (string, error) {
	return wsURL, nil
}

type subscribeParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol"`
	Depth    int      `json:"depth,omitempty"`
	Snapshot bool     `json:"snapshot"`
}

type subscribeRequest struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

// SubscribeFrames builds one "subscribe" frame per channel in use across
// the configured tickers. Kraken v2 symbols are the uppercased ticker.
func (Venue) SubscribeFrames(cfg session.Config) ([][]byte, error) {
	if len(cfg.Tickers) == 0 {
		return nil, fmt.Errorf("kraken: %w: no tickers configured", canon.ErrBuilder)
	}

	var frames [][]byte

	var bookSymbols []string
	for _, t := range cfg.Tickers {
		if t.SubscribeDepth {
			bookSymbols = append(bookSymbols, wireSymbol(t))
		}
	}
	if len(bookSymbols) > 0 {
		frame, err := json.Marshal(subscribeRequest{
			Method: "subscribe",
			Params: subscribeParams{
				Channel:  "book",
				Symbol:   bookSymbols,
				Depth:    depthFor(cfg),
				Snapshot: false,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("kraken: %w: marshaling book subscription: %v", canon.ErrBuilder, err)
		}
		frames = append(frames, frame)
	}

	var tradeSymbols []string
	for _, t := range cfg.Tickers {
		if t.SubscribeTrades {
			tradeSymbols = append(tradeSymbols, wireSymbol(t))
		}
	}
	if len(tradeSymbols) > 0 {
		frame, err := json.Marshal(subscribeRequest{
			Method: "subscribe",
			Params: subscribeParams{
				Channel:  "trade",
				Symbol:   tradeSymbols,
				Snapshot: false,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("kraken: %w: marshaling trade subscription: %v", canon.ErrBuilder, err)
		}
		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("kraken: %w: no ticker requests depth or trades", canon.ErrBuilder)
	}
	return frames, nil
}

func wireSymbol(t canon.TickerConfig) string {
	return strings.ToUpper(canon.DerefOrEmpty(t.Ticker))
}

// depthFor returns the book depth Kraken should stream at. v2 only accepts
// {10,25} for the book channel; the smallest tier that covers every
// configured ticker's requested depth is used.
func depthFor(cfg session.Config) int {
	const defaultDepth = 10
	max := 0
	for _, t := range cfg.Tickers {
		if t.DepthValue > max {
			max = t.DepthValue
		}
	}
	for _, tier := range []int{10, 25} {
		if tier >= max {
			return tier
		}
	}
	return defaultDepth
}

// frame is the envelope shape of every v2 server message: channel data
// frames carry "channel"/"type"/"data"; method acks and errors carry
// "method"/"success"/"error" instead and have no "channel" field.
type frame struct {
	Channel string          `json:"channel"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (Venue) Translate(cfg session.Config, raw []byte) ([]canon.Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("kraken: %w: decoding frame: %v", canon.ErrParsing, err)
	}
	if f.Error != "" {
		return nil, fmt.Errorf("kraken: %w: %s", canon.ErrExchange, f.Error)
	}

	switch f.Channel {
	case "book":
		return translateBookData(cfg, f.Data)
	case "trade":
		return translateTradeData(cfg, f.Data)
	case "status", "heartbeat":
		return nil, nil
	default:
		// Subscribe acks and any other method response: nothing to translate.
		return nil, nil
	}
}

func findTicker(cfg session.Config, symbol string) (canon.TickerConfig, bool) {
	for _, t := range cfg.Tickers {
		if wireSymbol(t) == symbol {
			return t, true
		}
	}
	return canon.TickerConfig{}, false
}

type priceLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

type bookEntry struct {
	Symbol    string       `json:"symbol"`
	Bids      []priceLevel `json:"bids"`
	Asks      []priceLevel `json:"asks"`
	Timestamp string       `json:"timestamp"`
}

func translateBookData(cfg session.Config, data json.RawMessage) ([]canon.Event, error) {
	var entries []bookEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("kraken: %w: decoding book data: %v", canon.ErrParsing, err)
	}

	var events []canon.Event
	for _, entry := range entries {
		tc, ok := findTicker(cfg, entry.Symbol)
		if !ok {
			continue
		}
		ts, err := parseTimestamp(entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("kraken: %w: parsing book timestamp: %v", canon.ErrParsing, err)
		}
		for _, lvl := range entry.Bids {
			events = append(events, canon.Event{Level: toLevelUpdated(tc, canon.Buy, lvl, ts)})
		}
		for _, lvl := range entry.Asks {
			events = append(events, canon.Event{Level: toLevelUpdated(tc, canon.Sell, lvl, ts)})
		}
	}
	return events, nil
}

func toLevelUpdated(tc canon.TickerConfig, side canon.Side, lvl priceLevel, ts canon.TimestampMS) *canon.LevelUpdated {
	ev := canon.LevelUpdated{
		Exchange:  canon.Kraken,
		Ticker:    tc.Ticker,
		Side:      side,
		Price:     canon.Price(scaled(lvl.Price, tc.PriceMultiplier)),
		Quantity:  canon.Quantity(scaled(lvl.Qty, tc.QuantityMultiplier)),
		Timestamp: ts,
	}
	return &ev
}

type tradeEntry struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Timestamp string  `json:"timestamp"`
}

func translateTradeData(cfg session.Config, data json.RawMessage) ([]canon.Event, error) {
	var entries []tradeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("kraken: %w: decoding trade data: %v", canon.ErrParsing, err)
	}

	var events []canon.Event
	for _, entry := range entries {
		tc, ok := findTicker(cfg, entry.Symbol)
		if !ok {
			continue
		}
		ts, err := parseTimestamp(entry.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("kraken: %w: parsing trade timestamp: %v", canon.ErrParsing, err)
		}
		// side is the taker's side: "sell" hit the resting bid, so the
		// maker side was Buy; "buy" lifted the resting ask, maker was Sell.
		mm := canon.Sell
		if entry.Side == "sell" {
			mm = canon.Buy
		}
		events = append(events, canon.Event{Trade: &canon.TradeEvent{
			Exchange:    canon.Kraken,
			Ticker:      tc.Ticker,
			Price:       canon.Price(scaled(entry.Price, tc.PriceMultiplier)),
			Quantity:    canon.Quantity(scaled(entry.Qty, tc.QuantityMultiplier)),
			Timestamp:   ts,
			MarketMaker: mm,
		}})
	}
	return events, nil
}

func scaled(f float64, multiplier uint64) uint64 {
	return uint64(f*float64(multiplier) + 0.5)
}

func parseTimestamp(s string) (canon.TimestampMS, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return canon.TimestampMS(t.UnixMilli()), nil
}
