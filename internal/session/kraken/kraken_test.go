package kraken

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/session"
)

func ticker(sym string) canon.TickerConfig {
	s := sym
	return canon.TickerConfig{
		Ticker:             &s,
		PriceMultiplier:    100,
		QuantityMultiplier: 1000,
		SubscribeDepth:     true,
		SubscribeTrades:    true,
		DepthValue:         20,
	}
}

func TestDialURLIsFixed(t *testing.T) {
	url, err := Venue{}.DialURL(session.Config{})
	require.NoError(t, err)
	assert.Equal(t, "wss://ws.kraken.com/v2", url)
}

func TestSubscribeFramesOneBookOneTrade(t *testing.T) {
	cfg := session.Config{Tickers: []canon.TickerConfig{ticker("xbt/usd")}}
	frames, err := Venue{}.SubscribeFrames(cfg)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	var book subscribeRequest
	require.NoError(t, json.Unmarshal(frames[0], &book))
	assert.Equal(t, "subscribe", book.Method)
	assert.Equal(t, "book", book.Params.Channel)
	assert.Equal(t, []string{"XBT/USD"}, book.Params.Symbol, "symbol must be uppercased")
	assert.Equal(t, 25, book.Params.Depth)
	assert.False(t, book.Params.Snapshot)

	var trade subscribeRequest
	require.NoError(t, json.Unmarshal(frames[1], &trade))
	assert.Equal(t, "trade", trade.Params.Channel)
}

func TestSubscribeFramesRestrictsDepthToTenOrTwentyFive(t *testing.T) {
	cfg := session.Config{Tickers: []canon.TickerConfig{{
		Ticker: ticker("XBT/USD").Ticker, SubscribeDepth: true, DepthValue: 5,
	}}}
	frames, err := Venue{}.SubscribeFrames(cfg)
	require.NoError(t, err)

	var book subscribeRequest
	require.NoError(t, json.Unmarshal(frames[0], &book))
	assert.Equal(t, 10, book.Params.Depth)
}

func TestSubscribeFramesRejectsEmptyTickers(t *testing.T) {
	_, err := Venue{}.SubscribeFrames(session.Config{})
	assert.ErrorIs(t, err, canon.ErrBuilder)
}

func TestTranslateBookSnapshot(t *testing.T) {
	cfg := session.Config{Tickers: []canon.TickerConfig{ticker("XBT/USD")}}
	frame := []byte(`{"channel":"book","type":"snapshot","data":[{"symbol":"XBT/USD",` +
		`"bids":[{"price":5541.2,"qty":1.529}],"asks":[{"price":5541.3,"qty":2.507}],` +
		`"timestamp":"2018-08-18T17:04:08.123678Z"}]}`)

	events, err := Venue{}.Translate(cfg, frame)
	require.NoError(t, err)
	require.Len(t, events, 2)

	bid := events[0].Level
	require.NotNil(t, bid)
	assert.Equal(t, canon.Buy, bid.Side)
	assert.Equal(t, canon.Price(554120), bid.Price)

	ask := events[1].Level
	require.NotNil(t, ask)
	assert.Equal(t, canon.Sell, ask.Side)
}

func TestTranslateTradeFrame(t *testing.T) {
	cfg := session.Config{Tickers: []canon.TickerConfig{ticker("XBT/USD")}}
	frame := []byte(`{"channel":"trade","type":"update","data":[{"symbol":"XBT/USD",` +
		`"side":"sell","price":5541.2,"qty":0.1585,"ord_type":"limit","trade_id":1,` +
		`"timestamp":"2018-08-18T17:00:57.321597Z"}]}`)

	events, err := Venue{}.Translate(cfg, frame)
	require.NoError(t, err)
	require.Len(t, events, 1)
	trade := events[0].Trade
	require.NotNil(t, trade)
	assert.Equal(t, canon.Price(554120), trade.Price)
	assert.Equal(t, canon.Buy, trade.MarketMaker, "\"sell\" is the aggressor side, hit the bid")
}

func TestTranslateControlEventWithErrorIsExchangeError(t *testing.T) {
	frame := []byte(`{"method":"subscribe","success":false,"error":"Currency pair not supported"}`)
	_, err := Venue{}.Translate(session.Config{}, frame)
	assert.ErrorIs(t, err, canon.ErrExchange)
}

func TestTranslateIgnoresStatusAndHeartbeat(t *testing.T) {
	status := []byte(`{"channel":"status","type":"update","data":[{"api_version":"v2","system":"online"}]}`)
	events, err := Venue{}.Translate(session.Config{}, status)
	require.NoError(t, err)
	assert.Nil(t, events)

	heartbeat := []byte(`{"channel":"heartbeat"}`)
	events, err = Venue{}.Translate(session.Config{}, heartbeat)
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestTranslateIgnoresUnsubscribedSymbol(t *testing.T) {
	cfg := session.Config{Tickers: []canon.TickerConfig{ticker("XBT/USD")}}
	frame := []byte(`{"channel":"trade","type":"update","data":[{"symbol":"ETH/USD",` +
		`"side":"buy","price":100,"qty":1,"timestamp":"2018-08-18T17:00:57.321597Z"}]}`)
	events, err := Venue{}.Translate(cfg, frame)
	require.NoError(t, err)
	assert.Nil(t, events)
}
