// Package pipeline wires every other internal package into the running
// system spec.md describes: one venue session per exchange, fanned into a
// shared bus, consumed into per-(exchange,ticker) order books and trade
// tapes, evaluated by the arbitrage monitor and spoofing detector, and
// flushed through buffered sinks into the analytics store.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arbiq/marketfeed/internal/arbitrage"
	"github.com/arbiq/marketfeed/internal/book"
	"github.com/arbiq/marketfeed/internal/bus"
	"github.com/arbiq/marketfeed/internal/cache"
	"github.com/arbiq/marketfeed/internal/canon"
	"github.com/arbiq/marketfeed/internal/config"
	"github.com/arbiq/marketfeed/internal/exchangeinfo"
	"github.com/arbiq/marketfeed/internal/fanin"
	"github.com/arbiq/marketfeed/internal/metrics"
	"github.com/arbiq/marketfeed/internal/net/ratelimit"
	"github.com/arbiq/marketfeed/internal/session"
	"github.com/arbiq/marketfeed/internal/session/binance"
	"github.com/arbiq/marketfeed/internal/session/kraken"
	"github.com/arbiq/marketfeed/internal/sink"
	"github.com/arbiq/marketfeed/internal/spoof"
	"github.com/arbiq/marketfeed/internal/stats"
	"github.com/arbiq/marketfeed/internal/store"
	"github.com/arbiq/marketfeed/internal/supervisor"
	"github.com/arbiq/marketfeed/internal/tape"
)

// defaultSpoofWindow is used when config.SpoofConfig.WindowMS is unset.
const defaultSpoofWindow = 60 * time.Second

// defaultSpoofDepth bounds how many price levels per side the spoofing
// detector evaluates when a ticker's configured depth is 0 or unset.
const defaultSpoofDepth = 10

// analysisInterval is how often arbitrage evaluation, spoofing detection,
// and sink flushing run.
const analysisInterval = 1 * time.Second

// symbolRefreshInterval is how often the Binance tradable-symbol set is
// refreshed and checked against the configured tickers.
const symbolRefreshInterval = 5 * time.Minute

// Deps are the externally constructed collaborators a Pipeline is built
// from. Repos and the symbol cache may be nil in tests that don't exercise
// persistence or caching.
type Deps struct {
	Bus          *bus.Bus
	Metrics      *metrics.Registry
	Limiter      *ratelimit.Limiter
	LevelRepo    store.LevelRepo
	TradeRepo    store.TradeRepo
	ArbitrageRepo store.ArbitrageRepo
	SymbolCache  *cache.SymbolCache
	ExchangeInfo *exchangeinfo.Fetcher
	Logger       zerolog.Logger
}

// instrument holds every piece of per-(exchange,ticker) state the
// consumer loop and the analysis loop operate on.
type instrument struct {
	exchange canon.Exchange
	ticker   *string

	book  *book.OrderBook
	tape  *tape.Store
	ticks *stats.LevelTicks

	quantity *stats.QuantityStats
	trades   *stats.TradeStats

	// spoofCfg is re-wrapped into a fresh spoof.Detector on every analysis
	// tick with Period set to the current sliding window, since
	// spoof.Config.Period is fixed at construction rather than an argument
	// to Detect.
	spoofCfg    spoof.Config
	spoofWindow time.Duration
}

type instrumentKey struct {
	exchange canon.Exchange
	ticker   string
}

// Pipeline is the fully wired running system.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	exchanges   []canon.Exchange
	instruments map[instrumentKey]*instrument
	arbitrage   map[string]*arbitrage.Monitor

	levelSink     *sink.Buffered[store.LevelRow]
	tradeSink     *sink.Buffered[store.TradeRow]
	arbitrageSink *sink.Buffered[store.ArbitrageRow]

	mu     sync.RWMutex
	states map[canon.Exchange]session.State
}

// Build constructs every instrument, monitor, detector, and sink named by
// cfg, but starts nothing. Call Run to start the venue sessions and
// analysis loops.
func Build(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exchanges, err := cfg.CanonExchanges()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		deps:        deps,
		exchanges:   exchanges,
		instruments: make(map[instrumentKey]*instrument),
		arbitrage:   make(map[string]*arbitrage.Monitor),
		states:      make(map[canon.Exchange]session.State),
	}

	runsBinance, runsKraken := false, false
	for _, ex := range exchanges {
		switch ex {
		case canon.Binance:
			runsBinance = true
		case canon.Kraken:
			runsKraken = true
		}
	}

	for _, tc := range cfg.CanonTickers() {
		tickerBooks := make(map[canon.Exchange]*book.OrderBook, len(exchanges))
		for _, ex := range exchanges {
			inst := p.newInstrument(ex, tc)
			p.instruments[instrumentKey{exchange: ex, ticker: canon.DerefOrEmpty(tc.Ticker)}] = inst
			tickerBooks[ex] = inst.book
		}
		// Cross-venue arbitrage only makes sense when both legs are running;
		// a single-venue deployment has nothing to compare its book against.
		if runsBinance && runsKraken {
			minProfit := cfg.Arbitrage.MinSpreadBps / 10000
			p.arbitrage[canon.DerefOrEmpty(tc.Ticker)] = arbitrage.New(tickerBooks[canon.Binance], tickerBooks[canon.Kraken], minProfit)
		}
	}

	p.levelSink = sink.NewBuffered(256, p.flushLevels)
	p.tradeSink = sink.NewBuffered(256, p.flushTrades)
	p.arbitrageSink = sink.NewBuffered(64, p.flushArbitrage)

	return p, nil
}

func (p *Pipeline) newInstrument(ex canon.Exchange, tc canon.TickerConfig) *instrument {
	depth := tc.DepthValue
	if depth <= 0 {
		depth = defaultSpoofDepth
	}
	b := book.New(ex, tc.Ticker, depth)
	tp := tape.New(ex, tc.Ticker, 4096)
	ticks := stats.NewLevelTicks(256)
	quantity := stats.NewQuantityStats(ticks)
	trades := stats.NewTradeStats(tp)

	window := time.Duration(p.cfg.Spoof.WindowMS) * time.Millisecond
	if window <= 0 {
		window = defaultSpoofWindow
	}
	spoofCfg := spoof.Config{
		SpikeRate:     p.cfg.Spoof.SpikeRate,
		LifetimeRate:  p.cfg.Spoof.LifetimeRate,
		ExecutedRate:  p.cfg.Spoof.ExecutedRate,
		CancelledRate: p.cfg.Spoof.CancelledRate,
		MaxDepth:      depth,
		Sides:         []canon.Side{canon.Buy, canon.Sell},
	}

	return &instrument{
		exchange:    ex,
		ticker:      tc.Ticker,
		book:        b,
		tape:        tp,
		ticks:       ticks,
		quantity:    quantity,
		trades:      trades,
		spoofCfg:    spoofCfg,
		spoofWindow: window,
	}
}

// Run starts a session per configured exchange, the merge/consume loop, and
// the periodic analysis loop. It blocks until ctx is cancelled, then drains
// in-flight sinks and returns.
func (p *Pipeline) Run(ctx context.Context) error {
	base := session.Config{
		Tickers:       p.cfg.CanonTickers(),
		LogLevel:      p.cfg.ZerologLevel(),
		Limiter:       p.deps.Limiter,
		ErrorHandlers: []session.ErrorHandler{p.onSessionError},
	}

	var sources []<-chan canon.Event
	var wg sync.WaitGroup
	runsBinance := false

	for _, ex := range p.exchanges {
		switch ex {
		case canon.Binance:
			runsBinance = true
			binanceCfg := base
			binanceCfg.OnStateChange = func(s session.State) { p.setState(canon.Binance, s) }
			if p.deps.ExchangeInfo != nil {
				binanceCfg.SymbolValidator = p.validateBinanceSymbols
			}
			sources = append(sources, supervisor.New("binance", func() session.Connector {
				return session.NewDriver(binance.Venue{}, binanceCfg)
			}, p.cfg.CanonBreaker(), p.deps.Limiter).Run(ctx))

		case canon.Kraken:
			krakenCfg := base
			krakenCfg.OnStateChange = func(s session.State) { p.setState(canon.Kraken, s) }
			sources = append(sources, supervisor.New("kraken", func() session.Connector {
				return session.NewDriver(kraken.Venue{}, krakenCfg)
			}, p.cfg.CanonBreaker(), p.deps.Limiter).Run(ctx))
		}
	}

	merged := fanin.Merge(ctx, sources...)

	if runsBinance && p.deps.ExchangeInfo != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.symbolRefreshLoop(ctx)
		}()
	}

	// consume owns every instrument's book, tape, and tick history; the
	// analysis ticker fires on the same goroutine so Detect/Evaluate never
	// race against a concurrent route() call (book.OrderBook, tape.Store,
	// and stats.LevelTicks are single-consumer types, not safe to share).
	p.consume(ctx, merged)

	wg.Wait()

	p.flushAll()
	return nil
}

func (p *Pipeline) consume(ctx context.Context, events <-chan canon.Event) {
	ticker := time.NewTicker(analysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-events:
			if !ok {
				return
			}
			p.route(e)
			p.deps.Bus.Publish(e)

		case now := <-ticker.C:
			ts := canon.TimestampMS(now.UnixMilli())
			p.evaluateArbitrage(ts)
			p.evaluateSpoof(ts)
			p.flushAll()
		}
	}
}

func (p *Pipeline) route(e canon.Event) {
	switch {
	case e.Level != nil:
		inst := p.lookup(e.Level.Exchange, canon.DerefOrEmpty(e.Level.Ticker))
		if inst == nil {
			return
		}
		inst.book.UpdateOrMiss(*e.Level)
		inst.ticks.Record(*e.Level)
		if p.deps.Metrics != nil {
			p.deps.Metrics.EventsIngested.WithLabelValues(e.Level.Exchange.String(), "level").Inc()
		}
		p.pushLevelRow(inst, *e.Level)

	case e.Trade != nil:
		inst := p.lookup(e.Trade.Exchange, canon.DerefOrEmpty(e.Trade.Ticker))
		if inst == nil {
			return
		}
		inst.tape.UpdateOrMiss(*e.Trade)
		if p.deps.Metrics != nil {
			p.deps.Metrics.EventsIngested.WithLabelValues(e.Trade.Exchange.String(), "trade").Inc()
		}
		p.pushTradeRow(inst, *e.Trade)
	}
}

func (p *Pipeline) lookup(ex canon.Exchange, ticker string) *instrument {
	return p.instruments[instrumentKey{exchange: ex, ticker: ticker}]
}

func (p *Pipeline) pushLevelRow(inst *instrument, e canon.LevelUpdated) {
	if p.levelSink == nil {
		return
	}
	if err := p.levelSink.Push(store.LevelRow{
		Exchange:  inst.exchange.Code(),
		Ticker:    canon.DerefOrEmpty(inst.ticker),
		Side:      e.Side.Code(),
		Price:     uint64(e.Price),
		Quantity:  uint64(e.Quantity),
		Timestamp: uint64(e.Timestamp),
		Received:  uint64(e.Received),
	}); err != nil {
		p.countFlush("levels", "error")
		p.deps.Logger.Error().Err(err).Msg("level sink flush failed")
	}
}

func (p *Pipeline) pushTradeRow(inst *instrument, e canon.TradeEvent) {
	if p.tradeSink == nil {
		return
	}
	if err := p.tradeSink.Push(store.TradeRow{
		Exchange:    inst.exchange.Code(),
		Ticker:      canon.DerefOrEmpty(inst.ticker),
		Price:       uint64(e.Price),
		Quantity:    uint64(e.Quantity),
		Timestamp:   uint64(e.Timestamp),
		Received:    uint64(e.Received),
		MarketMaker: e.MarketMaker.Code(),
	}); err != nil {
		p.countFlush("trades", "error")
		p.deps.Logger.Error().Err(err).Msg("trade sink flush failed")
	}
}

func (p *Pipeline) evaluateArbitrage(now canon.TimestampMS) {
	for ticker, monitor := range p.arbitrage {
		signal, ok := monitor.Evaluate(now)
		if !ok {
			continue
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.ArbitrageSignals.WithLabelValues(signal.BuyLeg.Exchange.String(), signal.SellLeg.Exchange.String()).Inc()
		}
		p.deps.Logger.Info().
			Str("ticker", ticker).
			Str("buy_exchange", signal.BuyLeg.Exchange.String()).
			Str("sell_exchange", signal.SellLeg.Exchange.String()).
			Float64("profit_pct", signal.ProfitPct).
			Msg("arbitrage signal")

		if p.arbitrageSink == nil {
			continue
		}
		if err := p.arbitrageSink.Push(store.ArbitrageRow{
			Ticker:       ticker,
			BuyExchange:  signal.BuyLeg.Exchange.Code(),
			SellExchange: signal.SellLeg.Exchange.Code(),
			BuyPrice:     uint64(signal.BuyLeg.Price),
			SellPrice:    uint64(signal.SellLeg.Price),
			SpreadBps:    signal.ProfitPct * 10000,
			Timestamp:    uint64(signal.Timestamp),
		}); err != nil {
			p.countFlush("arbitrage", "error")
			p.deps.Logger.Error().Err(err).Msg("arbitrage sink flush failed")
		}
	}
}

func (p *Pipeline) evaluateSpoof(now canon.TimestampMS) {
	for _, inst := range p.instruments {
		cfg := inst.spoofCfg
		cfg.Period = canon.Period{
			Start: now - canon.TimestampMS(inst.spoofWindow.Milliseconds()),
			End:   now,
		}
		detector := spoof.New(inst.book, inst.quantity, inst.trades, cfg)
		detections := detector.Detect()
		for _, d := range detections {
			if p.deps.Metrics != nil {
				p.deps.Metrics.SpoofDetections.WithLabelValues(inst.exchange.String(), d.Side.String()).Inc()
			}
			p.deps.Logger.Warn().
				Str("exchange", inst.exchange.String()).
				Str("ticker", canon.DerefOrEmpty(inst.ticker)).
				Str("side", d.Side.String()).
				Uint64("price", uint64(d.Price)).
				Uint64("quantity", uint64(d.Quantity)).
				Msg("suspected spoofing detected")
		}
	}
}

func (p *Pipeline) flushAll() {
	if p.levelSink != nil {
		if err := p.levelSink.Flush(); err != nil {
			p.countFlush("levels", "error")
			p.deps.Logger.Error().Err(err).Msg("level sink periodic flush failed")
		} else {
			p.countFlush("levels", "ok")
		}
	}
	if p.tradeSink != nil {
		if err := p.tradeSink.Flush(); err != nil {
			p.countFlush("trades", "error")
			p.deps.Logger.Error().Err(err).Msg("trade sink periodic flush failed")
		} else {
			p.countFlush("trades", "ok")
		}
	}
	if p.arbitrageSink != nil {
		if err := p.arbitrageSink.Flush(); err != nil {
			p.countFlush("arbitrage", "error")
			p.deps.Logger.Error().Err(err).Msg("arbitrage sink periodic flush failed")
		} else {
			p.countFlush("arbitrage", "ok")
		}
	}
}

func (p *Pipeline) countFlush(name, result string) {
	if p.deps.Metrics == nil {
		return
	}
	p.deps.Metrics.SinkFlushes.WithLabelValues(name, result).Inc()
}

func (p *Pipeline) flushLevels(rows []store.LevelRow) error {
	if p.deps.LevelRepo == nil {
		return nil
	}
	return p.deps.LevelRepo.InsertBatch(context.Background(), rows)
}

func (p *Pipeline) flushTrades(rows []store.TradeRow) error {
	if p.deps.TradeRepo == nil {
		return nil
	}
	return p.deps.TradeRepo.InsertBatch(context.Background(), rows)
}

func (p *Pipeline) flushArbitrage(rows []store.ArbitrageRow) error {
	if p.deps.ArbitrageRepo == nil {
		return nil
	}
	return p.deps.ArbitrageRepo.InsertBatch(context.Background(), rows)
}

func (p *Pipeline) onSessionError(err error) {
	p.deps.Logger.Warn().Err(err).Msg("session error")
}

func (p *Pipeline) setState(ex canon.Exchange, state session.State) {
	p.mu.Lock()
	p.states[ex] = state
	p.mu.Unlock()
	if p.deps.Metrics != nil {
		p.deps.Metrics.SessionState.WithLabelValues(ex.String()).Set(float64(state))
	}
}

// Healthy reports overall health and per-exchange session states, in the
// shape internal/httpapi.HealthFunc expects.
func (p *Pipeline) Healthy() (bool, map[string]string) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	states := make(map[string]string, len(p.states))
	healthy := true
	for ex, st := range p.states {
		states[ex.String()] = st.String()
		if st == session.Closed {
			healthy = false
		}
	}
	return healthy, states
}

// validateBinanceSymbols is wired as Binance's session.Config.SymbolValidator:
// every configured ticker must appear in Binance's exchangeInfo tradable
// symbol set before the session is allowed to reach Running. The Redis
// symbol cache is read first; exchangeInfo is fetched only on a cache miss.
func (p *Pipeline) validateBinanceSymbols(ctx context.Context, tickers []canon.TickerConfig) error {
	var symbols []string
	cached := false
	if p.deps.SymbolCache != nil {
		symbols, cached = p.deps.SymbolCache.Get(ctx)
	}
	if !cached {
		fetched, err := p.deps.ExchangeInfo.TradableSymbols(ctx)
		if err != nil {
			return fmt.Errorf("fetching exchangeInfo symbols: %w", err)
		}
		symbols = fetched
	}
	tradable := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		tradable[s] = true
	}
	for _, tc := range tickers {
		t := canon.DerefOrEmpty(tc.Ticker)
		if !tradable[t] {
			return fmt.Errorf("%s is not in Binance's tradable symbol set", t)
		}
	}
	return nil
}

// symbolRefreshLoop periodically fetches Binance's tradable symbol set,
// caches it, and logs when a configured ticker has fallen out of it.
func (p *Pipeline) symbolRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(symbolRefreshInterval)
	defer ticker.Stop()

	p.refreshSymbols(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshSymbols(ctx)
		}
	}
}

func (p *Pipeline) refreshSymbols(ctx context.Context) {
	symbols, err := p.deps.ExchangeInfo.TradableSymbols(ctx)
	if err != nil {
		p.deps.Logger.Warn().Err(err).Msg("exchange info refresh failed")
		return
	}

	tradable := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		tradable[s] = true
	}
	for _, tc := range p.cfg.CanonTickers() {
		t := canon.DerefOrEmpty(tc.Ticker)
		if !tradable[t] {
			p.deps.Logger.Warn().Str("ticker", t).Msg("configured ticker not in Binance's tradable symbol set")
		}
	}

	if p.deps.SymbolCache != nil {
		if err := p.deps.SymbolCache.Set(ctx, symbols); err != nil {
			p.deps.Logger.Warn().Err(err).Msg("symbol cache refresh failed")
		}
	}
}
