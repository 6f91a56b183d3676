package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"datafeed-go/internal/bus"
	"datafeed-go/internal/config"
	"datafeed-go/internal/market"
	"datafeed-go/internal/market/parsers"
	"datafeed-go/internal/metrics"
	"datafeed-go/internal/wsclient"
	"datafeed-go/pkg/log"

	"github.com/google/uuid"
)

// GenericAdapter реализует Adapter для любой биржи из таблицы venues
type GenericAdapter struct {
	venue    *Venue
	id       string
	rest     *CexRestClient
	registry *market.SymbolRegistry
	bus      *bus.MessageBus
	throttle *bus.Throttler
	env      *streamEnv
	socket   socketStreamer // nil, если у биржи нет сокетов
	poller   *pollStreamer
	trader   Trader
	creds    config.Credentials
	maxLimit int
	logger   *log.Logger

	mu      sync.Mutex
	active  bool
	ctx     context.Context
	cancel  context.CancelFunc
	streams map[StreamKey]StreamMode
	bars    map[string]string // listenerID -> символ
	margin  map[string]struct{}
}

// NewGenericAdapter собирает адаптер по описанию биржи
func NewGenericAdapter(venue *Venue, opts Options) *GenericAdapter {
	opts = opts.withDefaults(venue)
	logger := log.New(venue.Name + "_adapter")

	messageBus := bus.New(venue.Name)
	messageBus.OnDrop(func(string) { metrics.BusDrop(venue.Name) })
	throttle := bus.NewThrottler(messageBus, opts.ThrottleInterval)
	throttle.OnFlush(func(string, int) { metrics.ThrottleFlush(venue.Name) })

	socketOpts := []wsclient.Option{
		wsclient.WithReconnectDelay(opts.ReconnectDelay),
		wsclient.WithPingInterval(opts.PingInterval),
	}
	if opts.DebugRaw {
		socketOpts = append(socketOpts, wsclient.WithFrameLogger(NewDebugLogger(venue.Name, true)))
	}

	a := &GenericAdapter{
		venue:    venue,
		id:       opts.ID,
		rest:     NewCexRestClient(venue.Name, opts.RestBase, opts.Rest),
		registry: market.NewSymbolRegistry(),
		bus:      messageBus,
		throttle: throttle,
		creds:    opts.Credentials,
		maxLimit: opts.MaxLimit,
		logger:   logger,
		streams:  make(map[StreamKey]StreamMode),
		bars:     make(map[string]string),
		margin:   make(map[string]struct{}),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	for _, s := range venue.MarginSymbols {
		a.margin[s] = struct{}{}
	}

	a.env = &streamEnv{
		exchange:       venue.Name,
		wsURL:          opts.WsURL,
		logger:         logger,
		bus:            messageBus,
		throttle:       throttle,
		socketOpts:     socketOpts,
		connectPoll:    opts.ConnectPoll,
		connectTimeout: opts.ConnectTimeout,
	}
	a.poller = newPollStreamer(a.env, opts.PollInterval)
	a.poller.fetchTrades = a.GetTrades
	a.poller.fetchBook = a.GetOrderbook

	switch venue.socketMode() {
	case StreamPerSymbol:
		a.socket = newBinanceStreamer(a.env)
	case StreamChannels:
		a.socket = newBitfinexStreamer(a.env)
	case StreamTable:
		a.socket = newBitmexStreamer(a.env)
	}

	switch venue.Trader {
	case TraderBinance:
		a.trader = newBinanceTrader(opts.Credentials, opts.TradeBase)
	case TraderCoinDCX:
		a.trader = newCoinDCXTrader(opts.Credentials, a.rest)
	default:
		a.trader = noTrader{creds: opts.Credentials}
	}
	return a
}

func (a *GenericAdapter) ID() string           { return a.id }
func (a *GenericAdapter) ExchangeName() string { return a.venue.Name }
func (a *GenericAdapter) Bus() *bus.MessageBus { return a.bus }

func (a *GenericAdapter) SupportedResolutions() []string {
	return a.venue.Resolutions.SupportedResolutions()
}

func (a *GenericAdapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return nil
	}
	if a.ctx.Err() != nil {
		a.ctx, a.cancel = context.WithCancel(context.Background())
	}
	a.active = true
	a.logger.Info("[%s_ADAPTER] started (rest=%s, stream=%s/%s)", strings.ToUpper(a.venue.Name),
		a.rest.BaseURL(), a.venue.TradeStream, a.venue.BookStream)
	return nil
}

// Stop закрывает сокеты и опросы, публикует накопленные пачки
func (a *GenericAdapter) Stop() error {
	a.mu.Lock()
	a.active = false
	a.cancel()
	a.streams = make(map[StreamKey]StreamMode)
	a.bars = make(map[string]string)
	a.mu.Unlock()

	if a.socket != nil {
		a.socket.close()
	}
	a.poller.close()
	a.throttle.Flush()
	a.reportStreams()
	a.logger.Info("[%s_ADAPTER] stopped", strings.ToUpper(a.venue.Name))
	return nil
}

func (a *GenericAdapter) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// venueSymbol переводит BASE/QUOTE в формат биржи; строки без "/" считаются уже в формате биржи
func (a *GenericAdapter) venueSymbol(symbol string) (string, error) {
	if !strings.Contains(symbol, "/") {
		return strings.ToUpper(symbol), nil
	}
	return a.registry.ExchangeSymbol(a.venue.Name, symbol)
}

// --- история ---

func (a *GenericAdapter) DatafeedConfig() market.DatafeedConfig {
	return market.NewDatafeedConfig(a.SupportedResolutions())
}

func (a *GenericAdapter) ResolveSymbol(symbol string) market.SymbolInfo {
	return market.ResolveSymbol(a.venue.Name, symbol, a.SupportedResolutions())
}

func (a *GenericAdapter) HistoryDepth(resolution string) (market.HistoryDepth, bool) {
	return market.CalculateHistoryDepth(resolution, a.maxLimit, a.venue.DepthOverrides)
}

func (a *GenericAdapter) GetHistory(ctx context.Context, symbol, resolution string, from, to int64) (market.HistoryResult, error) {
	if symbol == "" {
		return market.HistoryResult{}, ErrEmptySymbol
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return market.HistoryResult{}, err
	}
	interval := a.venue.Resolutions.Lookup(resolution)
	req := a.venue.HistoryRequest(venueSymbol, interval, from, to)

	body, err := a.rest.GetRaw(ctx, req.Path, req.Query)
	if err != nil {
		metrics.HistoryRequest(a.venue.Name, "error")
		return market.HistoryResult{}, fmt.Errorf("%s history %s %s: %w", a.venue.Name, symbol, resolution, err)
	}
	bars, err := a.venue.DecodeHistory(body)
	if err != nil {
		metrics.HistoryRequest(a.venue.Name, "error")
		return market.HistoryResult{}, fmt.Errorf("%s history %s %s: %w", a.venue.Name, symbol, resolution, err)
	}
	if a.venue.NewestFirst {
		bars = parsers.ReverseBars(bars)
	}

	result := market.NewHistoryResult(bars)
	if result.Meta.NoData {
		metrics.HistoryRequest(a.venue.Name, "empty")
	} else {
		metrics.HistoryRequest(a.venue.Name, "ok")
	}
	a.logger.Debug("[%s_ADAPTER] history %s %s (%s): %d bars", strings.ToUpper(a.venue.Name), symbol, resolution, interval, len(bars))
	return result, nil
}

// --- полное состояние ---

func (a *GenericAdapter) GetTrades(ctx context.Context, symbol string) ([]market.Trade, error) {
	if a.venue.TradesRequest == nil {
		return nil, fmt.Errorf("%s trades: %w", a.venue.Name, ErrNotSupported)
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return nil, err
	}
	req := a.venue.TradesRequest(venueSymbol)
	body, err := a.rest.GetRaw(ctx, req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%s trades %s: %w", a.venue.Name, symbol, err)
	}
	return a.venue.DecodeTrades(body, symbol)
}

func (a *GenericAdapter) GetOrderbook(ctx context.Context, symbol string) (*market.OrderBook, error) {
	if a.venue.BookRequest == nil {
		return nil, fmt.Errorf("%s orderbook: %w", a.venue.Name, ErrNotSupported)
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return nil, err
	}
	req := a.venue.BookRequest(venueSymbol)
	body, err := a.rest.GetRaw(ctx, req.Path, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%s orderbook %s: %w", a.venue.Name, symbol, err)
	}
	return a.venue.DecodeBook(body)
}

// --- потоки ---

func (a *GenericAdapter) StreamTrades(symbol string) error {
	return a.startStream(symbol, market.StreamTrades)
}

func (a *GenericAdapter) StopStreamingTrades(symbol string) error {
	return a.stopStream(symbol, market.StreamTrades)
}

func (a *GenericAdapter) StreamOrderbook(symbol string) error {
	return a.startStream(symbol, market.StreamOrderBook)
}

func (a *GenericAdapter) StopStreamingOrderbook(symbol string) error {
	return a.stopStream(symbol, market.StreamOrderBook)
}

// startStream идемпотентен по (символ, тип). Для сокетных потоков сначала
// асинхронно публикуется полное состояние из REST, затем идут обновления.
func (a *GenericAdapter) startStream(symbol string, kind market.StreamKind) error {
	if symbol == "" {
		return ErrEmptySymbol
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return err
	}
	mode := a.venue.streamMode(kind, venueSymbol)
	if mode == StreamNone {
		return fmt.Errorf("%s %s stream: %w", a.venue.Name, kind, ErrNotSupported)
	}

	key := StreamKey{Exchange: a.venue.Name, Kind: kind, Symbol: symbol}
	a.mu.Lock()
	if _, ok := a.streams[key]; ok {
		a.mu.Unlock()
		return nil
	}
	a.streams[key] = mode
	ctx := a.ctx
	a.mu.Unlock()

	if mode == StreamPoll {
		a.poller.start(symbol, kind)
	} else {
		go a.publishFull(ctx, symbol, kind)
		if err := a.socket.start(symbol, venueSymbol, kind); err != nil {
			a.mu.Lock()
			delete(a.streams, key)
			a.mu.Unlock()
			return fmt.Errorf("%s %s stream %s: %w", a.venue.Name, kind, symbol, err)
		}
	}

	a.reportStreams()
	a.logger.Info("[%s_ADAPTER] %s stream started for %s (%s)", strings.ToUpper(a.venue.Name), kind, symbol, mode)
	return nil
}

// publishFull не отменяется остановкой потока: событие может прийти после stop
func (a *GenericAdapter) publishFull(ctx context.Context, symbol string, kind market.StreamKind) {
	switch kind {
	case market.StreamTrades:
		trades, err := a.GetTrades(ctx, symbol)
		if err != nil {
			a.logger.Warn("[%s_ADAPTER] full trades %s: %v", strings.ToUpper(a.venue.Name), symbol, err)
			return
		}
		a.bus.Publish(market.NewTradeEvent(a.venue.Name, symbol, true, trades))
	case market.StreamOrderBook:
		book, err := a.GetOrderbook(ctx, symbol)
		if err != nil {
			a.logger.Warn("[%s_ADAPTER] full orderbook %s: %v", strings.ToUpper(a.venue.Name), symbol, err)
			return
		}
		a.bus.Publish(market.NewOrderBookEvent(a.venue.Name, symbol, true, book))
	}
}

// stopStream всегда забывает локальное состояние; ошибка отписки только возвращается
func (a *GenericAdapter) stopStream(symbol string, kind market.StreamKind) error {
	key := StreamKey{Exchange: a.venue.Name, Kind: kind, Symbol: symbol}
	a.mu.Lock()
	mode, ok := a.streams[key]
	delete(a.streams, key)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	defer a.reportStreams()

	if mode == StreamPoll {
		a.poller.stop(symbol, kind)
		return nil
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return err
	}
	if err := a.socket.stop(symbol, venueSymbol, kind); err != nil {
		a.logger.Warn("[%s_ADAPTER] unsubscribe %s %s: %v", strings.ToUpper(a.venue.Name), kind, symbol, err)
		return err
	}
	a.logger.Info("[%s_ADAPTER] %s stream stopped for %s", strings.ToUpper(a.venue.Name), kind, symbol)
	return nil
}

func (a *GenericAdapter) ActiveStreams() []StreamKey {
	a.mu.Lock()
	out := make([]StreamKey, 0, len(a.streams))
	for k := range a.streams {
		out = append(out, k)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

func (a *GenericAdapter) reportStreams() {
	counts := map[market.StreamKind]int{market.StreamTrades: 0, market.StreamOrderBook: 0}
	a.mu.Lock()
	for k := range a.streams {
		counts[k.Kind]++
	}
	a.mu.Unlock()
	for kind, n := range counts {
		metrics.SetActiveStreams(a.venue.Name, string(kind), n)
	}
}

// SubscribeBars - свечи по сокету, слушатель идентифицируется listenerID
func (a *GenericAdapter) SubscribeBars(symbol, resolution, listenerID string, onTick func(market.Bar)) (string, error) {
	bs, ok := a.socket.(barStreamer)
	if !ok {
		return "", fmt.Errorf("%s bars: %w", a.venue.Name, ErrNotSupported)
	}
	if symbol == "" {
		return "", ErrEmptySymbol
	}
	if listenerID == "" {
		listenerID = uuid.NewString()
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return "", err
	}
	interval := a.venue.Resolutions.Lookup(resolution)
	if err := bs.subscribeBars(symbol, venueSymbol, interval, listenerID, onTick); err != nil {
		return "", err
	}
	a.mu.Lock()
	a.bars[listenerID] = symbol
	a.mu.Unlock()
	return listenerID, nil
}

func (a *GenericAdapter) UnsubscribeBars(listenerID string) {
	a.mu.Lock()
	_, ok := a.bars[listenerID]
	delete(a.bars, listenerID)
	a.mu.Unlock()
	if !ok {
		return
	}
	if bs, ok := a.socket.(barStreamer); ok {
		bs.unsubscribeBars(listenerID)
	}
}

// --- торговля ---

// ExecuteOrder: сначала ключи, потом ограничения по марже
func (a *GenericAdapter) ExecuteOrder(ctx context.Context, symbol string, req market.OrderRequest) (market.Order, error) {
	if !a.creds.HasKey() {
		return market.Order{}, fmt.Errorf("%s order: %w", a.venue.Name, ErrMissingCredentials)
	}
	if req.Market == market.MarketMargin && !a.AllowsMarginTrading(symbol) {
		return market.Order{}, fmt.Errorf("%s margin trading for %s: %w", a.venue.Name, symbol, ErrNotSupported)
	}
	return a.trader.ExecuteOrder(ctx, symbol, req)
}

func (a *GenericAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return a.trader.CancelOrder(ctx, symbol, orderID)
}

func (a *GenericAdapter) GetOpenOrders(ctx context.Context, symbol string) ([]market.Order, error) {
	return a.trader.GetOpenOrders(ctx, symbol)
}

func (a *GenericAdapter) GetBalances(ctx context.Context) ([]market.Balance, error) {
	return a.trader.GetBalances(ctx)
}

// --- возможности ---

func (a *GenericAdapter) AllowsSpotTrading(string) bool {
	return a.venue.Spot
}

// AllowsMarginTrading - статическое приближение, список обновляет CapabilityMonitor
func (a *GenericAdapter) AllowsMarginTrading(symbol string) bool {
	if a.venue.MarginAll {
		return true
	}
	venueSymbol, err := a.venueSymbol(symbol)
	if err != nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.margin[venueSymbol]
	return ok
}

func (a *GenericAdapter) SupportedOrderTypes(string) []market.OrderType {
	out := make([]market.OrderType, len(a.venue.OrderTypes))
	copy(out, a.venue.OrderTypes)
	return out
}

func (a *GenericAdapter) HasFeature(f Feature) bool {
	if f == FeatureMarginTrading {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.venue.MarginAll || len(a.margin) > 0
	}
	return a.venue.hasFeature(f)
}

func (a *GenericAdapter) SetMarginSymbols(symbols []string) {
	next := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		venueSymbol, err := a.venueSymbol(s)
		if err != nil {
			a.logger.Warn("[%s_ADAPTER] skip margin symbol %q: %v", strings.ToUpper(a.venue.Name), s, err)
			continue
		}
		next[venueSymbol] = struct{}{}
	}
	a.mu.Lock()
	a.margin = next
	a.mu.Unlock()
}

func (a *GenericAdapter) MarginSymbols() []string {
	a.mu.Lock()
	out := make([]string, 0, len(a.margin))
	for s := range a.margin {
		out = append(out, s)
	}
	a.mu.Unlock()
	sort.Strings(out)
	return out
}

func (a *GenericAdapter) Status() AdapterStatus {
	st := AdapterStatus{
		Exchange: a.venue.Name,
		ID:       a.id,
		Active:   a.IsActive(),
		Streams:  a.ActiveStreams(),
	}
	a.mu.Lock()
	st.BarListeners = len(a.bars)
	st.MarginSymbols = len(a.margin)
	a.mu.Unlock()
	if a.socket != nil {
		st.Sockets = a.socket.sockets()
	}
	return st
}
