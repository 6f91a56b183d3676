package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"datafeed-go/internal/bus"
	"datafeed-go/internal/config"
	"datafeed-go/internal/market"
	"datafeed-go/pkg/log"
)

var factoryLogger = log.New("exchange_factory")

// Options - параметры создания адаптера. Пустые поля берутся из описания биржи.
type Options struct {
	ID          string
	Credentials config.Credentials
	RestBase    string // переопределение REST-адреса (тесты, прокси)
	WsURL       string
	TradeBase   string // базовый адрес приватного API Binance
	Rest        RestOptions

	ReconnectDelay   time.Duration
	PingInterval     time.Duration
	ConnectPoll      time.Duration
	ConnectTimeout   time.Duration
	ThrottleInterval time.Duration
	PollInterval     time.Duration
	MaxLimit         int
	DebugRaw         bool
}

const DefaultMaxLimit = 1000

func (o Options) withDefaults(v *Venue) Options {
	if o.ID == "" {
		o.ID = v.Name
	}
	if o.RestBase == "" {
		o.RestBase = v.RestBase
	}
	if o.WsURL == "" {
		o.WsURL = v.WsURL
	}
	if o.ConnectPoll <= 0 {
		o.ConnectPoll = DefaultConnectPoll
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ThrottleInterval <= 0 {
		o.ThrottleInterval = time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = DefaultMaxLimit
	}
	return o
}

// OptionsFromConfig собирает Options из ini-конфига и переменных окружения
func OptionsFromConfig(cfg *config.Config, name string) Options {
	return Options{
		ID:          strings.ToLower(name),
		Credentials: config.CredentialsFromEnv(name),
		Rest: RestOptions{
			Timeout:           cfg.RestTimeout(),
			RequestsPerSecond: cfg.Rest.RequestsPerSecond,
			Burst:             cfg.Rest.Burst,
		},
		ReconnectDelay:   cfg.ReconnectDelay(),
		PingInterval:     cfg.PingInterval(),
		ConnectPoll:      cfg.ConnectPoll(),
		ConnectTimeout:   cfg.ConnectTimeout(),
		ThrottleInterval: cfg.ThrottleInterval(),
		PollInterval:     cfg.PollInterval(),
		MaxLimit:         cfg.Rest.MaxLimit,
		DebugRaw:         cfg.Debug.LogRaw,
	}
}

// NewAdapter создает адаптер по имени биржи; для неизвестных имен возвращает StubAdapter
func NewAdapter(name string, opts Options) Adapter {
	exchangeName := strings.ToLower(strings.TrimSpace(name))
	factoryLogger.Debug("Creating adapter for exchange: name='%s', id='%s'", name, opts.ID)

	venue, ok := LookupVenue(exchangeName)
	if !ok {
		factoryLogger.Warn("Unknown exchange name '%s' (normalized: '%s'), using StubAdapter", name, exchangeName)
		return NewStubAdapter(name)
	}
	return NewGenericAdapter(venue, opts)
}

// StubAdapter - для неизвестных бирж: любой запрос возвращает ErrUnknownExchange
type StubAdapter struct {
	name   string
	bus    *bus.MessageBus
	logger *log.Logger
}

func NewStubAdapter(name string) *StubAdapter {
	return &StubAdapter{name: name, bus: bus.New(name), logger: log.New("stub_adapter")}
}

func (a *StubAdapter) err() error {
	return fmt.Errorf("%s: %w", a.name, ErrUnknownExchange)
}

func (a *StubAdapter) Start() error {
	a.logger.Info("[STUB_ADAPTER] Starting stub adapter for %s", a.name)
	return nil
}

func (a *StubAdapter) Stop() error {
	a.logger.Info("[STUB_ADAPTER] Stopping stub adapter for %s", a.name)
	return nil
}

func (a *StubAdapter) ID() string                      { return a.name }
func (a *StubAdapter) ExchangeName() string            { return a.name }
func (a *StubAdapter) IsActive() bool                  { return false }
func (a *StubAdapter) Bus() *bus.MessageBus            { return a.bus }
func (a *StubAdapter) SupportedResolutions() []string  { return nil }
func (a *StubAdapter) ActiveStreams() []StreamKey      { return nil }
func (a *StubAdapter) AllowsSpotTrading(string) bool   { return false }
func (a *StubAdapter) AllowsMarginTrading(string) bool { return false }
func (a *StubAdapter) HasFeature(Feature) bool         { return false }
func (a *StubAdapter) SetMarginSymbols([]string)       {}
func (a *StubAdapter) MarginSymbols() []string         { return nil }
func (a *StubAdapter) UnsubscribeBars(string)          {}

func (a *StubAdapter) SupportedOrderTypes(string) []market.OrderType { return nil }

func (a *StubAdapter) DatafeedConfig() market.DatafeedConfig {
	return market.NewDatafeedConfig(nil)
}

func (a *StubAdapter) ResolveSymbol(symbol string) market.SymbolInfo {
	return market.ResolveSymbol(a.name, symbol, nil)
}

func (a *StubAdapter) HistoryDepth(string) (market.HistoryDepth, bool) {
	return market.HistoryDepth{}, false
}

func (a *StubAdapter) GetHistory(context.Context, string, string, int64, int64) (market.HistoryResult, error) {
	return market.HistoryResult{}, a.err()
}

func (a *StubAdapter) GetTrades(context.Context, string) ([]market.Trade, error) { return nil, a.err() }

func (a *StubAdapter) GetOrderbook(context.Context, string) (*market.OrderBook, error) {
	return nil, a.err()
}

func (a *StubAdapter) StreamTrades(string) error           { return a.err() }
func (a *StubAdapter) StopStreamingTrades(string) error    { return nil }
func (a *StubAdapter) StreamOrderbook(string) error        { return a.err() }
func (a *StubAdapter) StopStreamingOrderbook(string) error { return nil }

func (a *StubAdapter) SubscribeBars(string, string, string, func(market.Bar)) (string, error) {
	return "", a.err()
}

func (a *StubAdapter) ExecuteOrder(context.Context, string, market.OrderRequest) (market.Order, error) {
	return market.Order{}, a.err()
}

func (a *StubAdapter) CancelOrder(context.Context, string, string) error { return a.err() }

func (a *StubAdapter) GetOpenOrders(context.Context, string) ([]market.Order, error) {
	return nil, a.err()
}

func (a *StubAdapter) GetBalances(context.Context) ([]market.Balance, error) { return nil, a.err() }

func (a *StubAdapter) Status() AdapterStatus {
	return AdapterStatus{Exchange: a.name, ID: a.name}
}
