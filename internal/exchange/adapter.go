package exchange

import (
	"context"

	"datafeed-go/internal/bus"
	"datafeed-go/internal/market"
)

// Feature - необязательная возможность биржи
type Feature string

const (
	FeatureViewDeposits      Feature = "view_deposits"
	FeatureViewWithdrawals   Feature = "view_withdrawals"
	FeatureGetDepositAddress Feature = "get_deposit_address"
	FeatureMarginTrading     Feature = "margin_trading"
)

// HistoryProvider - данные для графика: свечи, разрешения, описание символа
type HistoryProvider interface {
	DatafeedConfig() market.DatafeedConfig
	SupportedResolutions() []string
	ResolveSymbol(symbol string) market.SymbolInfo
	HistoryDepth(resolution string) (market.HistoryDepth, bool)
	// GetHistory: from/to в секундах, бары в мс по возрастанию времени
	GetHistory(ctx context.Context, symbol, resolution string, from, to int64) (market.HistoryResult, error)
}

// MarketDataProvider - полное состояние через REST
type MarketDataProvider interface {
	GetTrades(ctx context.Context, symbol string) ([]market.Trade, error)
	GetOrderbook(ctx context.Context, symbol string) (*market.OrderBook, error)
}

// StreamProvider - живые потоки. События публикуются в Bus():
// trade:<symbol>, trade:full:<symbol>, orderbook:<symbol>, orderbook:full:<symbol>.
type StreamProvider interface {
	Bus() *bus.MessageBus
	StreamTrades(symbol string) error
	StopStreamingTrades(symbol string) error
	StreamOrderbook(symbol string) error
	StopStreamingOrderbook(symbol string) error
	// SubscribeBars возвращает id слушателя; пустой listenerID заменяется сгенерированным
	SubscribeBars(symbol, resolution, listenerID string, onTick func(market.Bar)) (string, error)
	UnsubscribeBars(listenerID string)
	ActiveStreams() []StreamKey
}

// Trader - приватные методы. До сетевого вызова проверяются ключи.
type Trader interface {
	ExecuteOrder(ctx context.Context, symbol string, req market.OrderRequest) (market.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]market.Order, error)
	GetBalances(ctx context.Context) ([]market.Balance, error)
}

// Adapter - интерфейс для адаптеров бирж
type Adapter interface {
	HistoryProvider
	MarketDataProvider
	StreamProvider
	Trader

	ID() string
	ExchangeName() string
	Start() error
	Stop() error
	IsActive() bool

	AllowsSpotTrading(symbol string) bool
	AllowsMarginTrading(symbol string) bool
	SupportedOrderTypes(symbol string) []market.OrderType
	HasFeature(f Feature) bool
	// SetMarginSymbols заменяет статический список маржинальных пар (символы BASE/QUOTE)
	SetMarginSymbols(symbols []string)
	MarginSymbols() []string
	Status() AdapterStatus
}

// StreamKey - активный поток
type StreamKey struct {
	Exchange string            `json:"exchange"`
	Kind     market.StreamKind `json:"kind"`
	Symbol   string            `json:"symbol"`
}

// AdapterStatus - состояние адаптера для /status
type AdapterStatus struct {
	Exchange      string       `json:"exchange"`
	ID            string       `json:"id"`
	Active        bool         `json:"active"`
	Streams       []StreamKey  `json:"streams"`
	BarListeners  int          `json:"bar_listeners"`
	Sockets       []SocketInfo `json:"sockets"`
	MarginSymbols int          `json:"margin_symbols"`
}

// SocketInfo - состояние одного WebSocket соединения
type SocketInfo struct {
	URL        string `json:"url"`
	State      string `json:"state"`
	Messages   int64  `json:"messages"`
	Reconnects int64  `json:"reconnects"`
}
