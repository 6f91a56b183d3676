package market

import (
	"time"
)

// MessageType - тип нормализованного события
type MessageType string

const (
	MessageTypeTrade     MessageType = "trade"
	MessageTypeOrderBook MessageType = "orderbook"
	MessageTypeBar       MessageType = "bar"
)

// StreamKind - тип потока, на который подписывается потребитель
type StreamKind string

const (
	StreamTrades    StreamKind = "trades"
	StreamOrderBook StreamKind = "orderbook"
)

// ParseStreamKind принимает trades/trade и orderbook/book
func ParseStreamKind(s string) (StreamKind, bool) {
	switch s {
	case "trades", "trade":
		return StreamTrades, true
	case "orderbook", "book":
		return StreamOrderBook, true
	}
	return "", false
}

// EventName формирует имя события: trade:BTC/USDT, orderbook:full:BTC/USDT
func EventName(t MessageType, full bool, symbol string) string {
	if full {
		return string(t) + ":full:" + symbol
	}
	return string(t) + ":" + symbol
}

// Event - нормализованное событие, публикуемое адаптером в шину
type Event struct {
	Exchange  string      `json:"exchange"`
	Name      string      `json:"name"` // имя события, оно же topic шины
	Type      MessageType `json:"type"`
	Full      bool        `json:"full"` // полное состояние из REST
	Symbol    string      `json:"symbol"`
	Timestamp time.Time   `json:"timestamp"`
	Trades    []Trade     `json:"trades,omitempty"`
	OrderBook *OrderBook  `json:"orderbook,omitempty"`
}

// NewTradeEvent создаёт событие сделок
func NewTradeEvent(exchange, symbol string, full bool, trades []Trade) Event {
	return Event{
		Exchange:  exchange,
		Name:      EventName(MessageTypeTrade, full, symbol),
		Type:      MessageTypeTrade,
		Full:      full,
		Symbol:    symbol,
		Timestamp: time.Now(),
		Trades:    trades,
	}
}

// NewOrderBookEvent создаёт событие стакана
func NewOrderBookEvent(exchange, symbol string, full bool, book *OrderBook) Event {
	return Event{
		Exchange:  exchange,
		Name:      EventName(MessageTypeOrderBook, full, symbol),
		Type:      MessageTypeOrderBook,
		Full:      full,
		Symbol:    symbol,
		Timestamp: time.Now(),
		OrderBook: book,
	}
}

// TradeSide - сторона сделки
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade - нормализованная сделка. Cost = Amount * Price.
type Trade struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Timestamp    int64     `json:"timestamp"` // мс
	Price        float64   `json:"price"`
	Amount       float64   `json:"amount"`
	Cost         float64   `json:"cost"`
	Side         TradeSide `json:"side"`
	TakerOrMaker string    `json:"takerOrMaker"`
}

// Bar - свеча, Time в мс
type Bar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type HistoryMeta struct {
	NoData bool `json:"noData"`
}

// HistoryResult - ответ на запрос истории
type HistoryResult struct {
	Bars []Bar       `json:"bars"`
	Meta HistoryMeta `json:"meta"`
}

// NewHistoryResult выставляет NoData по пустому ответу
func NewHistoryResult(bars []Bar) HistoryResult {
	if bars == nil {
		bars = []Bar{}
	}
	return HistoryResult{Bars: bars, Meta: HistoryMeta{NoData: len(bars) == 0}}
}

// OrderBookUpdateType - тип обновления order book
type OrderBookUpdateType string

const (
	OrderBookUpdateTypeSnapshot OrderBookUpdateType = "snapshot" // полный снимок
	OrderBookUpdateTypeDiff     OrderBookUpdateType = "diff"     // изменения, склейку делает потребитель
)

// PriceLevel - уровень цены в orderbook
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// OrderBook - стакан. Снимки и диффы не сводятся друг с другом.
type OrderBook struct {
	Bids       []PriceLevel        `json:"bids"`
	Asks       []PriceLevel        `json:"asks"`
	UpdateType OrderBookUpdateType `json:"update_type"`
}

// OrderType - тип ордера
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStopLimit    OrderType = "stop-limit"
	OrderTypeStopMarket   OrderType = "stop-market"
	OrderTypeTakeLimit    OrderType = "take-limit"
	OrderTypeTakeMarket   OrderType = "take-market"
	OrderTypeTrailingStop OrderType = "trailing-stop"
)

// MarketKind - рынок исполнения ордера
type MarketKind string

const (
	MarketSpot   MarketKind = "spot"
	MarketMargin MarketKind = "margin"
	MarketPaper  MarketKind = "paper"
)

// OrderRequest - нормализованная заявка
type OrderRequest struct {
	Side     TradeSide  `json:"side"`
	Kind     OrderType  `json:"kind"`
	Market   MarketKind `json:"market"`
	Amount   float64    `json:"amount"`
	Price    float64    `json:"price,omitempty"`
	Leverage float64    `json:"leverageMultiplier"`
}

// OrderStatus - статус ордера
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Order - ордер на бирже
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          TradeSide   `json:"side"`
	Type          OrderType   `json:"type"`
	Status        OrderStatus `json:"status"`
	Price         float64     `json:"price"`
	Amount        float64     `json:"amount"`
	Filled        float64     `json:"filled"`
	Timestamp     int64       `json:"timestamp"`
}

// Balance - баланс по одной валюте
type Balance struct {
	Currency string  `json:"currency"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
}

// Total возвращает free + locked
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}
