package parsers

import (
	"encoding/json"
	"fmt"

	"datafeed-go/internal/market"
)

// BitmexTableMessage - кадр таблицы realtime API
type BitmexTableMessage struct {
	Table  string            `json:"table"`
	Action string            `json:"action"`
	Data   []BitmexTradeItem `json:"data"`
}

type BitmexTradeItem struct {
	Timestamp  string `json:"timestamp"`
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Size       Num    `json:"size"`
	Price      Num    `json:"price"`
	TrdMatchID string `json:"trdMatchID"`
}

// ParseBitmexTrades разбирает кадр table=trade. ok=false для прочих кадров (info, subscribe, другие таблицы).
// Возвращает сделки с символом биржи, перевод в унифицированный делает вызывающий.
func ParseBitmexTrades(raw []byte) (trades []market.Trade, ok bool, err error) {
	var msg BitmexTableMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, false, fmt.Errorf("failed to parse frame: %w", err)
	}
	if msg.Table != "trade" {
		return nil, false, nil
	}
	trades, err = bitmexTrades(msg.Data)
	if err != nil {
		return nil, false, err
	}
	return trades, true, nil
}

func bitmexTrades(items []BitmexTradeItem) ([]market.Trade, error) {
	trades := make([]market.Trade, 0, len(items))
	for _, item := range items {
		ts, err := parseTime(item.Timestamp)
		if err != nil {
			return nil, err
		}
		t := NewTrade(item.TrdMatchID, item.Symbol, ts, item.Price.Float(), item.Size.Float(), parseSide(item.Side))
		t.TakerOrMaker = "maker"
		trades = append(trades, t)
	}
	return trades, nil
}

// bitmexUDFResponse - /api/udf/history
type bitmexUDFResponse struct {
	S string `json:"s"`
	T []Num  `json:"t"`
	O []Num  `json:"o"`
	H []Num  `json:"h"`
	L []Num  `json:"l"`
	C []Num  `json:"c"`
	V []Num  `json:"v"`
}

// DecodeUDFHistory - формат UDF (Bitmex, CoinDCX): параллельные массивы t,o,h,l,c,v; t в секундах
func DecodeUDFHistory(body []byte) ([]market.Bar, error) {
	var r bitmexUDFResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse udf history: %w", err)
	}
	if r.S == "error" {
		return nil, fmt.Errorf("udf history returned error status")
	}
	n := len(r.T)
	if len(r.O) < n || len(r.H) < n || len(r.L) < n || len(r.C) < n || len(r.V) < n {
		return nil, fmt.Errorf("udf history arrays have different lengths")
	}
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, market.Bar{
			Time:   int64(r.T[i]) * 1000,
			Open:   r.O[i].Float(),
			High:   r.H[i].Float(),
			Low:    r.L[i].Float(),
			Close:  r.C[i].Float(),
			Volume: r.V[i].Float(),
		})
	}
	return bars, nil
}

// DecodeBitmexTrades - /api/v1/trade
func DecodeBitmexTrades(body []byte, symbol string) ([]market.Trade, error) {
	var items []BitmexTradeItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades, err := bitmexTrades(items)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		trades[i].Symbol = symbol
	}
	return trades, nil
}

// DecodeBitmexBook - /api/v1/orderBook/L2: [{side, size, price}]
func DecodeBitmexBook(body []byte) (*market.OrderBook, error) {
	var items []struct {
		Side  string `json:"side"`
		Size  Num    `json:"size"`
		Price Num    `json:"price"`
	}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	var bids, asks []market.PriceLevel
	for _, it := range items {
		level := market.PriceLevel{Price: it.Price.Float(), Amount: it.Size.Float()}
		if parseSide(it.Side) == market.TradeSideSell {
			asks = append(asks, level)
		} else {
			bids = append(bids, level)
		}
	}
	return snapshot(bids, asks), nil
}
