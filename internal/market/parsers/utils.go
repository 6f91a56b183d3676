package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"datafeed-go/internal/market"

	"github.com/shopspring/decimal"
)

// Утилиты для парсеров

// Num - число, которое биржа может прислать строкой или числом
type Num float64

func (n *Num) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*n = Num(d.InexactFloat64())
	return nil
}

func (n Num) Float() float64 { return float64(n) }

func parseNum(raw json.RawMessage) (float64, error) {
	var n Num
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return float64(n), nil
}

// numAt читает число из позиционного массива
func numAt(row []json.RawMessage, i int) (float64, error) {
	if i >= len(row) {
		return 0, fmt.Errorf("field %d is missing (row has %d)", i, len(row))
	}
	return parseNum(row[i])
}

func strAt(row []json.RawMessage, i int) (string, error) {
	if i >= len(row) {
		return "", fmt.Errorf("field %d is missing (row has %d)", i, len(row))
	}
	var s string
	if err := json.Unmarshal(row[i], &s); err == nil {
		return s, nil
	}
	return strings.Trim(string(row[i]), `"`), nil
}

// tradeCost считает amount*price без накопления ошибки float
func tradeCost(amount, price float64) float64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(price)).InexactFloat64()
}

// NewTrade собирает сделку; для бирж со знаковым объёмом отрицательный amount означает продажу
func NewTrade(id, symbol string, ts int64, price, signedAmount float64, side market.TradeSide) market.Trade {
	if side == "" {
		side = market.TradeSideBuy
		if signedAmount < 0 {
			side = market.TradeSideSell
		}
	}
	amount := math.Abs(signedAmount)
	return market.Trade{
		ID:        id,
		Symbol:    symbol,
		Timestamp: ts,
		Price:     price,
		Amount:    amount,
		Cost:      tradeCost(amount, price),
		Side:      side,
	}
}

// parseSide переводит buy/sell/b/s в TradeSide
func parseSide(s string) market.TradeSide {
	switch strings.ToLower(s) {
	case "sell", "s", "ask":
		return market.TradeSideSell
	default:
		return market.TradeSideBuy
	}
}

// levelsFromRows: [[price, amount, ...]] -> []PriceLevel
func levelsFromRows(rows [][]json.RawMessage, priceIdx, amountIdx int) ([]market.PriceLevel, error) {
	levels := make([]market.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := numAt(row, priceIdx)
		if err != nil {
			return nil, err
		}
		amount, err := numAt(row, amountIdx)
		if err != nil {
			return nil, err
		}
		levels = append(levels, market.PriceLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

// barFromRow читает свечу из массива по индексам полей
type barLayout struct {
	time, open, high, low, close, volume int
	timeScale                             int64 // множитель к мс (1000 для секунд)
	isoTime                               bool  // время строкой RFC3339
}

func barFromRow(row []json.RawMessage, l barLayout) (market.Bar, error) {
	var bar market.Bar
	if l.isoTime {
		s, err := strAt(row, l.time)
		if err != nil {
			return bar, err
		}
		ts, err := parseTime(s)
		if err != nil {
			return bar, err
		}
		bar.Time = ts
	} else {
		t, err := numAt(row, l.time)
		if err != nil {
			return bar, err
		}
		scale := l.timeScale
		if scale == 0 {
			scale = 1
		}
		bar.Time = int64(t) * scale
	}
	var err error
	if bar.Open, err = numAt(row, l.open); err != nil {
		return bar, err
	}
	if bar.High, err = numAt(row, l.high); err != nil {
		return bar, err
	}
	if bar.Low, err = numAt(row, l.low); err != nil {
		return bar, err
	}
	if bar.Close, err = numAt(row, l.close); err != nil {
		return bar, err
	}
	if bar.Volume, err = numAt(row, l.volume); err != nil {
		return bar, err
	}
	return bar, nil
}

func decodeRows(body []byte) ([][]json.RawMessage, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse candles: %w", err)
	}
	return rows, nil
}

func barsFromRows(rows [][]json.RawMessage, l barLayout) ([]market.Bar, error) {
	bars := make([]market.Bar, 0, len(rows))
	for i, row := range rows {
		bar, err := barFromRow(row, l)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// ReverseBars разворачивает свечи, пришедшие от новых к старым
func ReverseBars(bars []market.Bar) []market.Bar {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars
}

// parseTime понимает RFC3339 и формат без зоны (считаем UTC), возвращает мс
func parseTime(s string) (int64, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", s)
}

// HistoryDecoder разбирает тело ответа истории в свечи (в порядке биржи)
type HistoryDecoder func(body []byte) ([]market.Bar, error)

// TradesDecoder разбирает ответ REST со списком последних сделок
type TradesDecoder func(body []byte, symbol string) ([]market.Trade, error)

// BookDecoder разбирает ответ REST со снимком стакана
type BookDecoder func(body []byte) (*market.OrderBook, error)

func snapshot(bids, asks []market.PriceLevel) *market.OrderBook {
	return &market.OrderBook{Bids: bids, Asks: asks, UpdateType: market.OrderBookUpdateTypeSnapshot}
}
