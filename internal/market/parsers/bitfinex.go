package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"datafeed-go/internal/market"
)

// BitfinexEvent - служебный кадр: info, subscribed, unsubscribed, error
type BitfinexEvent struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	ChanID  int64  `json:"chanId"`
	Symbol  string `json:"symbol"`
	Pair    string `json:"pair"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Version int    `json:"version"`
}

// Типы кадров канала
const (
	BitfinexHeartbeat   = "hb"
	BitfinexTradeUpdate = "tu"
	BitfinexTradeExec   = "te"
	BitfinexSnapshot    = "snapshot"
)

// BitfinexFrame - разобранный кадр: либо Event, либо данные канала ChanID
type BitfinexFrame struct {
	Event  *BitfinexEvent
	ChanID int64
	Kind   string
	Data   json.RawMessage
}

// ParseBitfinexFrame определяет тип кадра. Бизнес-разбор данных - в ParseBitfinexTrade.
func ParseBitfinexFrame(raw []byte) (BitfinexFrame, error) {
	var frame BitfinexFrame
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return frame, fmt.Errorf("empty frame")
	}

	if trimmed[0] == '{' {
		var ev BitfinexEvent
		if err := json.Unmarshal(trimmed, &ev); err != nil {
			return frame, fmt.Errorf("failed to parse event: %w", err)
		}
		if ev.Event == "" {
			return frame, fmt.Errorf("object frame without event")
		}
		frame.Event = &ev
		return frame, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return frame, fmt.Errorf("failed to parse channel frame: %w", err)
	}
	if len(parts) < 2 {
		return frame, fmt.Errorf("channel frame too short")
	}
	if err := json.Unmarshal(parts[0], &frame.ChanID); err != nil {
		return frame, fmt.Errorf("invalid chanId: %w", err)
	}

	var kind string
	if err := json.Unmarshal(parts[1], &kind); err == nil {
		frame.Kind = kind
		if len(parts) > 2 {
			frame.Data = parts[2]
		}
		return frame, nil
	}
	frame.Kind = BitfinexSnapshot
	frame.Data = parts[1]
	return frame, nil
}

// ParseBitfinexTrade: [id, mts, amount, price]; отрицательный amount - продажа
func ParseBitfinexTrade(data json.RawMessage, symbol string) (market.Trade, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(data, &row); err != nil {
		return market.Trade{}, fmt.Errorf("failed to parse trade: %w", err)
	}
	return bitfinexTradeFromRow(row, symbol)
}

func bitfinexTradeFromRow(row []json.RawMessage, symbol string) (market.Trade, error) {
	id, err := numAt(row, 0)
	if err != nil {
		return market.Trade{}, err
	}
	mts, err := numAt(row, 1)
	if err != nil {
		return market.Trade{}, err
	}
	amount, err := numAt(row, 2)
	if err != nil {
		return market.Trade{}, err
	}
	price, err := numAt(row, 3)
	if err != nil {
		return market.Trade{}, err
	}
	return NewTrade(strconv.FormatInt(int64(id), 10), symbol, int64(mts), price, amount, ""), nil
}

// DecodeBitfinexCandles - /v2/candles/.../hist: [[mts, open, close, high, low, volume]]
func DecodeBitfinexCandles(body []byte) ([]market.Bar, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return barsFromRows(rows, barLayout{time: 0, open: 1, close: 2, high: 3, low: 4, volume: 5})
}

// DecodeBitfinexTrades - /v2/trades/t<SYM>/hist: [[id, mts, amount, price]]
func DecodeBitfinexTrades(body []byte, symbol string) ([]market.Trade, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	trades := make([]market.Trade, 0, len(rows))
	for _, row := range rows {
		t, err := bitfinexTradeFromRow(row, symbol)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// DecodeBitfinexBook - /v2/book/t<SYM>/P0: [[price, count, amount]], amount>0 - bid, <0 - ask
func DecodeBitfinexBook(body []byte) (*market.OrderBook, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse book: %w", err)
	}
	bids := make([]market.PriceLevel, 0, len(rows))
	asks := make([]market.PriceLevel, 0, len(rows))
	for _, row := range rows {
		price, err := numAt(row, 0)
		if err != nil {
			return nil, err
		}
		amount, err := numAt(row, 2)
		if err != nil {
			return nil, err
		}
		if amount < 0 {
			asks = append(asks, market.PriceLevel{Price: price, Amount: -amount})
		} else {
			bids = append(bids, market.PriceLevel{Price: price, Amount: amount})
		}
	}
	return snapshot(bids, asks), nil
}
